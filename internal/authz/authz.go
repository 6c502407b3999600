// Package authz holds the route policy: which principal kind may call which
// REST route. Ownership of individual records is checked by the service.
package authz

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"deliverySync/internal/auth"
)

// Anonymous is the subject of unauthenticated requests.
const Anonymous = "anonymous"

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// staff is every authenticated kind.
const staff = "authenticated"

// Routes are gin route patterns.
var defaultPolicy = [][]string{
	{auth.KindAdmin, "*", "*"},

	{staff, "/deliveries", http.MethodGet},
	{staff, "/deliveries/:id", http.MethodGet},
	{staff, "/ws/events", http.MethodGet},
	{auth.KindAgent, "/deliveries/agent/:agentId", http.MethodGet},
	{auth.KindAgent, "/deliveries/:id/status", http.MethodPut},
	{auth.KindAgent, "/deliveries/agents", http.MethodGet},
	{auth.KindAgent, "/deliveries/agents/:id/status", http.MethodPut},
	{Anonymous, "/deliveries/agents", http.MethodPost},

	{staff, "/orders/:id", http.MethodGet},
	{auth.KindRestaurant, "/orders/restaurant/:restaurantId", http.MethodGet},
	{auth.KindRestaurant, "/orders/:id/status", http.MethodPost},
	{auth.KindCustomer, "/orders/:id/status", http.MethodPost},
	{auth.KindCustomer, "/orders", http.MethodPost},
}

var kindGroups = [][]string{
	{auth.KindRestaurant, staff},
	{auth.KindAgent, staff},
	{auth.KindCustomer, staff},
}

// Authorizer wraps a casbin enforcer loaded with the route policy.
type Authorizer struct {
	e *casbin.Enforcer
}

// New builds the enforcer with the default policy plus extra rules.
func New(extra ...[]string) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz enforcer: %w", err)
	}
	rules := append(append([][]string{}, defaultPolicy...), extra...)
	if _, err := e.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("authz policy: %w", err)
	}
	if _, err := e.AddGroupingPolicies(kindGroups); err != nil {
		return nil, fmt.Errorf("authz groups: %w", err)
	}
	return &Authorizer{e: e}, nil
}

// Allow reports whether subject may call method on route.
func (a *Authorizer) Allow(subject, route, method string) (bool, error) {
	ok, err := a.e.Enforce(subject, route, method)
	if err != nil {
		return false, fmt.Errorf("authz check %s %s %s: %w", subject, method, route, err)
	}
	return ok, nil
}

// Subject maps a principal to its policy subject.
func Subject(p *auth.Principal) string {
	if p == nil {
		return Anonymous
	}
	return p.Kind
}
