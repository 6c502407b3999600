// Package assign matches pending deliveries with available agents.
package assign

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"deliverySync/models"
)

// Policy decides whether an agent may hold more than one delivery at a time.
type Policy string

const (
	// PolicyShared lets an ACTIVE agent receive deliveries while holding others.
	PolicyShared Policy = "shared"
	// PolicyExclusive skips agents that hold any non-terminal delivery.
	PolicyExclusive Policy = "exclusive"
)

// ParsePolicy accepts "shared" or "exclusive"; empty means shared.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyShared:
		return PolicyShared, nil
	case PolicyExclusive:
		return PolicyExclusive, nil
	}
	return "", fmt.Errorf("unknown agent exclusivity policy %q", s)
}

// Picker chooses an index in [0, n).
type Picker interface {
	Pick(n int) int
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(n int) int

// Pick implements Picker.
func (f PickerFunc) Pick(n int) int { return f(n) }

// Uniform picks uniformly at random.
var Uniform Picker = PickerFunc(rand.IntN)

// holding returns agents that hold a non-terminal delivery other than skipID.
func holding(deliveries []models.Delivery, skipID int64) map[int64]bool {
	out := make(map[int64]bool)
	for i := range deliveries {
		d := &deliveries[i]
		if d.ID == skipID || d.Agent == nil || d.Status.Terminal() {
			continue
		}
		out[d.Agent.ID] = true
	}
	return out
}

// CheckEligible returns nil when agent may receive deliveryID under policy.
func CheckEligible(agent *models.Agent, deliveries []models.Delivery, policy Policy, deliveryID int64) error {
	if agent == nil {
		return fmt.Errorf("agent: %w", models.ErrNotFound)
	}
	if !agent.Eligible() {
		return fmt.Errorf("agent %d is %s: %w", agent.ID, agent.Status, models.ErrAgentNotActive)
	}
	if policy == PolicyExclusive && holding(deliveries, deliveryID)[agent.ID] {
		return fmt.Errorf("agent %d: %w", agent.ID, models.ErrAgentBusy)
	}
	return nil
}

// Candidates returns the agents that may receive deliveryID, in input order.
func Candidates(agents []models.Agent, deliveries []models.Delivery, policy Policy, deliveryID int64) []models.Agent {
	var busy map[int64]bool
	if policy == PolicyExclusive {
		busy = holding(deliveries, deliveryID)
	}
	out := make([]models.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Status != models.AgentStatusActive || busy[a.ID] {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SelectAgent picks one candidate for deliveryID, or ErrNoAgentsAvailable.
func SelectAgent(agents []models.Agent, deliveries []models.Delivery, policy Policy, picker Picker, deliveryID int64) (models.Agent, error) {
	c := Candidates(agents, deliveries, policy, deliveryID)
	if len(c) == 0 {
		return models.Agent{}, models.ErrNoAgentsAvailable
	}
	if picker == nil {
		picker = Uniform
	}
	i := picker.Pick(len(c))
	if i < 0 || i >= len(c) {
		i = 0
	}
	return c[i], nil
}
