package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"deliverySync/internal/auth"
	"deliverySync/internal/authz"
	"deliverySync/internal/events"
	"deliverySync/internal/logger"
	"deliverySync/internal/service"
	"deliverySync/internal/testutil"
	"deliverySync/models"
)

const secret = "test-secret"

type fixture struct {
	router *gin.Engine
	svc    *service.Service
	hub    *events.Hub
	admin  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d := testutil.OpenInMemoryDB(t, t.Name())
	hub := events.NewHub(16, logger.Discard())
	t.Cleanup(hub.Close)
	svc := service.New(d, hub, service.WithLogger(logger.Discard()))
	a, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	s := NewServer(svc, hub, a, secret, logger.Discard())
	return &fixture{
		router: s.Router(),
		svc:    svc,
		hub:    hub,
		admin:  testutil.GenerateJWTHS256(t, secret, "root", auth.KindAdmin),
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (f *fixture) placeOrder(t *testing.T, customerID int64) PlacedOrder {
	t.Helper()
	tok := testutil.GenerateJWTWithID(t, secret, "cust", auth.KindCustomer, customerID)
	w := f.do(t, http.MethodPost, "/orders", tok, service.PlaceOrderInput{
		RestaurantID:    3,
		Items:           []models.OrderItem{{MenuItemID: 1, Quantity: 2, UnitPriceCents: 500}},
		PickupAddress:   "1 Kitchen St",
		DeliveryAddress: "2 Home Rd",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("place order: %d %s", w.Code, w.Body.String())
	}
	return decode[PlacedOrder](t, w)
}

func (f *fixture) createAgent(t *testing.T, email string) models.Agent {
	t.Helper()
	w := f.do(t, http.MethodPost, "/deliveries/agents/admin", f.admin, service.AgentInput{Name: "A", Email: email, VehicleType: "bike"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create agent: %d %s", w.Code, w.Body.String())
	}
	return decode[models.Agent](t, w)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/deliveries", nil)
	req.Header.Set("Origin", "http://surface.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin: %q", got)
	}
}

func TestAuthn_AnonymousAndBadToken(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/deliveries", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/deliveries", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
	other := testutil.GenerateJWTHS256(t, "other-secret", "x", auth.KindAdmin)
	if w := f.do(t, http.MethodGet, "/deliveries", other, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign signature: %d", w.Code)
	}
}

func TestAuthz_KindPolicy(t *testing.T) {
	f := newFixture(t)
	rest := testutil.GenerateJWTWithID(t, secret, "r", auth.KindRestaurant, 3)
	w := f.do(t, http.MethodGet, "/deliveries/agents/pending", rest, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("restaurant pending agents: %d", w.Code)
	}
	if e := decode[apiError](t, w); e.Error != "forbidden" {
		t.Fatalf("error body %+v", e)
	}
	if w := f.do(t, http.MethodGet, "/deliveries/agents/pending", f.admin, nil); w.Code != http.StatusOK {
		t.Fatalf("admin pending agents: %d", w.Code)
	}
}

func TestAgentRegistration_PublicThenApprove(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/deliveries/agents", "", service.AgentInput{Name: "Kim", Email: "kim@example.com", VehicleType: "scooter"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	a := decode[models.Agent](t, w)
	if a.Status != models.AgentStatusPendingApproval {
		t.Fatalf("status %s", a.Status)
	}

	pending := decode[[]models.Agent](t, f.do(t, http.MethodGet, "/deliveries/agents/pending", f.admin, nil))
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("pending %+v", pending)
	}

	w = f.do(t, http.MethodPut, "/deliveries/agents/"+itoa(a.ID)+"/approve", f.admin, nil)
	if w.Code != http.StatusOK || decode[models.Agent](t, w).Status != models.AgentStatusActive {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}

	byEmail := decode[[]models.Agent](t, f.do(t, http.MethodGet, "/deliveries/agents?email=kim@example.com", f.admin, nil))
	if len(byEmail) != 1 || byEmail[0].ID != a.ID {
		t.Fatalf("by email %+v", byEmail)
	}
}

func TestInvalidBodyAndPath(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/deliveries/agents", strings.NewReader("{"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/deliveries/abc", f.admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/deliveries/999", f.admin, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing delivery: %d", w.Code)
	}
}

func TestDeliveryLifecycle_OverHTTP(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t, 9)
	agent := f.createAgent(t, "courier@example.com")
	did := itoa(placed.Delivery.ID)

	w := f.do(t, http.MethodPost, "/deliveries/"+did+"/assign?agentId="+itoa(agent.ID)+"&expectedVersion="+itoa(placed.Delivery.Version), f.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", w.Code, w.Body.String())
	}
	d := decode[models.Delivery](t, w)
	if d.Status != models.DeliveryStatusAssigned || d.AgentID() != agent.ID {
		t.Fatalf("assigned %+v", d)
	}

	// Stale version.
	w = f.do(t, http.MethodPost, "/deliveries/"+did+"/assign?agentId="+itoa(agent.ID)+"&expectedVersion="+itoa(placed.Delivery.Version), f.admin, nil)
	if w.Code != http.StatusConflict || decode[apiError](t, w).Error != "version_conflict" {
		t.Fatalf("stale assign: %d %s", w.Code, w.Body.String())
	}

	agentTok := testutil.GenerateJWTWithID(t, secret, "courier", auth.KindAgent, agent.ID)
	w = f.do(t, http.MethodPut, "/deliveries/"+did+"/status?status=PICKED_UP", agentTok, nil)
	if w.Code != http.StatusUnprocessableEntity || decode[apiError](t, w).Error != "order_not_ready" {
		t.Fatalf("early pickup: %d %s", w.Code, w.Body.String())
	}

	rest := testutil.GenerateJWTWithID(t, secret, "r", auth.KindRestaurant, 3)
	oid := itoa(placed.Order.ID)
	for _, st := range []models.OrderStatus{models.OrderStatusPreparing, models.OrderStatusReady} {
		if w := f.do(t, http.MethodPost, "/orders/"+oid+"/status?status="+string(st), rest, nil); w.Code != http.StatusOK {
			t.Fatalf("order -> %s: %d %s", st, w.Code, w.Body.String())
		}
	}

	w = f.do(t, http.MethodPut, "/deliveries/"+did+"/status?status=PICKED_UP", agentTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pickup: %d %s", w.Code, w.Body.String())
	}
	o := decode[models.Order](t, f.do(t, http.MethodGet, "/orders/"+oid, rest, nil))
	if o.Status != models.OrderStatusReady {
		t.Fatalf("pickup must not write the order, got %s", o.Status)
	}
	if w := f.do(t, http.MethodPut, "/deliveries/"+did+"/status?status=IN_TRANSIT", agentTok, nil); w.Code != http.StatusOK {
		t.Fatalf("in transit: %d %s", w.Code, w.Body.String())
	}
	o = decode[models.Order](t, f.do(t, http.MethodGet, "/orders/"+oid, agentTok, nil))
	if o.Status != models.OrderStatusInTransit {
		t.Fatalf("order after in transit %s", o.Status)
	}

	mine := decode[[]models.Delivery](t, f.do(t, http.MethodGet, "/deliveries/agent/"+itoa(agent.ID), agentTok, nil))
	if len(mine) != 1 || mine[0].Status != models.DeliveryStatusInTransit {
		t.Fatalf("agent deliveries %+v", mine)
	}

	w = f.do(t, http.MethodPut, "/deliveries/"+did+"/status?status=PENDING", agentTok, nil)
	if w.Code != http.StatusUnprocessableEntity || decode[apiError](t, w).Error != "invalid_transition" {
		t.Fatalf("backwards: %d %s", w.Code, w.Body.String())
	}
}

func TestAutoAssign_NoAgents(t *testing.T) {
	f := newFixture(t)
	placed := f.placeOrder(t, 9)
	w := f.do(t, http.MethodPost, "/deliveries/"+itoa(placed.Delivery.ID)+"/auto-assign", f.admin, nil)
	if w.Code != http.StatusServiceUnavailable || decode[apiError](t, w).Error != "no_agents_available" {
		t.Fatalf("auto-assign: %d %s", w.Code, w.Body.String())
	}
	f.createAgent(t, "a@example.com")
	w = f.do(t, http.MethodPost, "/deliveries/"+itoa(placed.Delivery.ID)+"/auto-assign", f.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("auto-assign: %d %s", w.Code, w.Body.String())
	}
}

func TestRestaurantOrders_Scoped(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, 9)
	rest := testutil.GenerateJWTWithID(t, secret, "r", auth.KindRestaurant, 3)
	got := decode[[]models.Order](t, f.do(t, http.MethodGet, "/orders/restaurant/3", rest, nil))
	if len(got) != 1 {
		t.Fatalf("orders %+v", got)
	}
	if w := f.do(t, http.MethodGet, "/orders/restaurant/4", rest, nil); w.Code != http.StatusForbidden {
		t.Fatalf("other restaurant: %d", w.Code)
	}
}

func TestEventsWebsocket_StreamsScopedEvents(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	tok := testutil.GenerateJWTWithID(t, secret, "r", auth.KindRestaurant, 3)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	placed := f.placeOrder(t, 9)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e events.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Order == nil || e.Order.ID != placed.Order.ID {
		t.Fatalf("event %+v", e)
	}
}

func TestEventsWebsocket_RequiresToken(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/ws/events", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous ws: %d", w.Code)
	}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
