package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"deliverySync/internal/auth"
	"deliverySync/internal/authz"
	"deliverySync/internal/events"
	"deliverySync/internal/httpapi"
	"deliverySync/internal/logger"
	"deliverySync/internal/service"
	"deliverySync/internal/session"
	"deliverySync/internal/testutil"
	"deliverySync/models"
)

const secret = "backend-test-secret"

type harness struct {
	srv *httptest.Server
	svc *service.Service
	hub *events.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d := testutil.OpenInMemoryDB(t, t.Name())
	hub := events.NewHub(16, logger.Discard())
	svc := service.New(d, hub, service.WithLogger(logger.Discard()))
	a, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewServer(svc, hub, a, secret, logger.Discard()).Router())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &harness{srv: srv, svc: svc, hub: hub}
}

func (h *harness) client(t *testing.T, kind string, subject int64) *Client {
	t.Helper()
	tok := testutil.GenerateJWTWithID(t, secret, kind+"-user", kind, subject)
	sess, err := session.FromToken(tok)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	c, err := New(h.srv.URL, sess, WithTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New("ftp://example.com", nil); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestClient_SendsNoCacheAndBearer(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()
	sess, _ := session.New(session.RoleAdmin, 0, "root", "tok-123")
	c, err := New(srv.URL, sess)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.ListDeliveries(ctx(t)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got.Get("Cache-Control") != "no-cache" || got.Get("Authorization") != "Bearer tok-123" {
		t.Fatalf("headers %v", got)
	}

	sess.Invalidate()
	if _, err := c.ListDeliveries(ctx(t)); !errors.Is(err, session.ErrInvalidated) {
		t.Fatalf("after invalidate err=%v", err)
	}
}

func TestError_UnwrapsDomainCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"agent_busy","message":"agent 4 is busy"}`))
	}))
	defer srv.Close()
	c, _ := New(srv.URL, nil)
	_, err := c.AssignDelivery(ctx(t), 1, 4, 0)
	if !errors.Is(err, models.ErrAgentBusy) {
		t.Fatalf("err=%v", err)
	}
	if !IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("status lost: %v", err)
	}
}

func TestError_PlainBodyFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()
	c, _ := New(srv.URL, nil)
	if _, err := c.GetOrder(ctx(t), 7); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_EndToEnd(t *testing.T) {
	h := newHarness(t)
	cust := h.client(t, auth.KindCustomer, 9)
	o, d, err := cust.PlaceOrder(ctx(t), models.PlaceOrderRequest{
		RestaurantID:    3,
		Items:           []models.OrderItem{{MenuItemID: 1, Quantity: 3, UnitPriceCents: 250}},
		DeliveryAddress: "2 Home Rd",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.CustomerID != 9 || o.TotalCents != 750 || d.OrderID != o.ID {
		t.Fatalf("placed %+v %+v", o, d)
	}

	anon, _ := New(h.srv.URL, nil)
	reg, err := anon.RegisterAgent(ctx(t), models.AgentRequest{Name: "Lee", Email: "lee@example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	admin := h.client(t, auth.KindAdmin, 0)
	if _, err := admin.AssignDelivery(ctx(t), d.ID, reg.ID, 0); !errors.Is(err, models.ErrAgentNotApproved) && !errors.Is(err, models.ErrAgentNotActive) {
		t.Fatalf("assign to pending agent err=%v", err)
	}
	pending, err := admin.ListPendingAgents(ctx(t))
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending %v %v", pending, err)
	}
	if _, err := admin.ApproveAgent(ctx(t), reg.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	got, err := admin.AssignDelivery(ctx(t), d.ID, reg.ID, d.Version)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := admin.AssignDelivery(ctx(t), d.ID, reg.ID, d.Version); !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("stale assign err=%v", err)
	}

	agent := h.client(t, auth.KindAgent, reg.ID)
	mine, err := agent.ListAgentDeliveries(ctx(t), reg.ID)
	if err != nil || len(mine) != 1 || mine[0].Version != got.Version {
		t.Fatalf("mine %v %v", mine, err)
	}
	if _, err := agent.UpdateAgentStatus(ctx(t), reg.ID, models.AgentStatusOffline); err != nil {
		t.Fatalf("agent status: %v", err)
	}

	rest := h.client(t, auth.KindRestaurant, 3)
	orders, err := rest.ListRestaurantOrders(ctx(t), 3)
	if err != nil || len(orders) != 1 {
		t.Fatalf("orders %v %v", orders, err)
	}
	if _, err := rest.UpdateOrderStatus(ctx(t), o.ID, models.OrderStatusReady); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("skip PREPARING err=%v", err)
	}
}

func TestEventStream_DeliversPush(t *testing.T) {
	h := newHarness(t)
	admin := h.client(t, auth.KindAdmin, 0)
	stream, err := admin.NewEventStream("")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	got := make(chan events.Event, 4)
	done := make(chan error, 1)
	go func() { done <- stream.Run(runCtx, func(e events.Event) { got <- e }) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
	a, err := admin.CreateAgent(ctx(t), models.AgentRequest{Name: "Bo", Email: "bo@example.com"})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	select {
	case e := <-got:
		if e.Agent == nil || e.Agent.ID != a.ID {
			t.Fatalf("event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestNewEventStream_URL(t *testing.T) {
	c, _ := New("https://api.example.com/v1", nil)
	s, err := c.NewEventStream("")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if s.url != "wss://api.example.com/v1/ws/events" {
		t.Fatalf("url %s", s.url)
	}
	if _, err := c.NewEventStream("http://x"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
