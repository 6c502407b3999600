package surface

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"deliverySync/internal/events"
	"deliverySync/internal/logger"
	"deliverySync/internal/notify"
	"deliverySync/internal/poller"
	"deliverySync/internal/session"
	"deliverySync/internal/status"
	"deliverySync/models"
)

// fakeAPI is an in-memory backend that records every call.
type fakeAPI struct {
	mu         sync.Mutex
	orders     map[int64]models.Order
	deliveries map[int64]models.Delivery
	agents     map[int64]models.Agent
	calls      map[string]int
	listErr    error
	orderErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		orders:     map[int64]models.Order{},
		deliveries: map[int64]models.Delivery{},
		agents:     map[int64]models.Agent{},
		calls:      map[string]int{},
	}
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) AssignDelivery(_ context.Context, deliveryID, agentID, _ int64) (*models.Delivery, error) {
	f.hit("AssignDelivery")
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[deliveryID]
	if !ok {
		return nil, models.ErrNotFound
	}
	a := f.agents[agentID]
	now := time.Now()
	d.Agent, d.Status, d.AssignedAt = a.Ref(), models.DeliveryStatusAssigned, &now
	d.Version++
	f.deliveries[deliveryID] = d
	return &d, nil
}

func (f *fakeAPI) ListDeliveries(context.Context) ([]models.Delivery, error) {
	f.hit("ListDeliveries")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Delivery, 0, len(f.deliveries))
	for _, d := range f.deliveries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAPI) ListAgentDeliveries(_ context.Context, agentID int64) ([]models.Delivery, error) {
	f.hit("ListAgentDeliveries")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Delivery
	for _, d := range f.deliveries {
		if d.AgentID() == agentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeAPI) UpdateDeliveryStatus(_ context.Context, deliveryID int64, st models.DeliveryStatus) (*models.Delivery, error) {
	f.hit("UpdateDeliveryStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.deliveries[deliveryID]
	d.Status = st
	d.Version++
	f.deliveries[deliveryID] = d
	return &d, nil
}

func (f *fakeAPI) ListAgents(context.Context, string) ([]models.Agent, error) {
	f.hit("ListAgents")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Agent
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAPI) ListPendingAgents(context.Context) ([]models.Agent, error) {
	f.hit("ListPendingAgents")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Agent
	for _, a := range f.agents {
		if a.Status == models.AgentStatusPendingApproval {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateAgent(_ context.Context, in models.AgentRequest) (*models.Agent, error) {
	f.hit("CreateAgent")
	f.mu.Lock()
	defer f.mu.Unlock()
	a := models.Agent{ID: int64(len(f.agents) + 100), Name: in.Name, Email: in.Email, Status: models.AgentStatusActive}
	f.agents[a.ID] = a
	return &a, nil
}

func (f *fakeAPI) ApproveAgent(_ context.Context, agentID int64) (*models.Agent, error) {
	f.hit("ApproveAgent")
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.agents[agentID]
	a.Status = models.AgentStatusActive
	f.agents[agentID] = a
	return &a, nil
}

func (f *fakeAPI) RejectAgent(_ context.Context, agentID int64) error {
	f.hit("RejectAgent")
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.agents[agentID]
	a.Status = models.AgentStatusRejected
	f.agents[agentID] = a
	return nil
}

func (f *fakeAPI) UpdateAgentStatus(_ context.Context, agentID int64, st models.AgentStatus) (*models.Agent, error) {
	f.hit("UpdateAgentStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.agents[agentID]
	a.Status = st
	f.agents[agentID] = a
	return &a, nil
}

func (f *fakeAPI) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	f.hit("GetOrder")
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &o, nil
}

func (f *fakeAPI) ListRestaurantOrders(_ context.Context, restaurantID int64) ([]models.Order, error) {
	f.hit("ListRestaurantOrders")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.RestaurantID == restaurantID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeAPI) UpdateOrderStatus(_ context.Context, orderID int64, st models.OrderStatus) (*models.Order, error) {
	f.hit("UpdateOrderStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	o := f.orders[orderID]
	o.Status = st
	f.orders[orderID] = o
	return &o, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func newSurface(t *testing.T, role session.Role, subject int64, api *fakeAPI, opts Options) *Surface {
	t.Helper()
	sess, err := session.New(role, subject, string(role), "token")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	opts.Logger = logger.Discard()
	if opts.Grace == 0 {
		opts.Grace = 10 * time.Millisecond
	}
	s, err := New(sess, api, opts)
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestAdmin_PollsAndSweepAssigns(t *testing.T) {
	api := newFakeAPI()
	api.deliveries[42] = models.Delivery{ID: 42, OrderID: 7, Status: models.DeliveryStatusPending}
	api.agents[1] = models.Agent{ID: 1, Name: "Ann", Status: models.AgentStatusActive}
	api.agents[2] = models.Agent{ID: 2, Name: "Bo", Status: models.AgentStatusOffline}

	s := newSurface(t, session.RoleAdmin, 0, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ActivePollers() != 3 {
		t.Fatalf("pollers = %d, want 3", s.ActivePollers())
	}
	waitFor(t, func() bool {
		d, ok := s.Store().Delivery(42)
		return ok && d.Status == models.DeliveryStatusAssigned
	})
	d, _ := s.Store().Delivery(42)
	if d.AgentID() != 1 || d.AssignedAt == nil {
		t.Fatalf("delivery %+v", d)
	}
	if api.count("AssignDelivery") != 1 {
		t.Fatalf("assign calls = %d", api.count("AssignDelivery"))
	}
}

func TestClose_StopsEverything(t *testing.T) {
	api := newFakeAPI()
	s := newSurface(t, session.RoleAdmin, 0, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return api.count("ListDeliveries") > 0 })
	s.Close()
	if s.ActivePollers() != 0 {
		t.Fatalf("pollers after close = %d", s.ActivePollers())
	}
	before := api.count("ListDeliveries")
	if _, err := s.AssignDelivery(context.Background(), 1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("action after close err=%v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("start after close err=%v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if api.count("ListDeliveries") != before {
		t.Fatalf("fetch after close")
	}
}

func TestInvalidateSession_ClosesSurface(t *testing.T) {
	api := newFakeAPI()
	s := newSurface(t, session.RoleRestaurant, 3, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ActivePollers() != 2 {
		t.Fatalf("restaurant pollers = %d", s.ActivePollers())
	}
	s.Session().Invalidate()
	if s.ActivePollers() != 0 {
		t.Fatalf("pollers after logout = %d", s.ActivePollers())
	}
}

func agentFixture(orderStatus models.OrderStatus) *fakeAPI {
	api := newFakeAPI()
	api.orders[7] = models.Order{ID: 7, RestaurantID: 3, Status: orderStatus, TotalCents: 1250}
	api.agents[5] = models.Agent{ID: 5, Name: "Cy", Status: models.AgentStatusActive}
	api.deliveries[70] = models.Delivery{ID: 70, OrderID: 7, Status: models.DeliveryStatusAssigned, Agent: &models.AgentRef{ID: 5, Name: "Cy"}}
	return api
}

func TestAgent_PickupBlockedWhileOrderNotReady(t *testing.T) {
	api := agentFixture(models.OrderStatusPending)
	s := newSurface(t, session.RoleAgent, 5, api, Options{})
	if err := s.Refresh(context.Background(), poller.KeyAgentDeliveries); err == nil {
		t.Fatalf("refresh before start should fail: no poller registered")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { _, ok := s.Store().Order(7); return ok })

	if s.CanAdvanceDelivery(70, models.DeliveryStatusPickedUp) {
		t.Fatalf("pickup should be disabled")
	}
	_, err := s.UpdateDeliveryStatus(context.Background(), 70, models.DeliveryStatusPickedUp)
	if !errors.Is(err, models.ErrOrderNotReady) {
		t.Fatalf("err=%v", err)
	}
	if api.count("UpdateDeliveryStatus") != 0 {
		t.Fatalf("request sent for a locally refused change")
	}
	if d, _ := s.Store().Delivery(70); d.Status != models.DeliveryStatusAssigned {
		t.Fatalf("delivery changed: %s", d.Status)
	}
	n, _ := s.LastNotification()
	if n.Kind != notify.KindBlocked || n.Title != "Order Not Ready" {
		t.Fatalf("notification %+v", n)
	}
}

func TestAgent_PickupLeavesOrderAlone(t *testing.T) {
	api := agentFixture(models.OrderStatusReady)
	s := newSurface(t, session.RoleAgent, 5, api, Options{CascadeOrder: true})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { _, ok := s.Store().Order(7); return ok })

	d, err := s.UpdateDeliveryStatus(context.Background(), 70, models.DeliveryStatusPickedUp)
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if d.Status != models.DeliveryStatusPickedUp {
		t.Fatalf("delivery %s", d.Status)
	}
	if api.count("UpdateOrderStatus") != 0 {
		t.Fatalf("pickup wrote the order")
	}
	if o, _ := s.Store().Order(7); o.Status != models.OrderStatusReady {
		t.Fatalf("order %s", o.Status)
	}
}

func TestAgent_InTransitCascade(t *testing.T) {
	for _, cascade := range []bool{false, true} {
		api := agentFixture(models.OrderStatusReady)
		d := api.deliveries[70]
		d.Status = models.DeliveryStatusPickedUp
		api.deliveries[70] = d

		s := newSurface(t, session.RoleAgent, 5, api, Options{CascadeOrder: cascade})
		if err := s.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		waitFor(t, func() bool { _, ok := s.Store().Order(7); return ok })
		if _, err := s.AdvanceDelivery(context.Background(), 70); err != nil {
			t.Fatalf("advance: %v", err)
		}
		if o, _ := s.Store().Order(7); o.Status != models.OrderStatusInTransit {
			t.Fatalf("cascade=%v order %s", cascade, o.Status)
		}
		want := 0
		if cascade {
			want = 1
		}
		if got := api.count("UpdateOrderStatus"); got != want {
			t.Fatalf("cascade=%v order requests = %d, want %d", cascade, got, want)
		}
		s.Close()
	}
}

func TestAgent_CascadeAgainstCascadingBackend(t *testing.T) {
	api := agentFixture(models.OrderStatusReady)
	d := api.deliveries[70]
	d.Status = models.DeliveryStatusPickedUp
	api.deliveries[70] = d
	s := newSurface(t, session.RoleAgent, 5, api, Options{CascadeOrder: true})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { _, ok := s.Store().Order(7); return ok })

	// The backend already moved the order and refuses the repeated edge.
	api.mu.Lock()
	o := api.orders[7]
	o.Status = models.OrderStatusInTransit
	api.orders[7] = o
	api.orderErr = fmt.Errorf("order 7 IN_TRANSIT -> IN_TRANSIT: %w", models.ErrInvalidTransition)
	api.mu.Unlock()

	if _, err := s.AdvanceDelivery(context.Background(), 70); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got, _ := s.Store().Order(7); got.Status != models.OrderStatusInTransit {
		t.Fatalf("order %s", got.Status)
	}
	if n, _ := s.LastNotification(); n.Kind != notify.KindSuccess {
		t.Fatalf("notification %+v", n)
	}
}

func TestAgent_SetAvailability(t *testing.T) {
	api := agentFixture(models.OrderStatusReady)
	s := newSurface(t, session.RoleAgent, 5, api, Options{})
	if _, err := s.SetAvailability(context.Background(), models.AgentStatusPendingApproval); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err=%v", err)
	}
	a, err := s.SetAvailability(context.Background(), models.AgentStatusOffline)
	if err != nil || a.Status != models.AgentStatusOffline {
		t.Fatalf("offline: %+v %v", a, err)
	}
	s.Store().PutAgents(models.Agent{ID: 5, Status: models.AgentStatusPendingApproval})
	if _, err := s.SetAvailability(context.Background(), models.AgentStatusActive); !errors.Is(err, models.ErrAgentNotApproved) {
		t.Fatalf("pending agent err=%v", err)
	}
}

func TestRestaurant_OrderTransitions(t *testing.T) {
	api := agentFixture(models.OrderStatusPending)
	s := newSurface(t, session.RoleRestaurant, 3, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { _, ok := s.Store().Order(7); return ok })
	if s.CanAdvanceOrder(7, models.OrderStatusReady) || !s.CanAdvanceOrder(7, models.OrderStatusPreparing) {
		t.Fatalf("CanAdvanceOrder disagrees with the order graph")
	}
	if _, err := s.UpdateOrderStatus(context.Background(), 7, models.OrderStatusReady); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("skip err=%v", err)
	}
	if api.count("UpdateOrderStatus") != 0 {
		t.Fatalf("request sent for an invalid edge")
	}
	o, err := s.AdvanceOrder(context.Background(), 7)
	if err != nil || o.Status != models.OrderStatusPreparing {
		t.Fatalf("advance: %+v %v", o, err)
	}
	if _, err := s.UpdateDeliveryStatus(context.Background(), 70, models.DeliveryStatusCancelled); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("restaurant moved a delivery: %v", err)
	}
}

func TestAdmin_ApproveAndReject(t *testing.T) {
	api := newFakeAPI()
	api.agents[8] = models.Agent{ID: 8, Name: "New", Status: models.AgentStatusPendingApproval}
	api.agents[9] = models.Agent{ID: 9, Name: "Spam", Status: models.AgentStatusPendingApproval}
	s := newSurface(t, session.RoleAdmin, 0, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return len(s.Store().PendingAgents()) == 2 })
	if _, err := s.ApproveAgent(context.Background(), 8); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.RejectAgent(context.Background(), 9); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if n := len(s.Store().PendingAgents()); n != 0 {
		t.Fatalf("pending left = %d", n)
	}
	if a, _ := s.Store().Agent(8); a.Status != models.AgentStatusActive {
		t.Fatalf("approved agent %+v", a)
	}
	if _, err := s.CreateAgent(context.Background(), models.AgentRequest{Name: "x", Email: "bad"}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("invalid create err=%v", err)
	}
	if api.count("CreateAgent") != 0 {
		t.Fatalf("invalid agent was sent")
	}
}

func TestPollFailure_Notifies(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("connection refused")
	s := newSurface(t, session.RoleAdmin, 0, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool {
		for _, n := range s.Notifications() {
			if n.Kind == notify.KindFailure {
				return true
			}
		}
		return false
	})
	time.Sleep(2 * time.Millisecond)
	s.ClearNotifications()
	if n := len(s.Notifications()); n != 0 {
		t.Fatalf("cleared notifications still shown: %d", n)
	}
	if s.ActivePollers() != 3 {
		t.Fatalf("a failing fetch stopped its timer")
	}
}

func TestCustomer_TrackAndProject(t *testing.T) {
	api := agentFixture(models.OrderStatusReady)
	s := newSurface(t, session.RoleCustomer, 9, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ActivePollers() != 0 {
		t.Fatalf("customer polls before tracking")
	}
	if err := s.Track(7); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := s.Track(7); err != nil || s.ActivePollers() != 2 {
		t.Fatalf("second track: %v pollers=%d", err, s.ActivePollers())
	}
	waitFor(t, func() bool {
		p, ok := s.Projection(7)
		return ok && p.Label == status.LabelReadyAssigned
	})
	line, ok := s.Summary(7)
	if !ok || line == "" {
		t.Fatalf("summary %q", line)
	}
	if err := s.Refresh(context.Background(), trackKey(poller.KeyTrackOrder, 7)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	s.Untrack(7)
	if s.ActivePollers() != 0 {
		t.Fatalf("pollers after untrack = %d", s.ActivePollers())
	}
}

func TestTrack_UntrackWhileStarting(t *testing.T) {
	api := agentFixture(models.OrderStatusReady)
	s := newSurface(t, session.RoleCustomer, 9, api, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	trackReserved = func(id int64) { s.Untrack(id) }
	t.Cleanup(func() { trackReserved = func(int64) {} })

	if err := s.Track(7); err != nil {
		t.Fatalf("track: %v", err)
	}
	if n := s.ActivePollers(); n != 0 {
		t.Fatalf("tracking timers leaked after Untrack: %d", n)
	}
	if err := s.Refresh(context.Background(), trackKey(poller.KeyTrackOrder, 7)); err == nil {
		t.Fatalf("fetch still registered for an untracked order")
	}

	trackReserved = func(int64) {}
	if err := s.Track(7); err != nil || s.ActivePollers() != 2 {
		t.Fatalf("track again: %v pollers=%d", err, s.ActivePollers())
	}
}

type chanSource struct {
	ch   chan events.Event
	runs chan struct{}
}

func (c *chanSource) Run(ctx context.Context, fn func(events.Event)) error {
	select {
	case c.runs <- struct{}{}:
	default:
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-c.ch:
			if !ok {
				return errors.New("feed closed")
			}
			fn(e)
		}
	}
}

func TestPush_AppliesEventsAndReconnects(t *testing.T) {
	api := newFakeAPI()
	src := &chanSource{ch: make(chan events.Event), runs: make(chan struct{}, 4)}
	// A customer surface has no standing pollers to race with the feed.
	s := newSurface(t, session.RoleCustomer, 9, api, Options{Events: src, Reconnect: 5 * time.Millisecond})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-src.runs

	src.ch <- events.Event{Type: events.AgentRegistered, Agent: &models.Agent{ID: 11, Name: "Dee", Status: models.AgentStatusPendingApproval}}
	waitFor(t, func() bool { return len(s.Store().PendingAgents()) == 1 })

	src.ch <- events.Event{Type: events.AgentStatusChanged, Agent: &models.Agent{ID: 11, Name: "Dee", Status: models.AgentStatusActive}}
	waitFor(t, func() bool { return len(s.Store().PendingAgents()) == 0 })
	if a, ok := s.Store().Agent(11); !ok || a.Status != models.AgentStatusActive {
		t.Fatalf("agent %+v", a)
	}

	close(src.ch)
	select {
	case <-src.runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("feed was not redialled")
	}
}
