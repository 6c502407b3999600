package surface

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"deliverySync/internal/poller"
	"deliverySync/internal/session"
	"deliverySync/models"
)

type pollTask struct {
	key      string
	interval time.Duration
	fetch    poller.FetchFunc
}

// pollers returns the role's standing timers. Customer surfaces only poll
// what they Track.
func (s *Surface) pollers() []pollTask {
	switch s.sess.Role() {
	case session.RoleAdmin:
		return []pollTask{
			{poller.KeyDeliveries, poller.AdminDeliveriesInterval, s.fetchDeliveries},
			{poller.KeyAgents, poller.AgentsInterval, s.fetchAgents},
			{poller.KeyPendingAgents, poller.PendingAgentsInterval, s.fetchPendingAgents},
		}
	case session.RoleRestaurant:
		return []pollTask{
			{poller.KeyOrders, poller.OrdersInterval, s.fetchRestaurantOrders},
			{poller.KeyDeliveries, poller.AdminDeliveriesInterval, s.fetchDeliveries},
		}
	case session.RoleAgent:
		return []pollTask{
			{poller.KeyAgentDeliveries, poller.AgentDeliveriesInterval, s.fetchAgentDeliveries},
		}
	}
	return nil
}

func (s *Surface) fetchDeliveries(ctx context.Context) error {
	list, err := s.api.ListDeliveries(ctx)
	if err != nil {
		return err
	}
	s.store.ReplaceDeliveries(list)
	return nil
}

func (s *Surface) fetchAgents(ctx context.Context) error {
	list, err := s.api.ListAgents(ctx, "")
	if err != nil {
		return err
	}
	s.store.ReplaceAgents(list)
	return nil
}

func (s *Surface) fetchPendingAgents(ctx context.Context) error {
	list, err := s.api.ListPendingAgents(ctx)
	if err != nil {
		return err
	}
	s.store.ReplacePendingAgents(list)
	return nil
}

func (s *Surface) fetchRestaurantOrders(ctx context.Context) error {
	list, err := s.api.ListRestaurantOrders(ctx, s.sess.SubjectID())
	if err != nil {
		return err
	}
	s.store.ReplaceOrders(list)
	return nil
}

// fetchAgentDeliveries also loads the orders behind live deliveries so the
// pickup rule can be checked before a request is sent.
func (s *Surface) fetchAgentDeliveries(ctx context.Context) error {
	list, err := s.api.ListAgentDeliveries(ctx, s.sess.SubjectID())
	if err != nil {
		return err
	}
	s.store.ReplaceDeliveries(list)
	var orders []models.Order
	for _, d := range list {
		if d.Status.Terminal() {
			continue
		}
		o, err := s.api.GetOrder(ctx, d.OrderID)
		if err != nil {
			return fmt.Errorf("order %d of delivery %d: %w", d.OrderID, d.ID, err)
		}
		orders = append(orders, *o)
	}
	if len(orders) > 0 {
		s.store.PutOrders(orders...)
	}
	return nil
}

func trackKey(base string, orderID int64) string {
	return base + ":" + strconv.FormatInt(orderID, 10)
}

type tracking struct {
	order, delivery *poller.Handle
}

// Track polls one order and its delivery, as the tracking page does.
// Tracking the same order twice is a no-op.
func (s *Surface) Track(orderID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.tracked[orderID]; ok {
		s.mu.Unlock()
		return nil
	}
	tr := &tracking{}
	s.tracked[orderID] = tr
	s.mu.Unlock()
	trackReserved(orderID)

	orderFetch := func(ctx context.Context) error {
		o, err := s.api.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		s.store.PutOrders(*o)
		return nil
	}
	deliveryFetch := func(ctx context.Context) error {
		list, err := s.api.ListDeliveries(ctx)
		if err != nil {
			return err
		}
		for _, d := range list {
			if d.OrderID == orderID {
				s.store.PutDeliveries(d)
			}
		}
		return nil
	}
	oh := s.poll(trackKey(poller.KeyTrackOrder, orderID), poller.TrackOrderInterval, orderFetch)
	dh := s.poll(trackKey(poller.KeyTrackDelivery, orderID), poller.TrackDeliveryInterval, deliveryFetch)

	s.mu.Lock()
	if s.tracked[orderID] != tr {
		// Untrack or Close ran while the timers were starting.
		if s.tracked[orderID] == nil {
			delete(s.fetches, trackKey(poller.KeyTrackOrder, orderID))
			delete(s.fetches, trackKey(poller.KeyTrackDelivery, orderID))
		}
		s.mu.Unlock()
		stopHandles(oh, dh)
		return nil
	}
	tr.order, tr.delivery = oh, dh
	s.mu.Unlock()
	return nil
}

// trackReserved runs between reserving a tracking slot and starting its
// timers. Tests replace it to interleave an Untrack.
var trackReserved = func(int64) {}

func stopHandles(hs ...*poller.Handle) {
	for _, h := range hs {
		if h != nil {
			h.Cancel()
			<-h.Done()
		}
	}
}

// Untrack stops the timers started by Track.
func (s *Surface) Untrack(orderID int64) {
	s.mu.Lock()
	tr := s.tracked[orderID]
	delete(s.tracked, orderID)
	delete(s.fetches, trackKey(poller.KeyTrackOrder, orderID))
	delete(s.fetches, trackKey(poller.KeyTrackDelivery, orderID))
	s.mu.Unlock()
	if tr == nil {
		return
	}
	stopHandles(tr.order, tr.delivery)
}

// Refresh re-fetches key now, bypassing the throttle, as the refresh button does.
func (s *Surface) Refresh(ctx context.Context, key string) error {
	s.mu.Lock()
	fetch, ok := s.fetches[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("surface: no poller for %q", key)
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	return s.sched.Refresh(rctx, key, fetch)
}
