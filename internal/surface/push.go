package surface

import (
	"time"

	"deliverySync/internal/events"
	"deliverySync/models"
)

// consume applies pushed events to the store until Close. A dropped feed is
// redialled after a fixed pause; polling covers the gap.
func (s *Surface) consume() {
	defer s.wg.Done()
	for {
		err := s.events.Run(s.ctx, s.apply)
		if s.ctx.Err() != nil {
			return
		}
		s.log.Warn("event feed dropped", "error", err, "retry_in", s.reconnect)
		t := time.NewTimer(s.reconnect)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// apply writes the entities carried by e. Arrival order wins, as with polls.
func (s *Surface) apply(e events.Event) {
	if e.Order != nil {
		s.store.PutOrders(*e.Order)
	}
	if e.Delivery != nil {
		s.store.PutDeliveries(*e.Delivery)
	}
	if e.Agent != nil {
		s.store.PutAgents(*e.Agent)
		s.syncPending(*e.Agent)
	}
}

// syncPending keeps the approval queue in step with agent events.
func (s *Surface) syncPending(a models.Agent) {
	pending := s.store.PendingAgents()
	idx := -1
	for i := range pending {
		if pending[i].ID == a.ID {
			idx = i
			break
		}
	}
	switch {
	case a.Status == models.AgentStatusPendingApproval && idx < 0:
		s.store.ReplacePendingAgents(append(pending, a))
	case a.Status != models.AgentStatusPendingApproval && idx >= 0:
		s.store.ReplacePendingAgents(append(pending[:idx], pending[idx+1:]...))
	}
}
