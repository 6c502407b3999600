package service

import (
	"context"
	"fmt"

	"deliverySync/internal/assign"
	"deliverySync/internal/auth"
	"deliverySync/internal/events"
	"deliverySync/internal/status"
	"deliverySync/models"
	"deliverySync/repository"
)

// ListDeliveries returns the full delivery collection, newest first. Callers
// other than administrators see only the deliveries they take part in.
func (s *Service) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	p := caller(ctx)
	params := repository.ListDeliveriesParams{}
	if p != nil {
		switch p.Kind {
		case auth.KindAdmin:
		case auth.KindAgent:
			params.AgentID = &p.ID
		case auth.KindRestaurant:
			params.RestaurantID = &p.ID
		case auth.KindCustomer:
			params.CustomerID = &p.ID
		default:
			return nil, forbidden("deliveries")
		}
	}
	return s.listDeliveries(ctx, params)
}

// ListDeliveriesByAgent returns the deliveries held by one agent.
func (s *Service) ListDeliveriesByAgent(ctx context.Context, agentID int64) ([]models.Delivery, error) {
	if p := caller(ctx); p != nil && p.Kind == auth.KindAgent && p.ID != agentID {
		return nil, forbidden("deliveries of agent %d", agentID)
	}
	return s.listDeliveries(ctx, repository.ListDeliveriesParams{AgentID: &agentID})
}

func (s *Service) listDeliveries(ctx context.Context, p repository.ListDeliveriesParams) ([]models.Delivery, error) {
	out, err := s.read().deliveries.List(ctx, p)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Delivery{}
	}
	return out, nil
}

// GetDelivery returns one delivery.
func (s *Service) GetDelivery(ctx context.Context, id int64) (*models.Delivery, error) {
	d, err := s.read().deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, notFound("delivery", id)
	}
	if !canSeeDelivery(caller(ctx), d) {
		return nil, forbidden("delivery %d", id)
	}
	return d, nil
}

// AssignDelivery gives a delivery to an ACTIVE agent. With expectedVersion > 0
// the write is a compare-and-swap against the delivery's version and a lost
// race returns ErrVersionConflict. Finished deliveries cannot be reassigned.
func (s *Service) AssignDelivery(ctx context.Context, deliveryID, agentID, expectedVersion int64) (*models.Delivery, error) {
	var out *models.Delivery
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		d, err := r.deliveries.GetByID(ctx, deliveryID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, notFound("delivery", deliveryID)
		}
		if expectedVersion > 0 && d.Version != expectedVersion {
			return nil, fmt.Errorf("delivery %d at version %d, expected %d: %w", d.ID, d.Version, expectedVersion, models.ErrVersionConflict)
		}
		agent, err := r.agents.GetByID(ctx, agentID)
		if err != nil {
			return nil, err
		}
		var held []models.Delivery
		if s.policy == assign.PolicyExclusive && agent != nil {
			if held, err = r.deliveries.List(ctx, repository.ListDeliveriesParams{AgentID: &agent.ID}); err != nil {
				return nil, err
			}
		}
		if err := assign.CheckEligible(agent, held, s.policy, deliveryID); err != nil {
			return nil, err
		}
		out, err = s.assign(ctx, r, d, agent.ID)
		if err != nil {
			return nil, err
		}
		return []events.Event{{Type: events.DeliveryAssigned, Delivery: out}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("delivery assigned", "delivery_id", deliveryID, "agent_id", agentID, "version", out.Version)
	return out, nil
}

// AutoAssignDelivery picks a random eligible agent for a pending, unassigned
// delivery. With no candidate it returns ErrNoAgentsAvailable and changes nothing.
func (s *Service) AutoAssignDelivery(ctx context.Context, deliveryID int64) (*models.Delivery, error) {
	var out *models.Delivery
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		d, err := r.deliveries.GetByID(ctx, deliveryID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, notFound("delivery", deliveryID)
		}
		if !d.AwaitingAgent() {
			return nil, fmt.Errorf("delivery %d is %s: %w", d.ID, d.Status, models.ErrInvalidTransition)
		}
		agents, err := r.agents.List(ctx, models.AgentStatusActive)
		if err != nil {
			return nil, err
		}
		var live []models.Delivery
		if s.policy == assign.PolicyExclusive {
			live, err = r.deliveries.List(ctx, repository.ListDeliveriesParams{Statuses: []models.DeliveryStatus{
				models.DeliveryStatusAssigned, models.DeliveryStatusPickedUp, models.DeliveryStatusInTransit,
			}})
			if err != nil {
				return nil, err
			}
		}
		agent, err := assign.SelectAgent(agents, live, s.policy, s.picker, d.ID)
		if err != nil {
			return nil, fmt.Errorf("delivery %d: %w", d.ID, err)
		}
		if out, err = s.assign(ctx, r, d, agent.ID); err != nil {
			return nil, err
		}
		return []events.Event{{Type: events.DeliveryAssigned, Delivery: out}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("delivery auto-assigned", "delivery_id", deliveryID, "agent_id", out.AgentID())
	return out, nil
}

func (s *Service) assign(ctx context.Context, r repos, d *models.Delivery, agentID int64) (*models.Delivery, error) {
	if d.Status.Terminal() {
		return nil, fmt.Errorf("delivery %d is %s: %w", d.ID, d.Status, models.ErrInvalidTransition)
	}
	if _, err := r.deliveries.Assign(ctx, d.ID, agentID, s.stamp(), d.Version); err != nil {
		return nil, err
	}
	return r.deliveries.GetByID(ctx, d.ID)
}

// UpdateDeliveryStatus moves a delivery along its graph. The implied order
// status (IN_TRANSIT, DELIVERED) is written in the same transaction, so the
// two records never disagree. Agents may only move their own deliveries.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id int64, to models.DeliveryStatus) (*models.Delivery, *models.Order, error) {
	if !to.Valid() {
		return nil, nil, fmt.Errorf("delivery status %q: %w", to, models.ErrInvalidArgument)
	}
	p := caller(ctx)
	var outD *models.Delivery
	var outO *models.Order
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		d, err := r.deliveries.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, notFound("delivery", id)
		}
		if p != nil && p.Kind != auth.KindAdmin && !(p.Kind == auth.KindAgent && d.AgentID() == p.ID) {
			return nil, forbidden("delivery %d", id)
		}
		if p != nil && p.Kind == auth.KindAgent {
			a, err := r.agents.GetByID(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			if a == nil || !a.Status.Approved() {
				return nil, fmt.Errorf("agent %d: %w", p.ID, models.ErrAgentNotApproved)
			}
		}
		order, err := r.orders.GetByID(ctx, d.OrderID)
		if err != nil {
			return nil, err
		}
		if err := status.ValidateDeliveryChange(d, order, to); err != nil {
			return nil, err
		}
		now := s.stamp()
		if _, err := r.deliveries.UpdateStatus(ctx, d.ID, to, now, d.Version); err != nil {
			return nil, err
		}
		if outD, err = r.deliveries.GetByID(ctx, d.ID); err != nil {
			return nil, err
		}
		ev := events.Event{Type: events.DeliveryStatusChanged, Delivery: outD}

		if next, ok := status.OrderEffect(to); ok && order != nil && !order.Status.Terminal() && order.Status != next {
			if _, err := r.orders.UpdateStatus(ctx, order.ID, next, order.Version); err != nil {
				return nil, fmt.Errorf("order %d side effect: %w", order.ID, err)
			}
			if outO, err = r.orders.GetByID(ctx, order.ID); err != nil {
				return nil, err
			}
			ev.Order = outO
		}
		return []events.Event{ev}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("delivery status updated", "delivery_id", id, "status", to, "order_updated", outO != nil)
	return outD, outO, nil
}
