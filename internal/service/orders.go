package service

import (
	"context"
	"fmt"

	"deliverySync/internal/auth"
	"deliverySync/internal/events"
	"deliverySync/internal/status"
	"deliverySync/models"
	"deliverySync/repository"
)

// PlaceOrderInput is a checkout request. The Delivery is created with the order.
type PlaceOrderInput = models.PlaceOrderRequest

// PlaceOrder stores the order with its total fixed from the item subtotals and
// creates its PENDING delivery in the same transaction. A customer caller
// always places for itself.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, *models.Delivery, error) {
	if p := caller(ctx); p != nil && p.Kind == auth.KindCustomer {
		in.CustomerID = p.ID
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	var order *models.Order
	var delivery *models.Delivery
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		now := s.stamp()
		o := &models.Order{
			RestaurantID: in.RestaurantID,
			CustomerID:   in.CustomerID,
			Status:       models.OrderStatusPending,
			CreatedAt:    now,
			Items:        in.Items,
		}
		total, err := o.ItemsTotalCents()
		if err != nil {
			return nil, err
		}
		o.TotalCents = total
		if order, err = r.orders.Create(ctx, o); err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		delivery, err = r.deliveries.Create(ctx, &models.Delivery{
			OrderID:               order.ID,
			RestaurantID:          order.RestaurantID,
			CustomerID:            order.CustomerID,
			Status:                models.DeliveryStatusPending,
			PickupAddress:         in.PickupAddress,
			DeliveryAddress:       in.DeliveryAddress,
			EstimatedDeliveryTime: in.EstimatedDeliveryTime,
			Notes:                 in.Notes,
			CreatedAt:             now,
		})
		if err != nil {
			return nil, fmt.Errorf("create delivery: %w", err)
		}
		return []events.Event{
			{Type: events.OrderCreated, Order: order},
			{Type: events.DeliveryCreated, Delivery: delivery},
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("order placed", "order_id", order.ID, "delivery_id", delivery.ID, "total_cents", order.TotalCents)
	return order, delivery, nil
}

// GetOrder returns one order. Agents may read the orders they carry.
func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.read().orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, notFound("order", id)
	}
	p := caller(ctx)
	if p != nil && p.Kind == auth.KindAgent {
		held, err := s.read().deliveries.List(ctx, repository.ListDeliveriesParams{OrderID: &id, AgentID: &p.ID})
		if err != nil {
			return nil, err
		}
		if len(held) == 0 {
			return nil, forbidden("order %d", id)
		}
		return o, nil
	}
	if !canSeeOrder(p, o) {
		return nil, forbidden("order %d", id)
	}
	return o, nil
}

// ListOrdersByRestaurant returns the orders of one restaurant, newest first.
func (s *Service) ListOrdersByRestaurant(ctx context.Context, restaurantID int64) ([]models.Order, error) {
	if p := caller(ctx); p != nil && p.Kind == auth.KindRestaurant && p.ID != restaurantID {
		return nil, forbidden("restaurant %d", restaurantID)
	}
	out, err := s.read().orders.List(ctx, repository.ListOrdersParams{RestaurantID: &restaurantID})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Order{}
	}
	return out, nil
}

// UpdateOrderStatus moves an order along its graph. Cancelling an order
// cancels its live delivery in the same transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("order status %q: %w", to, models.ErrInvalidArgument)
	}
	p := caller(ctx)
	var out *models.Order
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		o, err := r.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, notFound("order", id)
		}
		if !canSeeOrder(p, o) || (p != nil && p.Kind == auth.KindCustomer && to != models.OrderStatusCancelled) {
			return nil, forbidden("order %d", id)
		}
		if err := status.ValidateOrderTransition(o.Status, to); err != nil {
			return nil, err
		}
		if _, err := r.orders.UpdateStatus(ctx, id, to, o.Version); err != nil {
			return nil, err
		}
		if out, err = r.orders.GetByID(ctx, id); err != nil {
			return nil, err
		}
		evs := []events.Event{{Type: events.OrderStatusChanged, Order: out}}

		if to == models.OrderStatusCancelled {
			d, err := r.deliveries.GetActiveByOrderID(ctx, id)
			if err != nil {
				return nil, err
			}
			if d != nil {
				if _, err := r.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusCancelled, s.stamp(), d.Version); err != nil {
					return nil, fmt.Errorf("cancel delivery %d: %w", d.ID, err)
				}
				if d, err = r.deliveries.GetByID(ctx, d.ID); err != nil {
					return nil, err
				}
				evs = append(evs, events.Event{Type: events.DeliveryStatusChanged, Delivery: d, Order: out})
			}
		}
		return evs, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order status updated", "order_id", id, "status", to)
	return out, nil
}
