// Package status holds the legal state graphs for orders and deliveries,
// the cross-entity rules between them, and the combined status shown to users.
package status

import (
	"fmt"

	"deliverySync/models"
)

var orderNext = map[models.OrderStatus]models.OrderStatus{
	models.OrderStatusPending:   models.OrderStatusPreparing,
	models.OrderStatusPreparing: models.OrderStatusReady,
	models.OrderStatusReady:     models.OrderStatusPickedUp,
	models.OrderStatusPickedUp:  models.OrderStatusInTransit,
	models.OrderStatusInTransit: models.OrderStatusDelivered,
}

var deliveryNext = map[models.DeliveryStatus]models.DeliveryStatus{
	models.DeliveryStatusPending:   models.DeliveryStatusAssigned,
	models.DeliveryStatusAssigned:  models.DeliveryStatusPickedUp,
	models.DeliveryStatusPickedUp:  models.DeliveryStatusInTransit,
	models.DeliveryStatusInTransit: models.DeliveryStatusDelivered,
}

// ValidateOrderTransition returns ErrInvalidTransition unless from→to is an edge
// of the order graph. CANCELLED is reachable from everything but DELIVERED.
func ValidateOrderTransition(from, to models.OrderStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("order %s -> %s: %w", from, to, models.ErrInvalidTransition)
	}
	if to == models.OrderStatusCancelled && from != models.OrderStatusDelivered {
		return nil
	}
	if next, ok := orderNext[from]; ok && next == to {
		return nil
	}
	return fmt.Errorf("order %s -> %s: %w", from, to, models.ErrInvalidTransition)
}

// ValidateDeliveryTransition returns ErrInvalidTransition unless from→to is an
// edge of the delivery graph. CANCELLED is reachable from everything but DELIVERED.
func ValidateDeliveryTransition(from, to models.DeliveryStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("delivery %s -> %s: %w", from, to, models.ErrInvalidTransition)
	}
	if to == models.DeliveryStatusCancelled && from != models.DeliveryStatusDelivered {
		return nil
	}
	if next, ok := deliveryNext[from]; ok && next == to {
		return nil
	}
	return fmt.Errorf("delivery %s -> %s: %w", from, to, models.ErrInvalidTransition)
}

// CanTransitionOrder reports whether from→to is an order graph edge.
func CanTransitionOrder(from, to models.OrderStatus) bool {
	return ValidateOrderTransition(from, to) == nil
}

// CanTransitionDelivery reports whether from→to is a delivery graph edge.
func CanTransitionDelivery(from, to models.DeliveryStatus) bool {
	return ValidateDeliveryTransition(from, to) == nil
}

// NextOrderStatus returns the forward successor of s, if any.
func NextOrderStatus(s models.OrderStatus) (models.OrderStatus, bool) {
	n, ok := orderNext[s]
	return n, ok
}

// NextDeliveryStatus returns the forward successor of s, if any.
func NextDeliveryStatus(s models.DeliveryStatus) (models.DeliveryStatus, bool) {
	n, ok := deliveryNext[s]
	return n, ok
}

// OrderReadyForPickup reports whether the restaurant has released the order.
func OrderReadyForPickup(s models.OrderStatus) bool {
	return s != models.OrderStatusPending && s != models.OrderStatusPreparing
}

// ValidateDeliveryChange checks the delivery edge and the rules that involve
// the order. order may be nil when the caller does not know it; the readiness
// rule is then left to the service that does.
func ValidateDeliveryChange(d *models.Delivery, order *models.Order, to models.DeliveryStatus) error {
	if d == nil {
		return fmt.Errorf("delivery: %w", models.ErrNotFound)
	}
	if err := ValidateDeliveryTransition(d.Status, to); err != nil {
		return err
	}
	if to == models.DeliveryStatusPickedUp {
		if d.Agent == nil {
			return fmt.Errorf("delivery %d has no agent: %w", d.ID, models.ErrInvalidTransition)
		}
		if order != nil && !OrderReadyForPickup(order.Status) {
			return fmt.Errorf("order %d is %s: %w", order.ID, order.Status, models.ErrOrderNotReady)
		}
	}
	return nil
}

// CanAdvanceDelivery is the check a surface uses to enable or disable an action.
func CanAdvanceDelivery(d *models.Delivery, order *models.Order, to models.DeliveryStatus) bool {
	return ValidateDeliveryChange(d, order, to) == nil
}

// OrderEffect returns the order status implied by moving a delivery to to.
// Only IN_TRANSIT and DELIVERED carry an order-side write.
func OrderEffect(to models.DeliveryStatus) (models.OrderStatus, bool) {
	switch to {
	case models.DeliveryStatusInTransit:
		return models.OrderStatusInTransit, true
	case models.DeliveryStatusDelivered:
		return models.OrderStatusDelivered, true
	}
	return "", false
}
