package models

import "time"

// DeliveryStatus represents the physical fulfillment progress of an order.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusAssigned  DeliveryStatus = "ASSIGNED"
	DeliveryStatusPickedUp  DeliveryStatus = "PICKED_UP"
	DeliveryStatusInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusCancelled DeliveryStatus = "CANCELLED"
)

// Valid reports whether s is one of the known delivery statuses.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusAssigned, DeliveryStatusPickedUp,
		DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the delivery is finished.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

// AgentRef is the snapshot of an agent stored on a delivery.
// The agent record itself is owned by the agent registry.
type AgentRef struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	VehicleType string `json:"vehicleType,omitempty"`
}

// Delivery tracks the transport of exactly one order.
// Agent is nil while unassigned; reassignment replaces it.
type Delivery struct {
	ID                    int64          `db:"id" json:"id"`
	OrderID               int64          `db:"order_id" json:"orderId"`
	RestaurantID          int64          `db:"restaurant_id" json:"restaurantId"`
	CustomerID            int64          `db:"customer_id" json:"customerId"`
	Agent                 *AgentRef      `json:"agent"`
	Status                DeliveryStatus `db:"status" json:"status"`
	PickupAddress         string         `db:"pickup_address" json:"pickupAddress"`
	DeliveryAddress       string         `db:"delivery_address" json:"deliveryAddress"`
	EstimatedDeliveryTime int            `db:"estimated_delivery_minutes" json:"estimatedDeliveryTime"`
	Notes                 string         `db:"notes" json:"notes,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"createdAt"`
	AssignedAt            *time.Time     `db:"assigned_at" json:"assignedAt,omitempty"`
	PickedUpAt            *time.Time     `db:"picked_up_at" json:"pickedUpAt,omitempty"`
	DeliveredAt           *time.Time     `db:"delivered_at" json:"deliveredAt,omitempty"`
	Version               int64          `db:"version" json:"version"`
}

// AgentID returns the assigned agent id, or 0 when unassigned.
func (d *Delivery) AgentID() int64 {
	if d == nil || d.Agent == nil {
		return 0
	}
	return d.Agent.ID
}

// AwaitingAgent reports whether the delivery is pending with nobody assigned.
func (d *Delivery) AwaitingAgent() bool {
	return d != nil && d.Status == DeliveryStatusPending && d.Agent == nil
}

// Clone returns a deep copy so callers can mutate without sharing pointers.
func (d Delivery) Clone() Delivery {
	out := d
	if d.Agent != nil {
		a := *d.Agent
		out.Agent = &a
	}
	out.AssignedAt = cloneTime(d.AssignedAt)
	out.PickedUpAt = cloneTime(d.PickedUpAt)
	out.DeliveredAt = cloneTime(d.DeliveredAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
