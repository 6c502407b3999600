package models

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the current progress of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusPickedUp  OrderStatus = "PICKED_UP"
	OrderStatusInTransit OrderStatus = "IN_TRANSIT"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusPickedUp,
		OrderStatusInTransit, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// OrderItem is one line of an order. Lines keep their checkout order.
type OrderItem struct {
	MenuItemID     int64 `db:"menu_item_id" json:"menuItemId"`
	Quantity       int   `db:"quantity" json:"quantity"`
	UnitPriceCents int64 `db:"unit_price_cents" json:"unitPriceCents"`
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// Subtotal returns quantity * unit price in cents, without overflow.
func (i OrderItem) Subtotal() decimal.Decimal {
	return decimal.NewFromInt(i.UnitPriceCents).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order represents a customer purchase.
// TotalCents is fixed at creation and never recomputed from Items afterwards.
type Order struct {
	ID           int64       `db:"id" json:"id"`
	RestaurantID int64       `db:"restaurant_id" json:"restaurantId"`
	CustomerID   int64       `db:"customer_id" json:"customerId"`
	TotalCents   int64       `db:"total_cents" json:"totalCents"`
	Status       OrderStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	Items        []OrderItem `json:"items"`
	Version      int64       `db:"version" json:"version"`
}

// ItemsTotalCents sums the line subtotals. Only checkout uses it to fill TotalCents.
// A total that does not fit in int64 cents is ErrInvalidArgument.
func (o *Order) ItemsTotalCents() (int64, error) {
	return itemsTotalCents(o.Items)
}

func itemsTotalCents(items []OrderItem) (int64, error) {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	if total.GreaterThan(maxCents) || total.IsNegative() {
		return 0, fmt.Errorf("order total %s cents out of range: %w", total.String(), ErrInvalidArgument)
	}
	return total.IntPart(), nil
}

// Clone returns a copy that shares no items with o.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = append([]OrderItem(nil), o.Items...)
	}
	return out
}
