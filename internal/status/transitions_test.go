package status

import (
	"errors"
	"testing"

	"deliverySync/models"
)

var allDelivery = []models.DeliveryStatus{
	models.DeliveryStatusPending, models.DeliveryStatusAssigned, models.DeliveryStatusPickedUp,
	models.DeliveryStatusInTransit, models.DeliveryStatusDelivered, models.DeliveryStatusCancelled,
}

var allOrder = []models.OrderStatus{
	models.OrderStatusPending, models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusPickedUp,
	models.OrderStatusInTransit, models.OrderStatusDelivered, models.OrderStatusCancelled,
}

func TestValidateDeliveryTransition_OnlyGraphEdges(t *testing.T) {
	legal := map[[2]models.DeliveryStatus]bool{
		{models.DeliveryStatusPending, models.DeliveryStatusAssigned}:    true,
		{models.DeliveryStatusAssigned, models.DeliveryStatusPickedUp}:   true,
		{models.DeliveryStatusPickedUp, models.DeliveryStatusInTransit}:  true,
		{models.DeliveryStatusInTransit, models.DeliveryStatusDelivered}: true,
	}
	for _, from := range allDelivery {
		if from != models.DeliveryStatusDelivered {
			legal[[2]models.DeliveryStatus{from, models.DeliveryStatusCancelled}] = true
		}
	}
	for _, from := range allDelivery {
		for _, to := range allDelivery {
			err := ValidateDeliveryTransition(from, to)
			want := legal[[2]models.DeliveryStatus{from, to}]
			if want && err != nil {
				t.Fatalf("%s -> %s rejected: %v", from, to, err)
			}
			if !want {
				if err == nil {
					t.Fatalf("%s -> %s accepted, want rejection", from, to)
				}
				if !errors.Is(err, models.ErrInvalidTransition) {
					t.Fatalf("%s -> %s err=%v, want ErrInvalidTransition", from, to, err)
				}
			}
		}
	}
}

func TestValidateOrderTransition_Graph(t *testing.T) {
	for _, from := range allOrder {
		for _, to := range allOrder {
			err := ValidateOrderTransition(from, to)
			next, hasNext := NextOrderStatus(from)
			want := (hasNext && next == to) || (to == models.OrderStatusCancelled && from != models.OrderStatusDelivered)
			if want != (err == nil) {
				t.Fatalf("%s -> %s: err=%v want legal=%v", from, to, err, want)
			}
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransitionOrder(models.OrderStatusReady, models.OrderStatusPickedUp) {
		t.Fatalf("READY -> PICKED_UP should be legal")
	}
	if CanTransitionOrder(models.OrderStatusDelivered, models.OrderStatusCancelled) {
		t.Fatalf("DELIVERED -> CANCELLED should be illegal")
	}
	if !CanTransitionDelivery(models.DeliveryStatusAssigned, models.DeliveryStatusCancelled) {
		t.Fatalf("ASSIGNED -> CANCELLED should be legal")
	}
	if CanTransitionDelivery(models.DeliveryStatusPending, models.DeliveryStatusPickedUp) {
		t.Fatalf("PENDING -> PICKED_UP skips ASSIGNED")
	}
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	if err := ValidateDeliveryTransition("FLYING", models.DeliveryStatusCancelled); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("unknown from status err=%v", err)
	}
	if err := ValidateOrderTransition(models.OrderStatusPending, "LOST"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("unknown to status err=%v", err)
	}
}

func TestValidateDeliveryChange_PickupRequiresReadyOrder(t *testing.T) {
	d := &models.Delivery{ID: 1, OrderID: 7, Status: models.DeliveryStatusAssigned, Agent: &models.AgentRef{ID: 1}}
	for _, st := range []models.OrderStatus{models.OrderStatusPending, models.OrderStatusPreparing} {
		o := &models.Order{ID: 7, Status: st}
		err := ValidateDeliveryChange(d, o, models.DeliveryStatusPickedUp)
		if !errors.Is(err, models.ErrOrderNotReady) {
			t.Fatalf("order %s: err=%v want ErrOrderNotReady", st, err)
		}
		if CanAdvanceDelivery(d, o, models.DeliveryStatusPickedUp) {
			t.Fatalf("order %s: action should be disabled", st)
		}
	}
	if d.Status != models.DeliveryStatusAssigned {
		t.Fatalf("delivery mutated: %s", d.Status)
	}
	ready := &models.Order{ID: 7, Status: models.OrderStatusReady}
	if err := ValidateDeliveryChange(d, ready, models.DeliveryStatusPickedUp); err != nil {
		t.Fatalf("ready order rejected: %v", err)
	}
}

func TestValidateDeliveryChange_PickupRequiresAgent(t *testing.T) {
	d := &models.Delivery{ID: 2, Status: models.DeliveryStatusAssigned}
	if err := ValidateDeliveryChange(d, nil, models.DeliveryStatusPickedUp); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err=%v want ErrInvalidTransition", err)
	}
}

func TestOrderEffect(t *testing.T) {
	cases := []struct {
		to   models.DeliveryStatus
		want models.OrderStatus
		ok   bool
	}{
		{models.DeliveryStatusAssigned, "", false},
		{models.DeliveryStatusPickedUp, "", false},
		{models.DeliveryStatusInTransit, models.OrderStatusInTransit, true},
		{models.DeliveryStatusDelivered, models.OrderStatusDelivered, true},
		{models.DeliveryStatusCancelled, "", false},
	}
	for _, c := range cases {
		got, ok := OrderEffect(c.to)
		if got != c.want || ok != c.ok {
			t.Fatalf("OrderEffect(%s)=(%s,%v) want (%s,%v)", c.to, got, ok, c.want, c.ok)
		}
	}
}
