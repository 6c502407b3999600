package status

import (
	"fmt"

	"github.com/shopspring/decimal"

	"deliverySync/models"
)

// Stage orders the combined progress of an order and its delivery.
type Stage int

const (
	StageUnknown Stage = iota
	StageAwaitingRestaurant
	StagePreparing
	StageReady
	StageAssigned
	StagePickedUp
	StageInTransit
	StageDelivered
	StageCancelled
)

// Labels shown to users.
const (
	LabelUnknown            = "Unknown"
	LabelAwaitingRestaurant = "Awaiting Restaurant Confirmation"
	LabelPreparing          = "Preparing"
	LabelPreparingAssigned  = "Preparing, agent assigned"
	LabelReadyWaiting       = "Ready for Pickup, waiting for agent"
	LabelReadyAssigned      = "Ready for Pickup, agent on the way"
	LabelAssigned           = "Agent Assigned"
	LabelCollected          = "Order Collected"
	LabelInTransit          = "On the Way"
	LabelDelivered          = "Delivered"
	LabelCancelled          = "Cancelled"
)

// Source names the record whose status decided the projection.
type Source string

const (
	SourceNone     Source = ""
	SourceOrder    Source = "order"
	SourceDelivery Source = "delivery"
)

// Projection is the single status a user sees for an order and its delivery.
type Projection struct {
	Label  string `json:"label"`
	Stage  Stage  `json:"stage"`
	Source Source `json:"source"`
}

func orderStage(s models.OrderStatus) Stage {
	switch s {
	case models.OrderStatusPending:
		return StageAwaitingRestaurant
	case models.OrderStatusPreparing:
		return StagePreparing
	case models.OrderStatusReady:
		return StageReady
	case models.OrderStatusPickedUp:
		return StagePickedUp
	case models.OrderStatusInTransit:
		return StageInTransit
	case models.OrderStatusDelivered:
		return StageDelivered
	case models.OrderStatusCancelled:
		return StageCancelled
	}
	return StageUnknown
}

func deliveryStage(s models.DeliveryStatus) Stage {
	switch s {
	case models.DeliveryStatusAssigned:
		return StageAssigned
	case models.DeliveryStatusPickedUp:
		return StagePickedUp
	case models.DeliveryStatusInTransit:
		return StageInTransit
	case models.DeliveryStatusDelivered:
		return StageDelivered
	case models.DeliveryStatusCancelled:
		return StageCancelled
	}
	return StageUnknown
}

func terminal(st Stage) Projection {
	if st == StageCancelled {
		return Projection{Label: LabelCancelled, Stage: StageCancelled}
	}
	return Projection{Label: LabelDelivered, Stage: StageDelivered}
}

// Project derives the combined status. A terminal delivery wins, then a
// terminal order; otherwise the more advanced in-flight signal is shown, since
// the order write that follows a delivery action may be seen first on a faster
// poll. Any of the arguments may be nil.
func Project(order *models.Order, delivery *models.Delivery, agent *models.Agent) Projection {
	if delivery != nil && delivery.Status.Terminal() {
		p := terminal(deliveryStage(delivery.Status))
		p.Source = SourceDelivery
		return p
	}
	if order != nil && order.Status.Terminal() {
		p := terminal(orderStage(order.Status))
		p.Source = SourceOrder
		return p
	}

	var os, ds Stage
	if order != nil {
		os = orderStage(order.Status)
	}
	if delivery != nil {
		ds = deliveryStage(delivery.Status)
	}
	if os >= StagePickedUp || ds >= StagePickedUp {
		src, st := SourceOrder, os
		if ds > os {
			src, st = SourceDelivery, ds
		}
		label := LabelCollected
		if st == StageInTransit {
			label = LabelInTransit
		}
		return Projection{Label: label, Stage: st, Source: src}
	}

	hasAgent := agent != nil || (delivery != nil && delivery.Agent != nil)
	switch {
	case order == nil && delivery == nil:
		return Projection{Label: LabelUnknown, Stage: StageUnknown}
	case order == nil:
		if hasAgent {
			return Projection{Label: LabelAssigned, Stage: StageAssigned, Source: SourceDelivery}
		}
		return Projection{Label: LabelAwaitingRestaurant, Stage: StageAwaitingRestaurant, Source: SourceDelivery}
	}

	switch order.Status {
	case models.OrderStatusReady:
		if hasAgent {
			return Projection{Label: LabelReadyAssigned, Stage: StageAssigned, Source: SourceOrder}
		}
		return Projection{Label: LabelReadyWaiting, Stage: StageReady, Source: SourceOrder}
	case models.OrderStatusPreparing:
		if hasAgent {
			return Projection{Label: LabelPreparingAssigned, Stage: StagePreparing, Source: SourceOrder}
		}
		return Projection{Label: LabelPreparing, Stage: StagePreparing, Source: SourceOrder}
	default:
		return Projection{Label: LabelAwaitingRestaurant, Stage: StageAwaitingRestaurant, Source: SourceOrder}
	}
}

// FormatCents renders an integer amount of cents as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Summary renders one line for logs and terminal dashboards.
func Summary(order *models.Order, delivery *models.Delivery, agent *models.Agent) string {
	p := Project(order, delivery, agent)
	var id int64
	var total string
	if order != nil {
		id = order.ID
		total = FormatCents(order.TotalCents)
	} else if delivery != nil {
		id = delivery.OrderID
	}
	who := "unassigned"
	switch {
	case agent != nil:
		who = agent.Name
	case delivery != nil && delivery.Agent != nil:
		who = delivery.Agent.Name
		if who == "" {
			who = fmt.Sprintf("agent #%d", delivery.Agent.ID)
		}
	}
	if total == "" {
		return fmt.Sprintf("order #%d: %s (%s)", id, p.Label, who)
	}
	return fmt.Sprintf("order #%d [%s]: %s (%s)", id, total, p.Label, who)
}
