package grpcserver

import (
	"deliverySync/internal/events"
	"deliverySync/models"
)

type AssignDeliveryRequest struct {
	DeliveryID      int64 `json:"deliveryId"`
	AgentID         int64 `json:"agentId"`
	ExpectedVersion int64 `json:"expectedVersion,omitempty"`
}

type AutoAssignDeliveryRequest struct {
	DeliveryID int64 `json:"deliveryId"`
}

type UpdateDeliveryStatusRequest struct {
	DeliveryID int64                 `json:"deliveryId"`
	Status     models.DeliveryStatus `json:"status"`
}

// UpdateDeliveryStatusResponse carries the order too when the change cascaded.
type UpdateDeliveryStatusResponse struct {
	Delivery *models.Delivery `json:"delivery"`
	Order    *models.Order    `json:"order,omitempty"`
}

type UpdateOrderStatusRequest struct {
	OrderID int64              `json:"orderId"`
	Status  models.OrderStatus `json:"status"`
}

type ListDeliveriesRequest struct {
	AgentID int64 `json:"agentId,omitempty"`
}

type ListDeliveriesResponse struct {
	Deliveries []models.Delivery `json:"deliveries"`
}

// WatchRequest narrows the stream to some event types. Empty means all the
// caller may see.
type WatchRequest struct {
	Types []events.Type `json:"types,omitempty"`
}
