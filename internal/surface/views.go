package surface

import (
	"time"

	"deliverySync/internal/notify"
	"deliverySync/internal/status"
	"deliverySync/models"
)

// Projection returns the combined label for orderID from local state.
func (s *Surface) Projection(orderID int64) (status.Projection, bool) {
	order, delivery, agent, ok := s.triple(orderID)
	if !ok {
		return status.Projection{}, false
	}
	return status.Project(order, delivery, agent), true
}

// Summary is the one-line tracking view of orderID.
func (s *Surface) Summary(orderID int64) (string, bool) {
	order, delivery, agent, ok := s.triple(orderID)
	if !ok {
		return "", false
	}
	return status.Summary(order, delivery, agent), true
}

func (s *Surface) triple(orderID int64) (*models.Order, *models.Delivery, *models.Agent, bool) {
	var order *models.Order
	if o, ok := s.store.Order(orderID); ok {
		order = &o
	}
	var delivery *models.Delivery
	if d, ok := s.store.DeliveryForOrder(orderID); ok {
		delivery = &d
	}
	if order == nil && delivery == nil {
		return nil, nil, nil, false
	}
	var agent *models.Agent
	if id := delivery.AgentID(); id != 0 {
		if a, ok := s.store.Agent(id); ok {
			agent = &a
		} else {
			// The snapshot on the delivery is enough to show who is coming.
			agent = &models.Agent{ID: id, Name: delivery.Agent.Name, Phone: delivery.Agent.Phone, VehicleType: delivery.Agent.VehicleType}
		}
	}
	return order, delivery, agent, true
}

// Notifications returns what the user has not dismissed.
func (s *Surface) Notifications() []notify.Notification {
	return s.feed.Since(s.sess.NotificationsClearedAt())
}

// ClearNotifications dismisses everything shown so far.
func (s *Surface) ClearNotifications() {
	s.sess.ClearNotifications(time.Now())
}

// LastNotification returns the newest notification.
func (s *Surface) LastNotification() (notify.Notification, bool) {
	return s.feed.Last()
}
