// Package events fans committed changes out to push subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliverySync/internal/auth"
	"deliverySync/models"
)

// Type names what changed.
type Type string

const (
	OrderCreated          Type = "order.created"
	OrderStatusChanged    Type = "order.status_changed"
	DeliveryCreated       Type = "delivery.created"
	DeliveryAssigned      Type = "delivery.assigned"
	DeliveryStatusChanged Type = "delivery.status_changed"
	AgentRegistered       Type = "agent.registered"
	AgentStatusChanged    Type = "agent.status_changed"
)

// Event carries the full post-commit state of the touched entities so a
// subscriber can apply it without a follow-up read.
type Event struct {
	ID       string           `json:"id"`
	Type     Type             `json:"type"`
	At       time.Time        `json:"at"`
	Order    *models.Order    `json:"order,omitempty"`
	Delivery *models.Delivery `json:"delivery,omitempty"`
	Agent    *models.Agent    `json:"agent,omitempty"`
}

// Filter decides whether a subscriber receives an event. Nil passes everything.
type Filter func(Event) bool

// Publisher accepts events after commit.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Sink receives every published event, for example a message broker.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Hub is an in-process publish/subscribe fanout. A subscriber that falls
// a full buffer behind is dropped and its channel closed; it must resubscribe
// and reconcile by polling.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	sinks  []Sink
	log    *slog.Logger
	now    func() time.Time
	closed bool
}

// Subscription is one consumer of the hub.
type Subscription struct {
	id     string
	ch     chan Event
	filter Filter
	once   sync.Once
	hub    *Hub
}

// NewHub returns a hub with per-subscriber buffers of size buffer.
func NewHub(buffer int, log *slog.Logger, sinks ...Sink) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[string]*Subscription), buffer: buffer, sinks: sinks, log: log, now: time.Now}
}

// Subscribe registers a consumer.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	s := &Subscription{id: uuid.NewString(), ch: make(chan Event, h.buffer), filter: filter, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		s.once.Do(func() {})
		return s
	}
	h.subs[s.id] = s
	return s
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// C delivers events until the subscription is closed.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Publish stamps e and delivers it to matching subscribers and to every sink.
func (h *Hub) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = h.now().UTC()
	}

	var slow []*Subscription
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	for _, s := range h.subs {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("dropping slow event subscriber", "subscription", s.id)
		s.Close()
	}
	for _, sink := range h.sinks {
		if err := sink.Send(ctx, e); err != nil {
			h.log.Error("event sink failed", "event", e.Type, "error", err)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()
	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}

// ForAgent passes delivery events of one agent and agent events about it.
func ForAgent(agentID int64) Filter {
	return func(e Event) bool {
		switch {
		case e.Delivery != nil:
			return e.Delivery.AgentID() == agentID
		case e.Agent != nil:
			return e.Agent.ID == agentID
		}
		return false
	}
}

// ForRestaurant passes order and delivery events of one restaurant.
func ForRestaurant(restaurantID int64) Filter {
	return func(e Event) bool {
		switch {
		case e.Order != nil:
			return e.Order.RestaurantID == restaurantID
		case e.Delivery != nil:
			return e.Delivery.RestaurantID == restaurantID
		}
		return false
	}
}

// ForCustomer passes order and delivery events of one customer.
func ForCustomer(customerID int64) Filter {
	return func(e Event) bool {
		switch {
		case e.Order != nil:
			return e.Order.CustomerID == customerID
		case e.Delivery != nil:
			return e.Delivery.CustomerID == customerID
		}
		return false
	}
}

// ForPrincipal scopes the feed to what the caller may read. Admins and
// in-process callers (nil) see everything.
func ForPrincipal(p *auth.Principal) Filter {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case auth.KindAgent:
		return ForAgent(p.ID)
	case auth.KindRestaurant:
		return ForRestaurant(p.ID)
	case auth.KindCustomer:
		return ForCustomer(p.ID)
	}
	return nil
}

// OfTypes passes only the listed event types; none passes all.
func OfTypes(next Filter, types ...Type) Filter {
	if len(types) == 0 {
		return next
	}
	want := make(map[Type]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	return func(e Event) bool {
		if _, ok := want[e.Type]; !ok {
			return false
		}
		return next == nil || next(e)
	}
}
