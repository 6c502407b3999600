// Package store keeps a surface's local copy of orders, deliveries and agents.
//
// Writes are last-writer-wins by arrival: whichever response is applied last
// replaces what was there, regardless of when its request was issued.
package store

import (
	"sort"
	"sync"

	"deliverySync/models"
)

// Kind names the collection touched by a change.
type Kind string

const (
	KindOrders        Kind = "orders"
	KindDeliveries    Kind = "deliveries"
	KindAgents        Kind = "agents"
	KindPendingAgents Kind = "pending_agents"
)

// Change is delivered to listeners after every write.
type Change struct {
	Kind Kind
	IDs  []int64
}

// Listener is called synchronously after a write, outside the store lock.
type Listener func(Change)

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	orders     map[int64]models.Order
	deliveries map[int64]models.Delivery
	agents     map[int64]models.Agent
	pending    map[int64]models.Agent

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orders:     make(map[int64]models.Order),
		deliveries: make(map[int64]models.Delivery),
		agents:     make(map[int64]models.Agent),
		pending:    make(map[int64]models.Agent),
		listeners:  make(map[int]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.lmu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.lmu.Unlock()
	for _, l := range ls {
		l(c)
	}
}

// ReplaceDeliveries swaps in a full collection response.
func (s *Store) ReplaceDeliveries(list []models.Delivery) {
	next := make(map[int64]models.Delivery, len(list))
	ids := make([]int64, 0, len(list))
	for _, d := range list {
		next[d.ID] = d.Clone()
		ids = append(ids, d.ID)
	}
	s.mu.Lock()
	s.deliveries = next
	s.mu.Unlock()
	s.emit(Change{Kind: KindDeliveries, IDs: ids})
}

// PutDeliveries merges a partial response, such as deliveries of one agent.
func (s *Store) PutDeliveries(list ...models.Delivery) {
	if len(list) == 0 {
		return
	}
	ids := make([]int64, 0, len(list))
	s.mu.Lock()
	for _, d := range list {
		s.deliveries[d.ID] = d.Clone()
		ids = append(ids, d.ID)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: KindDeliveries, IDs: ids})
}

// Delivery returns a copy of the delivery with id.
func (s *Store) Delivery(id int64) (models.Delivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return models.Delivery{}, false
	}
	return d.Clone(), true
}

// DeliveryForOrder returns the non-terminal delivery of an order, falling back
// to any delivery of it.
func (s *Store) DeliveryForOrder(orderID int64) (models.Delivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Delivery
	for _, d := range s.deliveries {
		if d.OrderID != orderID {
			continue
		}
		d := d
		if !d.Status.Terminal() {
			c := d.Clone()
			return c, true
		}
		if found == nil || d.ID > found.ID {
			found = &d
		}
	}
	if found == nil {
		return models.Delivery{}, false
	}
	return found.Clone(), true
}

// Deliveries returns copies of all deliveries ordered by id.
func (s *Store) Deliveries() []models.Delivery {
	s.mu.RLock()
	out := make([]models.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceOrders swaps in a full collection response.
func (s *Store) ReplaceOrders(list []models.Order) {
	next := make(map[int64]models.Order, len(list))
	ids := make([]int64, 0, len(list))
	for _, o := range list {
		next[o.ID] = o.Clone()
		ids = append(ids, o.ID)
	}
	s.mu.Lock()
	s.orders = next
	s.mu.Unlock()
	s.emit(Change{Kind: KindOrders, IDs: ids})
}

// PutOrders merges a partial response.
func (s *Store) PutOrders(list ...models.Order) {
	if len(list) == 0 {
		return
	}
	ids := make([]int64, 0, len(list))
	s.mu.Lock()
	for _, o := range list {
		s.orders[o.ID] = o.Clone()
		ids = append(ids, o.ID)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: KindOrders, IDs: ids})
}

// Order returns the order with id.
func (s *Store) Order(id int64) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o.Clone(), ok
}

// Orders returns all orders ordered by id.
func (s *Store) Orders() []models.Order {
	s.mu.RLock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplaceAgents swaps in a full agent list.
func (s *Store) ReplaceAgents(list []models.Agent) {
	next := make(map[int64]models.Agent, len(list))
	ids := make([]int64, 0, len(list))
	for _, a := range list {
		next[a.ID] = a
		ids = append(ids, a.ID)
	}
	s.mu.Lock()
	s.agents = next
	s.mu.Unlock()
	s.emit(Change{Kind: KindAgents, IDs: ids})
}

// PutAgents merges agents, such as one pushed by an event.
func (s *Store) PutAgents(list ...models.Agent) {
	if len(list) == 0 {
		return
	}
	ids := make([]int64, 0, len(list))
	s.mu.Lock()
	for _, a := range list {
		s.agents[a.ID] = a
		if a.Status == models.AgentStatusPendingApproval {
			s.pending[a.ID] = a
		} else {
			delete(s.pending, a.ID)
		}
		ids = append(ids, a.ID)
	}
	s.mu.Unlock()
	s.emit(Change{Kind: KindAgents, IDs: ids})
}

// Agent returns the agent with id.
func (s *Store) Agent(id int64) (models.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

// Agents returns all agents ordered by id.
func (s *Store) Agents() []models.Agent {
	s.mu.RLock()
	out := make([]models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplacePendingAgents swaps in the approval queue.
func (s *Store) ReplacePendingAgents(list []models.Agent) {
	next := make(map[int64]models.Agent, len(list))
	ids := make([]int64, 0, len(list))
	for _, a := range list {
		next[a.ID] = a
		ids = append(ids, a.ID)
	}
	s.mu.Lock()
	s.pending = next
	s.mu.Unlock()
	s.emit(Change{Kind: KindPendingAgents, IDs: ids})
}

// PendingAgents returns the approval queue ordered by id.
func (s *Store) PendingAgents() []models.Agent {
	s.mu.RLock()
	out := make([]models.Agent, 0, len(s.pending))
	for _, a := range s.pending {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
