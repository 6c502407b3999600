package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deliverySync/internal/notify"
	"deliverySync/internal/store"
	"deliverySync/models"
)

// DefaultGrace is how long a new pending delivery stays visible to the
// administrator before the sweep assigns it.
const DefaultGrace = time.Second

var (
	// ErrDialogClosed is returned when a dismissed dialog is confirmed.
	ErrDialogClosed = errors.New("assignment dialog closed")
	// ErrStaleDialog is returned when the delivery changed while the dialog was open.
	ErrStaleDialog = errors.New("delivery changed since the dialog opened")
)

// Backend issues the assignment request. expectedVersion is 0 when the
// caller does not know the version.
type Backend interface {
	AssignDelivery(ctx context.Context, deliveryID, agentID, expectedVersion int64) (*models.Delivery, error)
}

// Coordinator assigns deliveries on request and through the auto-assign sweep.
type Coordinator struct {
	api      Backend
	store    *store.Store
	notifier notify.Notifier
	policy   Policy
	picker   Picker
	grace    time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timers   map[int64]*sweepTimer
	inflight map[int64]bool
	held     map[int64]int
	stopped  bool
	unwatch  func()
	fires    sync.WaitGroup
}

type sweepTimer struct{ t *time.Timer }

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the agent exclusivity policy.
func WithPolicy(p Policy) Option { return func(c *Coordinator) { c.policy = p } }

// WithPicker replaces the uniform random picker.
func WithPicker(p Picker) Option { return func(c *Coordinator) { c.picker = p } }

// WithGrace sets the sweep delay.
func WithGrace(d time.Duration) Option { return func(c *Coordinator) { c.grace = d } }

// WithNotifier sets where outcomes are reported.
func WithNotifier(n notify.Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

// WithClock overrides the clock used for assignedAt.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithRequestTimeout bounds each sweep-issued request.
func WithRequestTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

type discard struct{}

func (discard) Notify(notify.Notification) {}

// New returns a coordinator working on st and sending requests through api.
func New(api Backend, st *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:      api,
		store:    st,
		notifier: discard{},
		policy:   PolicyShared,
		picker:   Uniform,
		grace:    DefaultGrace,
		timeout:  10 * time.Second,
		now:      time.Now,
		log:      slog.Default(),
		timers:   make(map[int64]*sweepTimer),
		inflight: make(map[int64]bool),
		held:     make(map[int64]int),
	}
	for _, o := range opts {
		o(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// report forwards n unless the coordinator has been stopped.
func (c *Coordinator) report(n notify.Notification) {
	if c.ctx.Err() != nil {
		return
	}
	c.notifier.Notify(n)
}

// Policy returns the configured exclusivity policy.
func (c *Coordinator) Policy() Policy { return c.policy }

// ManualAssign gives deliveryID to agentID. The agent must be ACTIVE in the
// store at call time; the delivery may be in any status.
func (c *Coordinator) ManualAssign(ctx context.Context, deliveryID, agentID int64) (models.Delivery, error) {
	d, ok := c.store.Delivery(deliveryID)
	if !ok {
		err := fmt.Errorf("delivery %d: %w", deliveryID, models.ErrNotFound)
		c.report(notify.Failure("Assignment failed", err))
		return models.Delivery{}, err
	}
	var agent *models.Agent
	if a, ok := c.store.Agent(agentID); ok {
		agent = &a
	}
	if err := CheckEligible(agent, c.store.Deliveries(), c.policy, deliveryID); err != nil {
		c.report(notify.Failure("Assignment failed", err))
		return d, err
	}
	out, err := c.assign(ctx, d, *agent)
	if err != nil {
		c.report(notify.Failure("Assignment failed", err))
		return d, err
	}
	c.report(notify.Success("Agent assigned", fmt.Sprintf("Delivery #%d assigned to %s", out.ID, agent.Name)))
	return out, nil
}

// AutoAssign picks a random eligible agent for d. With no candidates it
// reports ErrNoAgentsAvailable and leaves d untouched; nothing is retried.
func (c *Coordinator) AutoAssign(ctx context.Context, d models.Delivery) (models.Delivery, error) {
	agent, err := SelectAgent(c.store.Agents(), c.store.Deliveries(), c.policy, c.picker, d.ID)
	if err != nil {
		err = fmt.Errorf("delivery %d: %w", d.ID, err)
		c.report(notify.Failure("Auto-assignment failed", err))
		return d, err
	}
	out, err := c.assign(ctx, d, agent)
	if err != nil {
		c.report(notify.Failure("Auto-assignment failed", err))
		return d, err
	}
	c.report(notify.Success("Agent auto-assigned", fmt.Sprintf("Delivery #%d assigned to %s", out.ID, agent.Name)))
	return out, nil
}

func (c *Coordinator) assign(ctx context.Context, d models.Delivery, agent models.Agent) (models.Delivery, error) {
	resp, err := c.api.AssignDelivery(ctx, d.ID, agent.ID, d.Version)
	if err != nil {
		return d, fmt.Errorf("assign delivery %d to agent %d: %w", d.ID, agent.ID, err)
	}
	next := d.Clone()
	now := c.now()
	next.Agent = agent.Ref()
	next.Status = models.DeliveryStatusAssigned
	next.AssignedAt = &now
	if resp != nil && resp.ID == d.ID {
		next = resp.Clone()
		if next.AssignedAt == nil {
			next.AssignedAt = &now
		}
	}
	c.store.PutDeliveries(next)
	c.log.Info("delivery assigned", "delivery_id", d.ID, "agent_id", agent.ID)
	return next, nil
}

// ScheduleSweep arms a grace timer for every pending unassigned delivery that
// has none yet. A delivery with no eligible agent under the policy gets no
// timer, and loses one it already had. It returns the number of timers armed
// by this call.
func (c *Coordinator) ScheduleSweep(deliveries []models.Delivery, agents []models.Agent) int {
	armed := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0
	}
	for i := range deliveries {
		d := &deliveries[i]
		if !d.AwaitingAgent() || len(Candidates(agents, deliveries, c.policy, d.ID)) == 0 {
			if st, ok := c.timers[d.ID]; ok {
				st.t.Stop()
				delete(c.timers, d.ID)
			}
			continue
		}
		if _, ok := c.timers[d.ID]; ok || c.inflight[d.ID] || c.held[d.ID] > 0 {
			continue
		}
		id := d.ID
		st := &sweepTimer{}
		st.t = time.AfterFunc(c.grace, func() { c.fire(id, st) })
		c.timers[id] = st
		armed++
	}
	return armed
}

func (c *Coordinator) fire(id int64, st *sweepTimer) {
	c.mu.Lock()
	if c.stopped || c.timers[id] != st {
		c.mu.Unlock()
		return
	}
	delete(c.timers, id)
	c.inflight[id] = true
	c.fires.Add(1)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		c.fires.Done()
	}()

	d, ok := c.store.Delivery(id)
	if !ok || !d.AwaitingAgent() {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	if _, err := c.AutoAssign(ctx, d); err != nil && c.ctx.Err() == nil {
		c.log.Warn("sweep assignment failed", "delivery_id", id, "error", err)
	}
}

// Watch re-arms the sweep on every store change until Stop.
func (c *Coordinator) Watch() {
	unwatch := c.store.Subscribe(func(ch store.Change) {
		if ch.Kind == store.KindDeliveries || ch.Kind == store.KindAgents {
			c.ScheduleSweep(c.store.Deliveries(), c.store.Agents())
		}
	})
	c.mu.Lock()
	if c.unwatch != nil {
		c.unwatch()
	}
	c.unwatch = unwatch
	c.mu.Unlock()
	c.ScheduleSweep(c.store.Deliveries(), c.store.Agents())
}

// CancelSweep drops the pending timer of one delivery.
func (c *Coordinator) CancelSweep(deliveryID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.timers[deliveryID]
	if !ok {
		return false
	}
	st.t.Stop()
	delete(c.timers, deliveryID)
	return true
}

// PendingSweeps returns how many timers are armed.
func (c *Coordinator) PendingSweeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels all timers and in-flight sweep requests, detaches from the
// store and waits for running sweeps to return. Nothing is reported afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for id, st := range c.timers {
		st.t.Stop()
		delete(c.timers, id)
	}
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	c.cancel()
	c.fires.Wait()
}
