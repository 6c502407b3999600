// Package poller runs periodic refreshes of remote resources, gated by a throttle.Guard.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deliverySync/internal/throttle"
)

// Resource keys and intervals used by the surfaces.
const (
	KeyDeliveries      = "deliveries"
	KeyAgentDeliveries = "deliveries:agent"
	KeyOrders          = "orders"
	KeyAgents          = "agents"
	KeyPendingAgents   = "agents:pending"
	KeyTrackDelivery   = "track:delivery"
	KeyTrackOrder      = "track:order"

	AdminDeliveriesInterval = 5 * time.Second
	AgentDeliveriesInterval = 10 * time.Second
	OrdersInterval          = 5 * time.Second
	AgentsInterval          = 5 * time.Second
	PendingAgentsInterval   = 5 * time.Second
	TrackDeliveryInterval   = 3 * time.Second
	TrackOrderInterval      = 5 * time.Second
)

// FetchFunc performs one refresh. The context is cancelled when the owning handle stops.
type FetchFunc func(ctx context.Context) error

// ErrorFunc receives failed fetches. Failures never stop a timer.
type ErrorFunc func(key string, err error)

// Scheduler owns every polling timer of one surface.
type Scheduler struct {
	guard   *throttle.Guard
	onError ErrorFunc
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	handles map[*Handle]struct{}
	closed  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithErrorHandler sets the callback for failed fetches.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithClock overrides the clock handed to the guard.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler returns a scheduler gated by guard. A nil guard uses the default window.
func NewScheduler(guard *throttle.Guard, opts ...Option) *Scheduler {
	if guard == nil {
		guard = throttle.New(throttle.DefaultWindow)
	}
	s := &Scheduler{
		guard:   guard,
		log:     slog.Default(),
		now:     time.Now,
		handles: make(map[*Handle]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle cancels one registered timer.
type Handle struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Key returns the resource key the handle polls.
func (h *Handle) Key() string { return h.key }

// Cancel stops the timer. No new fetch starts afterwards; a fetch already
// running sees its context cancelled. Safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the timer goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Start registers a timer for key that fires immediately and then every interval.
// After StopAll the returned handle is already stopped.
func (s *Scheduler) Start(key string, interval time.Duration, fetch FetchFunc) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{key: key, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		close(h.done)
		return h
	}
	s.handles[h] = struct{}{}
	s.mu.Unlock()

	go s.run(ctx, h, interval, fetch)
	return h
}

func (s *Scheduler) run(ctx context.Context, h *Handle, interval time.Duration, fetch FetchFunc) {
	defer func() {
		s.mu.Lock()
		delete(s.handles, h)
		s.mu.Unlock()
		close(h.done)
	}()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx, h.key, fetch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, h.key, fetch)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, key string, fetch FetchFunc) {
	if ctx.Err() != nil {
		return
	}
	if !s.guard.ShouldFetch(key, s.now()) {
		s.log.Debug("fetch throttled", "resource", key)
		return
	}
	if err := fetch(ctx); err != nil && ctx.Err() == nil {
		s.report(key, err)
	}
}

func (s *Scheduler) report(key string, err error) {
	s.log.Warn("poll failed", "resource", key, "error", err)
	if s.onError != nil {
		s.onError(key, err)
	}
}

// Refresh runs fetch now, bypassing the throttle window, as for an explicit user refresh.
func (s *Scheduler) Refresh(ctx context.Context, key string, fetch FetchFunc) error {
	s.guard.ForceFetch(key)
	return fetch(ctx)
}

// Active returns the number of running timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// StopAll cancels every timer, waits for their goroutines to exit and refuses new ones.
// It must not be called from inside a FetchFunc.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.closed = true
	hs := make([]*Handle, 0, len(s.handles))
	for h := range s.handles {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h.Cancel()
	}
	for _, h := range hs {
		<-h.done
	}
}
