// Package surface assembles the client core one user runs: the local store
// kept fresh by polling and push, and the actions that mutate the backend.
package surface

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"deliverySync/internal/assign"
	"deliverySync/internal/events"
	"deliverySync/internal/notify"
	"deliverySync/internal/poller"
	"deliverySync/internal/session"
	"deliverySync/internal/store"
	"deliverySync/internal/throttle"
	"deliverySync/models"
)

// API is the slice of the backend client a surface uses.
type API interface {
	assign.Backend
	ListDeliveries(ctx context.Context) ([]models.Delivery, error)
	ListAgentDeliveries(ctx context.Context, agentID int64) ([]models.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status models.DeliveryStatus) (*models.Delivery, error)
	ListAgents(ctx context.Context, email string) ([]models.Agent, error)
	ListPendingAgents(ctx context.Context) ([]models.Agent, error)
	CreateAgent(ctx context.Context, in models.AgentRequest) (*models.Agent, error)
	ApproveAgent(ctx context.Context, agentID int64) (*models.Agent, error)
	RejectAgent(ctx context.Context, agentID int64) error
	UpdateAgentStatus(ctx context.Context, agentID int64, status models.AgentStatus) (*models.Agent, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListRestaurantOrders(ctx context.Context, restaurantID int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (*models.Order, error)
}

// EventSource is a push feed, typically *backend.EventStream.
type EventSource interface {
	Run(ctx context.Context, fn func(events.Event)) error
}

// ErrClosed is returned by actions after Close.
var ErrClosed = errors.New("surface closed")

// Options tunes a surface. Zero values take the defaults.
type Options struct {
	ThrottleWindow time.Duration
	Policy         assign.Policy
	Grace          time.Duration
	RequestTimeout time.Duration
	// CascadeOrder makes the surface write the implied order status itself
	// after a delivery change, for external backends that do not cascade and
	// accept the READY -> IN_TRANSIT jump. cmd/server cascades in one
	// transaction, so against it the option only costs a redundant request.
	CascadeOrder bool
	// Reconnect is the pause before redialling a dropped push feed.
	Reconnect time.Duration
	Events    EventSource
	Logger    *slog.Logger
	Notifiers []notify.Notifier
}

// Surface is one running admin, restaurant, agent or customer client.
type Surface struct {
	sess    *session.Session
	api     API
	store   *store.Store
	guard   *throttle.Guard
	sched   *poller.Scheduler
	coord   *assign.Coordinator
	feed    *notify.Feed
	log     *slog.Logger
	cascade bool
	timeout time.Duration

	events    EventSource
	reconnect time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	fetches map[string]poller.FetchFunc
	tracked map[int64]*tracking
}

// New builds a surface for sess. Nothing runs until Start.
func New(sess *session.Session, api API, opts Options) (*Surface, error) {
	if sess == nil || !sess.Valid() {
		return nil, session.ErrInvalidated
	}
	if api == nil {
		return nil, errors.New("surface: api is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("role", string(sess.Role()), "subject", sess.SubjectID())
	window := opts.ThrottleWindow
	if window <= 0 {
		window = throttle.DefaultWindow
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reconnect := opts.Reconnect
	if reconnect <= 0 {
		reconnect = 2 * time.Second
	}

	s := &Surface{
		sess:      sess,
		api:       api,
		store:     store.New(),
		guard:     throttle.New(window),
		feed:      notify.NewFeed(100, log, opts.Notifiers...),
		log:       log,
		cascade:   opts.CascadeOrder,
		timeout:   timeout,
		events:    opts.Events,
		reconnect: reconnect,
		fetches:   make(map[string]poller.FetchFunc),
		tracked:   make(map[int64]*tracking),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sched = poller.NewScheduler(s.guard,
		poller.WithLogger(log),
		poller.WithErrorHandler(func(key string, err error) {
			s.feed.Notify(notify.Failure("Could not refresh "+key, err))
		}),
	)
	if sess.Role() == session.RoleAdmin {
		policy := opts.Policy
		if policy == "" {
			policy = assign.PolicyShared
		}
		grace := opts.Grace
		if grace <= 0 {
			grace = assign.DefaultGrace
		}
		s.coord = assign.New(api, s.store,
			assign.WithPolicy(policy),
			assign.WithGrace(grace),
			assign.WithNotifier(s.feed),
			assign.WithRequestTimeout(timeout),
			assign.WithLogger(log),
		)
	}
	sess.OnInvalidate(s.Close)
	return s, nil
}

// Start launches the role's pollers, the auto-assign sweep for admins and
// the push consumer when an EventSource was given.
func (s *Surface) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	for _, p := range s.pollers() {
		s.poll(p.key, p.interval, p.fetch)
	}
	if s.coord != nil {
		s.coord.Watch()
	}
	if s.events != nil {
		s.wg.Add(1)
		go s.consume()
	}
	s.log.Info("surface started", "pollers", s.sched.Active())
	return nil
}

func (s *Surface) poll(key string, interval time.Duration, fetch poller.FetchFunc) *poller.Handle {
	s.mu.Lock()
	s.fetches[key] = fetch
	s.mu.Unlock()
	return s.sched.Start(key, interval, fetch)
}

// Close stops every timer, the sweep and the push consumer. It is idempotent
// and must not be called from a fetch callback.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.sched.StopAll()
	if s.coord != nil {
		s.coord.Stop()
	}
	s.wg.Wait()
	s.log.Info("surface closed")
}

// Logout closes the surface and ends the session.
func (s *Surface) Logout() {
	s.Close()
	s.sess.Invalidate()
}

func (s *Surface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Store exposes the local entity store for reading.
func (s *Surface) Store() *store.Store { return s.store }

// Session returns the surface session.
func (s *Surface) Session() *session.Session { return s.sess }

// Coordinator is nil unless the surface is an admin one.
func (s *Surface) Coordinator() *assign.Coordinator { return s.coord }

// ActivePollers returns how many timers are running.
func (s *Surface) ActivePollers() int { return s.sched.Active() }

func (s *Surface) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
