// Package service owns the authoritative Order, Delivery and Agent state.
// Every operation runs in one sqlite transaction and publishes the resulting
// events after commit.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"deliverySync/internal/assign"
	"deliverySync/internal/auth"
	"deliverySync/internal/events"
	"deliverySync/models"
	"deliverySync/repository"
)

// Service coordinates writes across orders, deliveries and agents.
type Service struct {
	db     *sql.DB
	pub    events.Publisher
	policy assign.Policy
	picker assign.Picker
	now    func() time.Time
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the agent exclusivity policy.
func WithPolicy(p assign.Policy) Option { return func(s *Service) { s.policy = p } }

// WithPicker replaces the uniform random agent picker.
func WithPicker(p assign.Picker) Option { return func(s *Service) { s.picker = p } }

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) {}

// New returns a service over db. pub may be nil.
func New(db *sql.DB, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	s := &Service{db: db, pub: pub, policy: assign.PolicyShared, picker: assign.Uniform, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Policy returns the exclusivity policy in force.
func (s *Service) Policy() assign.Policy { return s.policy }

type repos struct {
	orders     *repository.OrderRepository
	deliveries *repository.DeliveryRepository
	agents     *repository.AgentRepository
}

// tx runs fn in a transaction and publishes the events it returns after commit.
func (s *Service) tx(ctx context.Context, fn func(r repos) ([]events.Event, error)) error {
	var out []events.Event
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		out, err = fn(repos{
			orders:     repository.NewOrderRepository(tx),
			deliveries: repository.NewDeliveryRepository(tx),
			agents:     repository.NewAgentRepository(tx),
		})
		return err
	})
	if err != nil {
		return err
	}
	for _, e := range out {
		s.pub.Publish(ctx, e)
	}
	return nil
}

// read returns repositories bound to the pool, outside any transaction.
func (s *Service) read() repos {
	return repos{
		orders:     repository.NewOrderRepository(s.db),
		deliveries: repository.NewDeliveryRepository(s.db),
		agents:     repository.NewAgentRepository(s.db),
	}
}

func (s *Service) stamp() time.Time { return s.now().UTC() }

// caller returns the principal, or nil for in-process callers with no principal.
func caller(ctx context.Context) *auth.Principal {
	p, _ := auth.FromContext(ctx)
	return p
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, models.ErrForbidden)...)
}

// canSeeOrder reports whether the caller may read or act on o.
func canSeeOrder(p *auth.Principal, o *models.Order) bool {
	if p == nil || p.Kind == auth.KindAdmin {
		return true
	}
	switch p.Kind {
	case auth.KindRestaurant:
		return o.RestaurantID == p.ID
	case auth.KindCustomer:
		return o.CustomerID == p.ID
	}
	return false
}

// canSeeDelivery reports whether the caller may read d.
func canSeeDelivery(p *auth.Principal, d *models.Delivery) bool {
	if p == nil || p.Kind == auth.KindAdmin {
		return true
	}
	switch p.Kind {
	case auth.KindAgent:
		return d.AgentID() == p.ID
	case auth.KindRestaurant:
		return d.RestaurantID == p.ID
	case auth.KindCustomer:
		return d.CustomerID == p.ID
	}
	return false
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, models.ErrNotFound)
}
