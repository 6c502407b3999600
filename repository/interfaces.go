package repository

import (
	"context"
	"database/sql"
	"time"

	"deliverySync/models"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repositories can run inside a
// caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OrderRepositoryI defines operations on Order entities.
type OrderRepositoryI interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	List(ctx context.Context, p ListOrdersParams) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id int64, status models.OrderStatus, expectedVersion int64) (int64, error)
}

// DeliveryRepositoryI defines operations on Delivery entities.
type DeliveryRepositoryI interface {
	Create(ctx context.Context, d *models.Delivery) (*models.Delivery, error)
	GetByID(ctx context.Context, id int64) (*models.Delivery, error)
	GetActiveByOrderID(ctx context.Context, orderID int64) (*models.Delivery, error)
	List(ctx context.Context, p ListDeliveriesParams) ([]models.Delivery, error)
	Assign(ctx context.Context, id, agentID int64, at time.Time, expectedVersion int64) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status models.DeliveryStatus, at time.Time, expectedVersion int64) (int64, error)
}

// AgentRepositoryI defines operations on Agent entities.
type AgentRepositoryI interface {
	Create(ctx context.Context, a *models.Agent) (*models.Agent, error)
	GetByID(ctx context.Context, id int64) (*models.Agent, error)
	GetByEmail(ctx context.Context, email string) (*models.Agent, error)
	List(ctx context.Context, statuses ...models.AgentStatus) ([]models.Agent, error)
	UpdateStatus(ctx context.Context, id int64, status models.AgentStatus, at time.Time) error
}

var (
	_ OrderRepositoryI    = (*OrderRepository)(nil)
	_ DeliveryRepositoryI = (*DeliveryRepository)(nil)
	_ AgentRepositoryI    = (*AgentRepository)(nil)
)
