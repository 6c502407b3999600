package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"deliverySync/models"
)

// OrderRepository is the core repository for Order entities and their items.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, restaurant_id, customer_id, total_cents, status, created_at, version`

// Create inserts an order and its items. Status defaults to PENDING and
// CreatedAt to now; TotalCents is stored as given.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO orders (restaurant_id, customer_id, total_cents, status, created_at) VALUES (?,?,?,?,?)`,
		o.RestaurantID, o.CustomerID, o.TotalCents, string(o.Status), formatTime(o.CreatedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	for i, it := range o.Items {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO order_items (order_id, position, menu_item_id, quantity, unit_price_cents) VALUES (?,?,?,?,?)`,
			id, i, it.MenuItemID, it.Quantity, it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	out, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("created order not found: id=%d", id)
	}
	return out, nil
}

// GetByID fetches an order with its items. It returns nil, nil when absent.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	items, err := r.loadItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// UpdateStatus writes status and bumps the version. expectedVersion 0 skips
// the version check. It returns the new version.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status models.OrderStatus, expectedVersion int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, version = version + 1 WHERE id = ? AND (? = 0 OR version = ?)`,
		string(status), id, expectedVersion, expectedVersion)
	if err != nil {
		return 0, err
	}
	return bumpedVersion(ctx, r.db, res, "orders", id)
}

// bumpedVersion reports the row's version after a conditional update, or
// tells a missing row apart from a lost version race.
func bumpedVersion(ctx context.Context, db DBTX, res sql.Result, table string, id int64) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	var version int64
	err = db.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %d: %w", table, id, models.ErrNotFound)
	} else if err != nil {
		return 0, err
	}
	if n == 0 {
		return version, fmt.Errorf("%s %d at version %d: %w", table, id, version, models.ErrVersionConflict)
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (models.Order, error) {
	var o models.Order
	var status, created string
	if err := row.Scan(&o.ID, &o.RestaurantID, &o.CustomerID, &o.TotalCents, &status, &created, &o.Version); err != nil {
		return o, err
	}
	o.Status = models.OrderStatus(status)
	t, err := parseTime(created)
	if err != nil {
		return o, err
	}
	o.CreatedAt = t
	return o, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, ids []int64) (map[int64][]models.OrderItem, error) {
	out := make(map[int64][]models.OrderItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `SELECT order_id, menu_item_id, quantity, unit_price_cents FROM order_items WHERE order_id IN (`+placeholders(len(ids))+`) ORDER BY order_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID int64
		var it models.OrderItem
		if err := rows.Scan(&orderID, &it.MenuItemID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}
