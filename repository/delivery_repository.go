package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"deliverySync/models"
)

// DeliveryRepository stores deliveries. Reads join the agents table so each
// delivery carries the current agent snapshot.
type DeliveryRepository struct {
	db DBTX
}

// NewDeliveryRepository creates a new DeliveryRepository.
func NewDeliveryRepository(db DBTX) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliverySelect = `SELECT d.id, d.order_id, d.restaurant_id, d.customer_id, d.agent_id, a.name, a.phone, a.vehicle_type,
       d.status, d.pickup_address, d.delivery_address, d.estimated_delivery_minutes, d.notes,
       d.created_at, d.assigned_at, d.picked_up_at, d.delivered_at, d.version
FROM deliveries d
LEFT JOIN agents a ON a.id = d.agent_id`

// Create inserts a delivery. Status defaults to PENDING.
func (r *DeliveryRepository) Create(ctx context.Context, d *models.Delivery) (*models.Delivery, error) {
	if d == nil {
		return nil, errors.New("delivery is nil")
	}
	if d.Status == "" {
		d.Status = models.DeliveryStatusPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var agentID any
	if d.Agent != nil {
		agentID = d.Agent.ID
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO deliveries (order_id, restaurant_id, customer_id, agent_id, status, pickup_address, delivery_address, estimated_delivery_minutes, notes, created_at, assigned_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.OrderID, d.RestaurantID, d.CustomerID, agentID, string(d.Status), d.PickupAddress, d.DeliveryAddress,
		d.EstimatedDeliveryTime, d.Notes, formatTime(d.CreatedAt), nullTime(d.AssignedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("created delivery not found: id=%d", id)
	}
	return out, nil
}

// GetByID fetches a delivery. It returns nil, nil when absent.
func (r *DeliveryRepository) GetByID(ctx context.Context, id int64) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDelivery(r.db.QueryRowContext(ctx, deliverySelect+` WHERE d.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetActiveByOrderID returns the non-terminal delivery of an order, if any.
func (r *DeliveryRepository) GetActiveByOrderID(ctx context.Context, orderID int64) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDelivery(r.db.QueryRowContext(ctx, deliverySelect+` WHERE d.order_id = ? AND d.status NOT IN ('DELIVERED','CANCELLED') LIMIT 1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ListDeliveriesParams filters List. Zero values match everything.
type ListDeliveriesParams struct {
	AgentID      *int64
	OrderID      *int64
	RestaurantID *int64
	CustomerID   *int64
	Statuses     []models.DeliveryStatus
	Unassigned   bool
}

// List returns deliveries matching p, newest first.
func (r *DeliveryRepository) List(ctx context.Context, p ListDeliveriesParams) ([]models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any
	if p.AgentID != nil {
		where = append(where, "d.agent_id = ?")
		args = append(args, *p.AgentID)
	}
	if p.OrderID != nil {
		where = append(where, "d.order_id = ?")
		args = append(args, *p.OrderID)
	}
	if p.RestaurantID != nil {
		where = append(where, "d.restaurant_id = ?")
		args = append(args, *p.RestaurantID)
	}
	if p.CustomerID != nil {
		where = append(where, "d.customer_id = ?")
		args = append(args, *p.CustomerID)
	}
	if len(p.Statuses) > 0 {
		where = append(where, "d.status IN ("+placeholders(len(p.Statuses))+")")
		for _, s := range p.Statuses {
			args = append(args, string(s))
		}
	}
	if p.Unassigned {
		where = append(where, "d.agent_id IS NULL")
	}
	query := deliverySelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.created_at DESC, d.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Assign sets the agent, moves the delivery to ASSIGNED and stamps assigned_at.
// With expectedVersion > 0 the write only happens if the stored version still
// matches; otherwise ErrVersionConflict is returned. It returns the new version.
func (r *DeliveryRepository) Assign(ctx context.Context, id, agentID int64, at time.Time, expectedVersion int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE deliveries SET agent_id = ?, status = ?, assigned_at = ?, version = version + 1
WHERE id = ? AND (? = 0 OR version = ?)`,
		agentID, string(models.DeliveryStatusAssigned), formatTime(at), id, expectedVersion, expectedVersion)
	if err != nil {
		return 0, err
	}
	return bumpedVersion(ctx, r.db, res, "deliveries", id)
}

// UpdateStatus writes status, stamping picked_up_at or delivered_at when the
// status calls for it. It returns the new version.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id int64, status models.DeliveryStatus, at time.Time, expectedVersion int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	set := "status = ?"
	args := []any{string(status)}
	switch status {
	case models.DeliveryStatusPickedUp:
		set += ", picked_up_at = ?"
		args = append(args, formatTime(at))
	case models.DeliveryStatusDelivered:
		set += ", delivered_at = ?"
		args = append(args, formatTime(at))
	}
	args = append(args, id, expectedVersion, expectedVersion)
	res, err := r.db.ExecContext(ctx, `UPDATE deliveries SET `+set+`, version = version + 1 WHERE id = ? AND (? = 0 OR version = ?)`, args...)
	if err != nil {
		return 0, err
	}
	return bumpedVersion(ctx, r.db, res, "deliveries", id)
}

func scanDelivery(row rowScanner) (models.Delivery, error) {
	var d models.Delivery
	var agentID sql.NullInt64
	var agentName, agentPhone, agentVehicle sql.NullString
	var status, created string
	var assigned, picked, delivered sql.NullString
	if err := row.Scan(&d.ID, &d.OrderID, &d.RestaurantID, &d.CustomerID, &agentID, &agentName, &agentPhone, &agentVehicle,
		&status, &d.PickupAddress, &d.DeliveryAddress, &d.EstimatedDeliveryTime, &d.Notes,
		&created, &assigned, &picked, &delivered, &d.Version); err != nil {
		return d, err
	}
	d.Status = models.DeliveryStatus(status)
	if agentID.Valid {
		d.Agent = &models.AgentRef{ID: agentID.Int64, Name: agentName.String, Phone: agentPhone.String, VehicleType: agentVehicle.String}
	}
	var err error
	if d.CreatedAt, err = parseTime(created); err != nil {
		return d, err
	}
	if d.AssignedAt, err = parseNullTime(assigned); err != nil {
		return d, err
	}
	if d.PickedUpAt, err = parseNullTime(picked); err != nil {
		return d, err
	}
	if d.DeliveredAt, err = parseNullTime(delivered); err != nil {
		return d, err
	}
	return d, nil
}
