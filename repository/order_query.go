package repository

import (
	"context"
	"strings"
	"time"

	"deliverySync/models"
)

// ListOrdersParams represents filters and pagination for List.
type ListOrdersParams struct {
	RestaurantID *int64
	CustomerID   *int64
	Statuses     []models.OrderStatus
	PageSize     int   // 0 means no limit
	AfterID      int64 // keyset cursor: return orders with a smaller id
}

// List returns orders matching filters, newest first, with their items.
func (r *OrderRepository) List(ctx context.Context, p ListOrdersParams) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any
	if p.RestaurantID != nil {
		where = append(where, "restaurant_id = ?")
		args = append(args, *p.RestaurantID)
	}
	if p.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *p.CustomerID)
	}
	if len(p.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(p.Statuses))+")")
		for _, s := range p.Statuses {
			args = append(args, string(s))
		}
	}
	if p.AfterID > 0 {
		where = append(where, "id < ?")
		args = append(args, p.AfterID)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if p.PageSize > 0 {
		query += " LIMIT ?"
		args = append(args, p.PageSize)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}
