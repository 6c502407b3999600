package backend

import (
	"context"
	"net/http"
	"net/url"

	"deliverySync/models"
)

func (c *Client) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+id(orderID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRestaurantOrders(ctx context.Context, restaurantID int64) ([]models.Order, error) {
	var out []models.Order
	err := c.do(ctx, http.MethodGet, "/orders/restaurant/"+id(restaurantID), nil, nil, &out)
	return out, err
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (*models.Order, error) {
	var out models.Order
	q := url.Values{"status": {string(status)}}
	if err := c.do(ctx, http.MethodPost, "/orders/"+id(orderID)+"/status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaceOrder creates the order and its delivery.
func (c *Client) PlaceOrder(ctx context.Context, in models.PlaceOrderRequest) (*models.Order, *models.Delivery, error) {
	var out struct {
		Order    *models.Order    `json:"order"`
		Delivery *models.Delivery `json:"delivery"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", nil, in, &out); err != nil {
		return nil, nil, err
	}
	return out.Order, out.Delivery, nil
}
