package backend

import (
	"context"
	"net/http"
	"net/url"

	"deliverySync/models"
)

// ListDeliveries fetches every delivery the caller may see.
func (c *Client) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	var out []models.Delivery
	err := c.do(ctx, http.MethodGet, "/deliveries", nil, nil, &out)
	return out, err
}

// ListAgentDeliveries fetches the deliveries held by one agent.
func (c *Client) ListAgentDeliveries(ctx context.Context, agentID int64) ([]models.Delivery, error) {
	var out []models.Delivery
	err := c.do(ctx, http.MethodGet, "/deliveries/agent/"+id(agentID), nil, nil, &out)
	return out, err
}

func (c *Client) GetDelivery(ctx context.Context, deliveryID int64) (*models.Delivery, error) {
	var out models.Delivery
	if err := c.do(ctx, http.MethodGet, "/deliveries/"+id(deliveryID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignDelivery asks the service to attach agentID. A non-zero
// expectedVersion turns the request into a compare-and-swap.
func (c *Client) AssignDelivery(ctx context.Context, deliveryID, agentID, expectedVersion int64) (*models.Delivery, error) {
	q := url.Values{"agentId": {id(agentID)}}
	if expectedVersion > 0 {
		q.Set("expectedVersion", id(expectedVersion))
	}
	var out models.Delivery
	if err := c.do(ctx, http.MethodPost, "/deliveries/"+id(deliveryID)+"/assign", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AutoAssignDelivery lets the service pick the agent.
func (c *Client) AutoAssignDelivery(ctx context.Context, deliveryID int64) (*models.Delivery, error) {
	var out models.Delivery
	if err := c.do(ctx, http.MethodPost, "/deliveries/"+id(deliveryID)+"/auto-assign", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDeliveryStatus(ctx context.Context, deliveryID int64, status models.DeliveryStatus) (*models.Delivery, error) {
	var out models.Delivery
	q := url.Values{"status": {string(status)}}
	if err := c.do(ctx, http.MethodPut, "/deliveries/"+id(deliveryID)+"/status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
