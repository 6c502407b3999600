package backend

import (
	"context"
	"net/http"
	"net/url"

	"deliverySync/models"
)

// ListAgents fetches all agents, or the one registered under email.
func (c *Client) ListAgents(ctx context.Context, email string) ([]models.Agent, error) {
	var q url.Values
	if email != "" {
		q = url.Values{"email": {email}}
	}
	var out []models.Agent
	err := c.do(ctx, http.MethodGet, "/deliveries/agents", q, nil, &out)
	return out, err
}

func (c *Client) ListPendingAgents(ctx context.Context) ([]models.Agent, error) {
	var out []models.Agent
	err := c.do(ctx, http.MethodGet, "/deliveries/agents/pending", nil, nil, &out)
	return out, err
}

// RegisterAgent is the public self-registration; the agent starts PENDING_APPROVAL.
func (c *Client) RegisterAgent(ctx context.Context, in models.AgentRequest) (*models.Agent, error) {
	return c.postAgent(ctx, "/deliveries/agents", in)
}

// CreateAgent is the administrator path; the agent starts ACTIVE.
func (c *Client) CreateAgent(ctx context.Context, in models.AgentRequest) (*models.Agent, error) {
	return c.postAgent(ctx, "/deliveries/agents/admin", in)
}

func (c *Client) postAgent(ctx context.Context, path string, in models.AgentRequest) (*models.Agent, error) {
	var out models.Agent
	if err := c.do(ctx, http.MethodPost, path, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ApproveAgent(ctx context.Context, agentID int64) (*models.Agent, error) {
	var out models.Agent
	if err := c.do(ctx, http.MethodPut, "/deliveries/agents/"+id(agentID)+"/approve", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RejectAgent(ctx context.Context, agentID int64) error {
	return c.do(ctx, http.MethodDelete, "/deliveries/agents/"+id(agentID), nil, nil, nil)
}

func (c *Client) UpdateAgentStatus(ctx context.Context, agentID int64, status models.AgentStatus) (*models.Agent, error) {
	var out models.Agent
	q := url.Values{"status": {string(status)}}
	if err := c.do(ctx, http.MethodPut, "/deliveries/agents/"+id(agentID)+"/status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
