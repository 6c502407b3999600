package service

import (
	"context"
	"fmt"

	"deliverySync/internal/auth"
	"deliverySync/internal/events"
	"deliverySync/models"
)

// AgentInput is a registration or administrator-created agent.
type AgentInput = models.AgentRequest

// ListAgents returns every agent, or the one matching email when given.
func (s *Service) ListAgents(ctx context.Context, email string) ([]models.Agent, error) {
	r := s.read()
	if email != "" {
		a, err := r.agents.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return []models.Agent{}, nil
		}
		if p := caller(ctx); p != nil && p.Kind == auth.KindAgent && p.ID != a.ID {
			return nil, forbidden("agent %d", a.ID)
		}
		return []models.Agent{*a}, nil
	}
	out, err := r.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Agent{}
	}
	return out, nil
}

// ListPendingAgents returns agents awaiting approval.
func (s *Service) ListPendingAgents(ctx context.Context) ([]models.Agent, error) {
	out, err := s.read().agents.List(ctx, models.AgentStatusPendingApproval)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Agent{}
	}
	return out, nil
}

// RegisterAgent is self-registration; the agent waits for approval.
func (s *Service) RegisterAgent(ctx context.Context, in AgentInput) (*models.Agent, error) {
	return s.createAgent(ctx, in, models.AgentStatusPendingApproval)
}

// CreateAgent is administrator creation; the agent is ACTIVE at once.
func (s *Service) CreateAgent(ctx context.Context, in AgentInput) (*models.Agent, error) {
	return s.createAgent(ctx, in, models.AgentStatusActive)
}

func (s *Service) createAgent(ctx context.Context, in AgentInput, st models.AgentStatus) (*models.Agent, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out *models.Agent
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		existing, err := r.agents.GetByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("email %s already registered: %w", in.Email, models.ErrInvalidArgument)
		}
		now := s.stamp()
		out, err = r.agents.Create(ctx, &models.Agent{
			Name: in.Name, Phone: in.Phone, Email: in.Email,
			VehicleType: in.VehicleType, LicenseNumber: in.LicenseNumber,
			Status: st, LastActiveAt: &now,
		})
		if err != nil {
			return nil, err
		}
		return []events.Event{{Type: events.AgentRegistered, Agent: out}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("agent created", "agent_id", out.ID, "status", st)
	return out, nil
}

// ApproveAgent moves a pending agent to ACTIVE.
func (s *Service) ApproveAgent(ctx context.Context, id int64) (*models.Agent, error) {
	return s.setAgentStatus(ctx, id, models.AgentStatusActive, func(a *models.Agent) error {
		if a.Status != models.AgentStatusPendingApproval {
			return fmt.Errorf("agent %d is %s: %w", a.ID, a.Status, models.ErrInvalidTransition)
		}
		return nil
	})
}

// RejectAgent turns down a pending registration. The record is kept as
// REJECTED so the email stays taken. Approved agents cannot be rejected: they
// may hold deliveries, and a REJECTED agent never does.
func (s *Service) RejectAgent(ctx context.Context, id int64) (*models.Agent, error) {
	return s.setAgentStatus(ctx, id, models.AgentStatusRejected, func(a *models.Agent) error {
		if a.Status != models.AgentStatusPendingApproval {
			return fmt.Errorf("agent %d is %s: %w", a.ID, a.Status, models.ErrInvalidTransition)
		}
		return nil
	})
}

// UpdateAgentStatus is the availability switch an approved agent flips from
// its dashboard. Only ACTIVE, BUSY and OFFLINE can be set this way.
func (s *Service) UpdateAgentStatus(ctx context.Context, id int64, to models.AgentStatus) (*models.Agent, error) {
	if !to.Approved() {
		return nil, fmt.Errorf("agent status %q: %w", to, models.ErrInvalidArgument)
	}
	if p := caller(ctx); p != nil && p.Kind == auth.KindAgent && p.ID != id {
		return nil, forbidden("agent %d", id)
	}
	return s.setAgentStatus(ctx, id, to, func(a *models.Agent) error {
		if !a.Status.Approved() {
			return fmt.Errorf("agent %d is %s: %w", a.ID, a.Status, models.ErrAgentNotApproved)
		}
		return nil
	})
}

func (s *Service) setAgentStatus(ctx context.Context, id int64, to models.AgentStatus, check func(*models.Agent) error) (*models.Agent, error) {
	var out *models.Agent
	err := s.tx(ctx, func(r repos) ([]events.Event, error) {
		a, err := r.agents.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, notFound("agent", id)
		}
		if check != nil {
			if err := check(a); err != nil {
				return nil, err
			}
		}
		if err := r.agents.UpdateStatus(ctx, id, to, s.stamp()); err != nil {
			return nil, err
		}
		if out, err = r.agents.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return []events.Event{{Type: events.AgentStatusChanged, Agent: out}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("agent status updated", "agent_id", id, "status", to)
	return out, nil
}
