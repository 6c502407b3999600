package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"deliverySync/models"
)

// AgentRepository stores couriers and their approval/availability status.
type AgentRepository struct {
	db DBTX
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db DBTX) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = `id, name, phone, email, vehicle_type, license_number, status, last_active_at`

// Create inserts an agent. Status defaults to PENDING_APPROVAL.
func (r *AgentRepository) Create(ctx context.Context, a *models.Agent) (*models.Agent, error) {
	if a == nil {
		return nil, errors.New("agent is nil")
	}
	if a.Status == "" {
		a.Status = models.AgentStatusPendingApproval
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO agents (name, phone, email, vehicle_type, license_number, status, last_active_at) VALUES (?,?,?,?,?,?,?)`,
		a.Name, a.Phone, a.Email, a.VehicleType, a.LicenseNumber, string(a.Status), nullTime(a.LastActiveAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

// GetByID fetches an agent. It returns nil, nil when absent.
func (r *AgentRepository) GetByID(ctx context.Context, id int64) (*models.Agent, error) {
	return r.getOne(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
}

// GetByEmail fetches an agent by email. It returns nil, nil when absent.
func (r *AgentRepository) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	return r.getOne(ctx, `SELECT `+agentColumns+` FROM agents WHERE email = ?`, email)
}

func (r *AgentRepository) getOne(ctx context.Context, query string, arg any) (*models.Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	a, err := scanAgent(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// List returns agents ordered by id, optionally filtered by status.
func (r *AgentRepository) List(ctx context.Context, statuses ...models.AgentStatus) ([]models.Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	query := `SELECT ` + agentColumns + ` FROM agents`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status and last_active_at.
func (r *AgentRepository) UpdateStatus(ctx context.Context, id int64, status models.AgentStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE agents SET status = ?, last_active_at = ? WHERE id = ?`, string(status), formatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanAgent(row rowScanner) (models.Agent, error) {
	var a models.Agent
	var status string
	var lastActive sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &a.Phone, &a.Email, &a.VehicleType, &a.LicenseNumber, &status, &lastActive); err != nil {
		return a, err
	}
	a.Status = models.AgentStatus(status)
	t, err := parseNullTime(lastActive)
	if err != nil {
		return a, err
	}
	a.LastActiveAt = t
	return a, nil
}
