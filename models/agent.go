package models

import "time"

// AgentStatus is the availability or approval state of a courier.
type AgentStatus string

const (
	AgentStatusActive          AgentStatus = "ACTIVE"
	AgentStatusBusy            AgentStatus = "BUSY"
	AgentStatusOffline         AgentStatus = "OFFLINE"
	AgentStatusPendingApproval AgentStatus = "PENDING_APPROVAL"
	AgentStatusRejected        AgentStatus = "REJECTED"
)

// Valid reports whether s is one of the known agent statuses.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusBusy, AgentStatusOffline,
		AgentStatusPendingApproval, AgentStatusRejected:
		return true
	}
	return false
}

// Approved reports whether the agent has passed administrator approval.
func (s AgentStatus) Approved() bool {
	return s == AgentStatusActive || s == AgentStatusBusy || s == AgentStatusOffline
}

// Agent represents a delivery courier.
// Only ACTIVE agents may receive new deliveries.
type Agent struct {
	ID            int64       `db:"id" json:"id"`
	Name          string      `db:"name" json:"name"`
	Phone         string      `db:"phone" json:"phone"`
	Email         string      `db:"email" json:"email"`
	VehicleType   string      `db:"vehicle_type" json:"vehicleType"`
	LicenseNumber string      `db:"license_number" json:"licenseNumber"`
	Status        AgentStatus `db:"status" json:"status"`
	LastActiveAt  *time.Time  `db:"last_active_at" json:"lastActiveAt,omitempty"`
}

// Eligible reports whether the agent can be given a new delivery.
func (a *Agent) Eligible() bool {
	return a != nil && a.Status == AgentStatusActive
}

// Ref returns the snapshot stored on deliveries.
func (a *Agent) Ref() *AgentRef {
	if a == nil {
		return nil
	}
	return &AgentRef{ID: a.ID, Name: a.Name, Phone: a.Phone, VehicleType: a.VehicleType}
}
