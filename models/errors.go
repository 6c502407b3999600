package models

import "errors"

// Domain errors shared by the surfaces and the coordination service.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderNotReady     = errors.New("order not ready")
	ErrAgentNotActive    = errors.New("agent is not active")
	ErrAgentBusy         = errors.New("agent already holds an active delivery")
	ErrAgentNotApproved  = errors.New("agent is not approved")
	ErrNoAgentsAvailable = errors.New("no agents available")
	ErrVersionConflict   = errors.New("version conflict")
	ErrForbidden         = errors.New("forbidden")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrOrderNotReady, "order_not_ready"},
	{ErrAgentNotActive, "agent_not_active"},
	{ErrAgentBusy, "agent_busy"},
	{ErrAgentNotApproved, "agent_not_approved"},
	{ErrNoAgentsAvailable, "no_agents_available"},
	{ErrVersionConflict, "version_conflict"},
	{ErrForbidden, "forbidden"},
}

// ErrorCode returns the wire code of the first domain error found in err's chain,
// or "internal" when err carries none.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}

// ErrorFromCode maps a wire code back to its domain error. Unknown codes return nil.
func ErrorFromCode(code string) error {
	for _, e := range errorCodes {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
