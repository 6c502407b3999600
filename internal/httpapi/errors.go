package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverySync/models"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoAgentsAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrOrderNotReady),
		errors.Is(err, models.ErrAgentNotActive),
		errors.Is(err, models.ErrAgentBusy),
		errors.Is(err, models.ErrAgentNotApproved):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError renders {error, message}. error is the stable wire code.
func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(code, gin.H{"error": models.ErrorCode(err), "message": msg})
}
