package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverySync/internal/service"
	"deliverySync/models"
)

func (s *Server) listAgents(c *gin.Context) {
	out, err := s.svc.ListAgents(c.Request.Context(), c.Query("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listPendingAgents(c *gin.Context) {
	out, err := s.svc.ListPendingAgents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func bindAgent(c *gin.Context) (service.AgentInput, bool) {
	var in service.AgentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("agent body: %v: %w", err, models.ErrInvalidArgument))
		return in, false
	}
	return in, true
}

func (s *Server) registerAgent(c *gin.Context) {
	in, ok := bindAgent(c)
	if !ok {
		return
	}
	a, err := s.svc.RegisterAgent(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) createAgent(c *gin.Context) {
	in, ok := bindAgent(c)
	if !ok {
		return
	}
	a, err := s.svc.CreateAgent(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) approveAgent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := s.svc.ApproveAgent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) rejectAgent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := s.svc.RejectAgent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// PUT /deliveries/agents/:id/status?status=
func (s *Server) updateAgentStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := s.svc.UpdateAgentStatus(c.Request.Context(), id, models.AgentStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
