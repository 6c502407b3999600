package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverySync/models"
)

func (s *Server) listDeliveries(c *gin.Context) {
	out, err := s.svc.ListDeliveries(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := s.svc.GetDelivery(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) listAgentDeliveries(c *gin.Context) {
	agentID, ok := pathID(c, "agentId")
	if !ok {
		return
	}
	out, err := s.svc.ListDeliveriesByAgent(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /deliveries/:id/assign?agentId=&expectedVersion=
func (s *Server) assignDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	agentID, ok := queryID(c, "agentId", true)
	if !ok {
		return
	}
	version, ok := queryID(c, "expectedVersion", false)
	if !ok {
		return
	}
	d, err := s.svc.AssignDelivery(c.Request.Context(), id, agentID, version)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) autoAssignDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := s.svc.AutoAssignDelivery(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// PUT /deliveries/:id/status?status=
func (s *Server) updateDeliveryStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, _, err := s.svc.UpdateDeliveryStatus(c.Request.Context(), id, models.DeliveryStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
