package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"deliverySync/internal/service"
	"deliverySync/models"
)

// PlacedOrder is the body of POST /orders.
type PlacedOrder struct {
	Order    *models.Order    `json:"order"`
	Delivery *models.Delivery `json:"delivery"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var in service.PlaceOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("order body: %v: %w", err, models.ErrInvalidArgument))
		return
	}
	o, d, err := s.svc.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, PlacedOrder{Order: o, Delivery: d})
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := s.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) listRestaurantOrders(c *gin.Context) {
	id, ok := pathID(c, "restaurantId")
	if !ok {
		return
	}
	out, err := s.svc.ListOrdersByRestaurant(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /orders/:id/status?status=
func (s *Server) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := s.svc.UpdateOrderStatus(c.Request.Context(), id, models.OrderStatus(c.Query("status")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
