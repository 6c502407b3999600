// Package httpapi serves the REST contract the surfaces poll, plus the
// websocket push feed.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"deliverySync/internal/authz"
	"deliverySync/internal/events"
	"deliverySync/internal/service"
	"deliverySync/models"
)

// Server holds the handler dependencies.
type Server struct {
	svc     *service.Service
	hub     *events.Hub
	authz   *authz.Authorizer
	secret  string
	log     *slog.Logger
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer wires the REST handlers.
func NewServer(svc *service.Service, hub *events.Hub, a *authz.Authorizer, jwtSecret string, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: svc, hub: hub, authz: a, secret: jwtSecret, log: log, origins: []string{"*"}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(s.origins), requestID(), accessLog(s.log))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("", authenticate(s.secret), authorize(s.authz))

	api.GET("/deliveries", s.listDeliveries)
	api.GET("/deliveries/:id", s.getDelivery)
	api.GET("/deliveries/agent/:agentId", s.listAgentDeliveries)
	api.POST("/deliveries/:id/assign", s.assignDelivery)
	api.POST("/deliveries/:id/auto-assign", s.autoAssignDelivery)
	api.PUT("/deliveries/:id/status", s.updateDeliveryStatus)

	api.GET("/deliveries/agents", s.listAgents)
	api.GET("/deliveries/agents/pending", s.listPendingAgents)
	api.POST("/deliveries/agents", s.registerAgent)
	api.POST("/deliveries/agents/admin", s.createAgent)
	api.PUT("/deliveries/agents/:id/approve", s.approveAgent)
	api.DELETE("/deliveries/agents/:id", s.rejectAgent)
	api.PUT("/deliveries/agents/:id/status", s.updateAgentStatus)

	api.POST("/orders", s.placeOrder)
	api.GET("/orders/:id", s.getOrder)
	api.GET("/orders/restaurant/:restaurantId", s.listRestaurantOrders)
	api.POST("/orders/:id/status", s.updateOrderStatus)

	api.GET("/ws/events", s.events)
	return r
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": models.ErrorCode(models.ErrInvalidArgument), "message": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string, required bool) (int64, bool) {
	raw := c.Query(name)
	if raw == "" && !required {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 || (required && id == 0) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": models.ErrorCode(models.ErrInvalidArgument), "message": "invalid " + name})
		return 0, false
	}
	return id, true
}
