package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"deliverySync/internal/auth"
	"deliverySync/internal/authz"
	"deliverySync/models"
)

const (
	headerRequestID = "X-Request-ID"
	keyPrincipal    = "principal"
)

// corsMiddleware lets browser surfaces on other origins call the API.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Cache-Control", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// requestID propagates or assigns X-Request-ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog writes one record per request.
func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"request_id", c.GetString(headerRequestID),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		switch {
		case status >= 500:
			log.Error("http request", attrs...)
		case status >= 400:
			log.Warn("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
	}
}

// authenticate parses an optional bearer token. Browsers cannot set headers on
// websocket upgrades, so ?token= is accepted as well. No token means anonymous.
func authenticate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if t := c.Query("token"); t != "" {
				header = "Bearer " + t
			}
		}
		if header == "" {
			c.Next()
			return
		}
		p, err := auth.ParseBearer(header, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": err.Error()})
			return
		}
		c.Set(keyPrincipal, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// authorize checks the route policy for the caller's kind.
func authorize(a *authz.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		ok, err := a.Allow(authz.Subject(p), c.FullPath(), c.Request.Method)
		if err != nil {
			writeError(c, err)
			return
		}
		if ok {
			c.Next()
			return
		}
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "missing authorization"})
			return
		}
		writeError(c, errors.Join(models.ErrForbidden, errors.New(p.Kind+" may not "+c.Request.Method+" "+c.FullPath())))
	}
}

func principal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(keyPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
