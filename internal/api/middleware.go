package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"fuel-order-service/internal/auth"
	"fuel-order-service/internal/service"
	"fuel-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	claimsKey    = "claims"
	requestIDKey = "request_id"
)

// ExtractToken reads the bearer token from the access_token cookie, the Authorization
// header or, for EventSource clients, the access_token query parameter.
func ExtractToken(c *gin.Context) string {
	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("access_token")
}

// AuthMiddleware validates JWT tokens and stores the claims on the context
func AuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose token carries none of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			abortWith(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		abortWith(c, http.StatusForbidden, "NOT_PERMITTED", "role "+claims.Role+" cannot access this resource")
	}
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func actorFrom(c *gin.Context) service.Actor {
	claims, ok := claimsFrom(c)
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.UserID, Role: claims.Role}
}

// requestID propagates X-Request-ID or assigns a new one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if claims, ok := claimsFrom(c); ok {
			fields = append(fields, zap.Int64("user_id", claims.UserID), zap.String("role", claims.Role))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("Request failed", fields...)
			return
		}
		logger.Debug("Request handled", fields...)
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
