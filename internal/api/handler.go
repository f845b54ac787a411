package api

import (
	"context"
	"net/http"
	"time"

	"fuel-order-service/internal/auth"
	"fuel-order-service/internal/models"
	"fuel-order-service/internal/push"
	"fuel-order-service/internal/service"
	"fuel-order-service/internal/store"
	"fuel-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NotificationService is the recipient-facing side of the notifier
type NotificationService interface {
	List(ctx context.Context, userID int64, unreadOnly bool, page store.PageRequest) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, userID, notificationID int64) (*models.Notification, error)
	Delete(ctx context.Context, userID, notificationID int64) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders        *service.OrderService
	notifications NotificationService
	stream        push.Subscriber
	jwt           *auth.JWTService
	readiness     []Pinger
	heartbeat     time.Duration
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler. readiness lists the dependencies /ready checks.
func NewHandler(orders *service.OrderService, notifications NotificationService, stream push.Subscriber, jwt *auth.JWTService, readiness ...Pinger) *Handler {
	return &Handler{
		orders:        orders,
		notifications: notifications,
		stream:        stream,
		jwt:           jwt,
		readiness:     readiness,
		heartbeat:     25 * time.Second,
		logger:        util.Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(h.jwt))
	{
		customer := RequireRole(models.RoleCustomer)
		vendor := RequireRole(models.RoleVendor)
		driver := RequireRole(models.RoleDriver)
		admin := RequireRole(models.RoleAdmin)

		orders := v1.Group("/orders")
		orders.POST("", customer, h.createOrder)
		orders.POST("/summary", customer, h.orderSummary)
		orders.GET("/customer", customer, h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.PATCH("/:id/cancel", customer, h.cancelOrder)

		orders.GET("/vendor/orders", vendor, h.listOrders)
		orders.PATCH("/vendor/orders/:id/status", vendor, h.updateStatus)
		orders.PATCH("/vendor/orders/:id/assign-driver", vendor, h.assignDriver)

		orders.GET("/driver/orders", driver, h.listOrders)
		orders.PATCH("/driver/orders/:id/complete-delivery", driver, h.completeDelivery)

		orders.GET("/admin/all", admin, h.listOrders)
		orders.GET("/admin/analytics", admin, h.analytics)
		orders.PATCH("/admin/orders/:id/intervene", admin, h.adminOverride)
		orders.GET("/admin/orders/:id/audit", admin, h.auditTrail)

		v1.GET("/notifications", h.listNotifications)
		v1.PATCH("/notifications/:id/read", h.markNotificationRead)
		v1.DELETE("/notifications/:id", h.deleteNotification)

		v1.GET("/events/stream", h.streamEvents)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
