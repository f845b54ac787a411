package api

import (
	"net/http"
	"strings"

	"fuel-order-service/internal/models"
	"fuel-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type summaryRequest struct {
	VendorID int64                      `json:"vendor_id"`
	Items    []service.OrderItemRequest `json:"items"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type assignDriverRequest struct {
	DriverID int64 `json:"driver_id"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req.CustomerID = actorFrom(c).UserID
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	res, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if len(res.Events) == 0 {
		// replayed idempotency key
		status = http.StatusOK
	}
	h.respondOrder(c, status, res.Order)
}

func (h *Handler) orderSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	quote, err := h.orders.OrderSummary(c.Request.Context(), actorFrom(c).UserID, req.VendorID, req.Items)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": quote})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": details})
}

// listOrders serves every role-scoped listing; the service narrows the filter to the actor
func (h *Handler) listOrders(c *gin.Context) {
	filter, err := orderFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	page, err := pageRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	list, err := h.orders.ListOrders(c.Request.Context(), actorFrom(c), filter, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := h.orders.CancelOrder(c.Request.Context(), orderID, actorFrom(c).UserID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, res.Order)
}

func (h *Handler) updateStatus(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := h.orders.TransitionStatus(c.Request.Context(), orderID, actorFrom(c).UserID, status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, res.Order)
}

func (h *Handler) assignDriver(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req assignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := h.orders.AssignDriver(c.Request.Context(), orderID, actorFrom(c).UserID, req.DriverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, res.Order)
}

func (h *Handler) completeDelivery(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := h.orders.CompleteDelivery(c.Request.Context(), orderID, actorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, res.Order)
}

func (h *Handler) adminOverride(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.OrderID = orderID
	req.AdminID = actorFrom(c).UserID

	res, err := h.orders.AdminOverride(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, res.Order)
}

func (h *Handler) auditTrail(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	entries, err := h.orders.AuditTrail(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": entries})
}

func (h *Handler) analytics(c *gin.Context) {
	filter, err := orderFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	a, err := h.orders.Analytics(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analytics": a})
}

// respondOrder writes the committed order with its party projections. The mutation already
// succeeded, so a failed projection read falls back to the bare order.
func (h *Handler) respondOrder(c *gin.Context, status int, order *models.Order) {
	details, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), order.ID)
	if err != nil {
		h.logger.Warn("Failed to load order projections", zap.Int64("order_id", order.ID), zap.Error(err))
		c.JSON(status, gin.H{"order": service.OrderDetails{Order: order}})
		return
	}
	c.JSON(status, gin.H{"order": details})
}
