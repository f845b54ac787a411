package api

import (
	"net/http"
	"strconv"

	"fuel-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listNotifications(c *gin.Context) {
	page, err := pageRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	list, total, err := h.notifications.List(c.Request.Context(), actorFrom(c).UserID, unread, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"pagination":    service.NewPage(page, total),
	})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	n, err := h.notifications.MarkRead(c.Request.Context(), actorFrom(c).UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}

func (h *Handler) deleteNotification(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.notifications.Delete(c.Request.Context(), actorFrom(c).UserID, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
