package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// streamEvents mirrors the caller's push messages as server-sent events until the
// client disconnects
func (h *Handler) streamEvents(c *gin.Context) {
	actor := actorFrom(c)
	ctx := c.Request.Context()

	feed, cancel, err := h.stream.Subscribe(ctx, actor.UserID, actor.Role)
	if err != nil {
		h.logger.Warn("Failed to open push subscription", zap.Int64("user_id", actor.UserID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errorBody{Code: "UNAVAILABLE", Message: "live updates are unavailable"}})
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"user_id": actor.UserID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-feed:
			if !ok {
				return false
			}
			c.SSEvent(msg.Type, msg)
			return true
		case t := <-heartbeat.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})
}
