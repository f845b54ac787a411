package api

import (
	"net/http"

	"fuel-order-service/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an error kind to its HTTP status
func statusOf(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes a classified error. Unclassified errors are logged and hidden.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := statusOf(kind)
	if kind == models.KindInternal {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.JSON(status, gin.H{"error": errorBody{Code: "INTERNAL", Message: "internal server error"}})
		return
	}
	c.JSON(status, gin.H{"error": errorBody{Code: models.CodeOf(err), Message: err.Error()}})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "VALIDATION", Message: message}})
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}
