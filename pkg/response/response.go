package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"research-portal/project-portal-backend/internal/apperrors"
)

// Error writes err as a JSON error body with the status its kind maps to.
// Unexpected errors are logged and answered with a generic message.
func Error(c *gin.Context, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": apperrors.PublicMessage(err),
		"code":  apperrors.Code(err),
	})
}

// BadRequest answers a malformed request.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  "VALIDATION_ERROR",
	})
}
