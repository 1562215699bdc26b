// File: internal/handler/http/response.go

package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseError is the error body for non-auth API failures. Authentication
// rejections use the richer middleware.Rejection shape instead.
type ResponseError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RespondWithError sends an error response and logs it.
func RespondWithError(c *gin.Context, statusCode int, message string, errorCode string, logger *zap.Logger) {
	logger.Error("API error response",
		zap.Int("status_code", statusCode),
		zap.String("error_message", message),
		zap.String("error_code", errorCode),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)

	c.JSON(statusCode, ResponseError{
		Error: message,
		Code:  errorCode,
	})
}

// RespondWithData sends a success response with data only.
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}
