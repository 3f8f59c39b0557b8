package utils

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeyRequestID is the gin context key holding the correlation id.
const ContextKeyRequestID = "request_id"

type APIResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         *APIError   `json:"error,omitempty"`
	Timestamp     string      `json:"timestamp"`
	CorrelationID string      `json:"correlationId"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, APIResponse{
		Success:       true,
		Data:          data,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID: c.GetString(ContextKeyRequestID),
	})
}

func ErrorResponse(c *gin.Context, code int, errCode, message string, details interface{}) {
	c.JSON(code, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    errCode,
			Message: message,
			Details: details,
		},
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID: c.GetString(ContextKeyRequestID),
	})
}
