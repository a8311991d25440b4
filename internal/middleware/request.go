package middleware

import (
	"time"

	"pluto/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderTransactionID = "x-transactionid"

	ContextKeyRequestID  = "requestID"
	ContextKeyUserID     = "userID"
	ContextKeyUserUUID   = "userUUID"
	ContextKeyPermission = "permission"
)

// RequestID propagates the caller's transaction id, or assigns one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderTransactionID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderTransactionID, requestID)

		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetUserID returns the identity recorded in audit logs for this request
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// RequestLogger logs one line per request once it has been served
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Infow("request",
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"user_id", GetUserID(c))
	}
}
