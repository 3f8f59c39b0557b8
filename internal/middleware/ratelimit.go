package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/Ayash-Bera/querygen/internal/optimizer"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const CodeRateLimited = "RATE_LIMIT_EXCEEDED"

// RateLimit rejects callers that exceed their fixed-window budget. The
// client is keyed by the identity resolved earlier in the chain.
func RateLimit(limiter *optimizer.RateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.GetString(ContextKeyIdentity)
		if client == "" {
			client = c.ClientIP()
		}

		d := limiter.Allow(client)
		resetSeconds := int(math.Ceil(d.ResetIn.Seconds()))

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSeconds))

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(resetSeconds))
			logger.WithFields(logrus.Fields{
				"client": client,
				"path":   c.FullPath(),
			}).Warn("Rate limit exceeded")

			utils.ErrorResponse(c, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", gin.H{
				"limit":     d.Limit,
				"remaining": d.Remaining,
				"resetIn":   resetSeconds,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Security middleware
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.NewID()
		}

		c.Header("X-Request-ID", requestID)
		c.Set(utils.ContextKeyRequestID, requestID)
		c.Next()
	}
}
