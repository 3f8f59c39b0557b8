package middleware

import (
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/gin-gonic/gin"
)

// ContextKeyIdentity holds the resolved caller identity.
const ContextKeyIdentity = "identity"

// IdentityProvider names the caller of a request.
type IdentityProvider interface {
	Identify(c *gin.Context) string
}

// HeaderIdentity trusts X-User-ID and falls back to an IP + User-Agent
// fingerprint. The result is only used for attribution and rate limiting.
type HeaderIdentity struct{}

func (HeaderIdentity) Identify(c *gin.Context) string {
	if user := c.GetHeader("X-User-ID"); user != "" {
		return user
	}
	return "session:" + utils.GenerateSessionID(c.ClientIP()+c.GetHeader("User-Agent"))
}

func Identity(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyIdentity, provider.Identify(c))
		c.Next()
	}
}
