package middleware

import (
	"github.com/gin-gonic/gin"

	"bazaar/pkg/limiter"
	"bazaar/pkg/log"
	"bazaar/pkg/utils"
)

// RateLimit per-caller rate limiting middleware. Authenticated requests
// are keyed by user, anonymous ones by client IP. A limiter backend error
// lets the request through: availability over strictness.
func RateLimit(l limiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetUserKey(c)
		if !ok {
			key = c.ClientIP()
		}

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithError(err).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			utils.Error(c, utils.CodeRateLimit, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
