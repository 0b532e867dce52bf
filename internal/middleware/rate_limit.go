package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"fanhub/pkg/limiter"
	"fanhub/pkg/log"
	"fanhub/pkg/utils"
)

// RateLimitConfig rate limiting middleware configuration
type RateLimitConfig struct {
	Limiter limiter.RateLimiter
	// KeyFunc function to generate rate limit key
	KeyFunc func(c *gin.Context) string
	// FailOpen lets requests through when the limiter itself errors
	FailOpen bool
}

// ClientIPKey keys limits on the client address
func ClientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// BuyerKey keys limits on the authenticated caller, falling back to the
// client address
func BuyerKey(c *gin.Context) string {
	if id, ok := GetUserID(c); ok {
		return "buyer:" + strconv.FormatUint(id, 10)
	}
	return ClientIPKey(c)
}

// RateLimit rate limiting middleware
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKey
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithContext(c.Request.Context()).WithError(err).WithField("key", key).Error("Rate limiter unavailable")
			if !config.FailOpen {
				utils.AbortWithError(c, utils.WrapError(err, utils.CodeRedisError, "rate limiter unavailable"))
				return
			}
			c.Next()
			return
		}

		if !allowed {
			log.WithFields(log.Fields{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", "1")
			utils.AbortWithError(c, utils.ErrRateLimit)
			return
		}

		c.Next()
	}
}
