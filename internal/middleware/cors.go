package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS Cross-Origin Resource Sharing middleware. An empty or "*" origin
// list allows every origin.
func CORS(allowOrigins []string, allowCredentials bool, maxAge time.Duration) gin.HandlerFunc {
	config := cors.DefaultConfig()

	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
		config.AllowCredentials = allowCredentials
	}

	config.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"X-Request-ID",
		"X-Requested-With",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.ExposeHeaders = []string{"X-Request-ID"}
	if maxAge > 0 {
		config.MaxAge = maxAge
	}

	return cors.New(config)
}
