package utils

import (
	"github.com/gin-gonic/gin"
)

// ClientIP returns the caller's address. Forwarding headers are honoured
// only when the direct peer is one of the engine's trusted proxies, so
// the router must be configured with SetTrustedProxies.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// GetUserAgent extracts the User-Agent header from the request
func GetUserAgent(c *gin.Context) string {
	ua := c.Request.UserAgent()
	if ua == "" {
		return "Unknown"
	}
	return ua
}
