package api

import (
	"github.com/gin-gonic/gin"
)

// tenantKey is the gin context key carrying the resolved tenant.
const tenantKey = "tenant_id"

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// tenantMiddleware resolves the tenant from the X-Tenant-ID header,
// falling back to the configured default.
func (s *Server) tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant-ID")
		if tenant == "" {
			tenant = s.cfg.DefaultTenant
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

// tenant returns the tenant resolved by tenantMiddleware.
func tenant(c *gin.Context) string {
	return c.GetString(tenantKey)
}
