package middlewares

import (
	"net/http"

	"github.com/geocoder89/seodash/internal/rbac"
	"github.com/gin-gonic/gin"
)

// RequirePermission refuses requests whose role lacks perm. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequirePermission(perm rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if !rbac.HasPermission(role, perm) {
			abortError(c, http.StatusForbidden, "forbidden", "Access denied. Insufficient permissions.")
			return
		}
		c.Next()
	}
}
