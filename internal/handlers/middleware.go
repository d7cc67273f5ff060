package handlers

import (
	"net/http"
	"strings"

	"smart_cash_power/internal/models"
	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userId"
	ctxRole   = "role"
)

func (h *Handler) userIdentityMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	id, err := h.services.ParseToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(ctxUserID, id.UserID)
	c.Set(ctxRole, id.Role)
	// remote backend calls act as this caller
	c.Request = c.Request.WithContext(service.WithCredential(c.Request.Context(), parts[1]))
	c.Next()
}

// nonAdminMiddleware keeps administrators away from meter and dashboard routes.
func (h *Handler) nonAdminMiddleware(c *gin.Context) {
	if id := identityFrom(c); id.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "not available for administrators",
		})
		return
	}
	c.Next()
}

// identityFrom reads what userIdentityMiddleware stored.
func identityFrom(c *gin.Context) models.Identity {
	return models.Identity{UserID: c.GetInt(ctxUserID), Role: c.GetString(ctxRole)}
}
