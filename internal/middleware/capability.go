package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/siap-dev/siap-atk-api/internal/models"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
	"github.com/siap-dev/siap-atk-api/pkg/response"
)

// RequireCapability rejects requests whose authenticated role does not grant
// the capability. Access checks are pure functions of the role; the services
// re-check on their own entry points.
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || !claims.Can(capability) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
