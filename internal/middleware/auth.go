// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/utils"
)

const principalKey = "principal"

// TokenFromRequest extracts the bearer token. Websocket clients cannot set
// headers from the browser API, so the query parameter form is accepted too.
func TokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token)
		if err != nil {
			utils.UnauthorizedResponse(c, "invalid or expired token")
			c.Abort()
			return
		}

		principal, err := claims.Principal()
		if err != nil {
			utils.UnauthorizedResponse(c, "invalid token claims")
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Set("user_id", principal.ID.String())
		c.Next()
	}
}

func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil || (!principal.IsCompanyAdmin() && !principal.IsSuperuser) {
			utils.ForbiddenResponse(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

func SuperuserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil || !principal.IsSuperuser {
			utils.ForbiddenResponse(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AgentAuth guards the agent-facing endpoints with a shared token. Only the
// token's hash is held in memory; an empty hash disables the check.
func AgentAuth(expectedHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedHash == "" {
			c.Next()
			return
		}

		token := c.GetHeader("X-Agent-Token")
		if token == "" || utils.HashString(token) != expectedHash {
			utils.UnauthorizedResponse(c, "valid agent token required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated identity, or nil on public routes.
func GetPrincipal(c *gin.Context) *models.Principal {
	if v, exists := c.Get(principalKey); exists {
		if principal, ok := v.(*models.Principal); ok {
			return principal
		}
	}
	return nil
}
