// internal/handlers/admin.go
package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/netwarden/backend/internal/utils"
)

// POST /admin/agent-tokens
//
// Mints a credential for on-network scanning agents. The operator sets the
// token as AGENT_TOKEN on the server; it is shown exactly once here.
func MintAgentToken(c *gin.Context) {
	token, err := utils.GenerateAgentToken()
	if err != nil {
		utils.RespondError(c, fmt.Errorf("failed to generate agent token: %w", err))
		return
	}

	utils.CreatedResponse(c, gin.H{
		"agent_token": token,
		"token_hash":  utils.HashString(token),
	})
}
