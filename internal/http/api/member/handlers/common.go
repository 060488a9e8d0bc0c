package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/models"
)

// requireBinding checks that the authenticated member holds a binding
// on the card satisfying the role predicate. On failure the request is
// answered and false returned.
func requireBinding(c *gin.Context, bindings *binding.Manager, cardID, memberID uint64, need func(models.BindRole) bool) bool {
	role, ok, errRole := bindings.RoleOf(c.Request.Context(), cardID, memberID)
	if errRole != nil {
		common.WriteError(c, errRole)
		return false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return false
	}
	if need != nil && !need(role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
		return false
	}
	return true
}
