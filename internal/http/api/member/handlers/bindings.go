package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/models"
)

// BindingHandler manages the member side of card bindings.
type BindingHandler struct {
	bindings *binding.Manager
}

// NewBindingHandler constructs a BindingHandler.
func NewBindingHandler(bindings *binding.Manager) *BindingHandler {
	return &BindingHandler{bindings: bindings}
}

type bindRequest struct {
	Role            string `json:"role"`
	BindingPassword string `json:"binding_password"`
}

// Bind attaches the member to a shareable card.
func (h *BindingHandler) Bind(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var body bindRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role := models.BindRole(strings.TrimSpace(body.Role))
	if role == "" {
		role = models.BindRoleMember
	}
	if !role.Valid() || role == models.BindRoleOwner {
		// Ownership is assigned at issuance, never self-claimed.
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	if errDo := h.bindings.Bind(c.Request.Context(), cardID, claims.SubjectID, role, body.BindingPassword); errDo != nil {
		common.WriteError(c, errDo)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bound": true, "role": role})
}

// Unbind detaches the member from a card.
func (h *BindingHandler) Unbind(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if errDo := h.bindings.Unbind(c.Request.Context(), cardID, claims.SubjectID); errDo != nil {
		common.WriteError(c, errDo)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbound": true})
}

type bindingPasswordRequest struct {
	Password string `json:"password"`
}

// SetBindingPassword sets or clears a card's binding password. Owners
// and admins only.
func (h *BindingHandler) SetBindingPassword(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if !requireBinding(c, h.bindings, cardID, claims.SubjectID, models.BindRole.CanManage) {
		return
	}

	var body bindingPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errSet := h.bindings.SetBindingPassword(c.Request.Context(), cardID, strings.TrimSpace(body.Password)); errSet != nil {
		common.WriteError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type linkExternalRequest struct {
	Org            string `json:"org"`
	ExternalUserID string `json:"external_user_id"`
}

// LinkExternalIdentity attaches an external platform identity to the
// member's account.
func (h *BindingHandler) LinkExternalIdentity(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	var body linkExternalRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	org := strings.TrimSpace(body.Org)
	externalUserID := strings.TrimSpace(body.ExternalUserID)
	if org == "" || externalUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing org or external_user_id"})
		return
	}

	if errLink := h.bindings.LinkExternalIdentity(c.Request.Context(), claims.SubjectID, org, externalUserID); errLink != nil {
		common.WriteError(c, errLink)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": true})
}
