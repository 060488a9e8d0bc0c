package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
)

// QRHandler manages payment QR tokens for a member's cards.
type QRHandler struct {
	tokens     *qrtoken.Manager
	bindings   *binding.Manager
	defaultTTL time.Duration
}

// NewQRHandler constructs a QRHandler.
func NewQRHandler(tokens *qrtoken.Manager, bindings *binding.Manager, defaultTTL time.Duration) *QRHandler {
	return &QRHandler{tokens: tokens, bindings: bindings, defaultTTL: defaultTTL}
}

// Rotate issues a fresh QR token for a card, invalidating the previous
// one. The plaintext in the response is shown exactly once.
func (h *QRHandler) Rotate(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if !requireBinding(c, h.bindings, cardID, claims.SubjectID, models.BindRole.CanSpend) {
		return
	}

	rotated, errRotate := h.tokens.Rotate(c.Request.Context(), cardID, h.defaultTTL)
	if errRotate != nil {
		common.WriteError(c, errRotate)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"qr_token":   rotated.Plain,
		"expires_at": rotated.ExpiresAt,
	})
}

// Revoke invalidates the card's active QR token.
func (h *QRHandler) Revoke(c *gin.Context) {
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

	if errRevoke := h.tokens.Revoke(c.Request.Context(), cardID); errRevoke != nil {
		common.WriteError(c, errRevoke)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
