package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
)

// QRHandler resolves scanned QR tokens for merchant terminals.
type QRHandler struct {
	tokens *qrtoken.Manager
}

// NewQRHandler constructs a QRHandler.
func NewQRHandler(tokens *qrtoken.Manager) *QRHandler {
	return &QRHandler{tokens: tokens}
}

type validateRequest struct {
	QRToken string `json:"qr_token"`
}

// Validate resolves a scanned token to its card id without charging.
// Under the single-use policy this consumes the token, so terminals
// that pre-validate must charge through a fresh scan.
func (h *QRHandler) Validate(c *gin.Context) {
	var body validateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cardID, errValidate := h.tokens.Validate(c.Request.Context(), strings.TrimSpace(body.QRToken))
	if errValidate != nil {
		common.WriteError(c, errValidate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card_id": cardID})
}
