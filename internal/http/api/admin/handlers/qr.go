package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
)

// QRHandler runs administrative QR token operations.
type QRHandler struct {
	tokens   *qrtoken.Manager
	batchTTL time.Duration
}

// NewQRHandler constructs a QRHandler.
func NewQRHandler(tokens *qrtoken.Manager, batchTTL time.Duration) *QRHandler {
	return &QRHandler{tokens: tokens, batchTTL: batchTTL}
}

// BatchRotate rotates the QR token of every active corporate card,
// invalidating all outstanding corporate QR codes on demand.
func (h *QRHandler) BatchRotate(c *gin.Context) {
	rotated, errBatch := h.tokens.BatchRotate(c.Request.Context(), h.batchTTL)
	if errBatch != nil {
		common.WriteError(c, errBatch)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rotated": rotated})
}
