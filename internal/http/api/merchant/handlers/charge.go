package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/txengine"
	"gorm.io/datatypes"
)

// ChargeHandler runs merchant-initiated payments and refunds.
type ChargeHandler struct {
	engine *txengine.Engine
}

// NewChargeHandler constructs a ChargeHandler.
func NewChargeHandler(engine *txengine.Engine) *ChargeHandler {
	return &ChargeHandler{engine: engine}
}

type chargeRequest struct {
	QRToken         string         `json:"qr_token"`
	Amount          float64        `json:"amount"`
	IdempotencyKey  string         `json:"idempotency_key"`
	ExternalOrderID *string        `json:"external_order_id"`
	Tag             datatypes.JSON `json:"tag"`
}

// Charge debits the card behind a scanned QR token. A failed charge
// still returns the audit transaction record alongside the error code.
func (h *ChargeHandler) Charge(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	var body chargeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	record, errCharge := h.engine.ChargeByQR(c.Request.Context(), txengine.ChargeParams{
		MerchantCode:    claims.Name,
		QRPlain:         strings.TrimSpace(body.QRToken),
		RawAmount:       body.Amount,
		IdempotencyKey:  strings.TrimSpace(body.IdempotencyKey),
		Tag:             body.Tag,
		ExternalOrderID: body.ExternalOrderID,
	})
	if errCharge != nil {
		common.WriteError(c, errCharge)
		return
	}
	c.JSON(http.StatusOK, record)
}

type refundRequest struct {
	OriginalTxNo string         `json:"original_tx_no"`
	Amount       float64        `json:"amount"`
	Reason       string         `json:"reason"`
	Tag          datatypes.JSON `json:"tag"`
}

// Refund reverses part or all of one of the merchant's own payments.
func (h *ChargeHandler) Refund(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	var body refundRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	record, errRefund := h.engine.Refund(c.Request.Context(), txengine.RefundParams{
		MerchantCode: claims.Name,
		OriginalTxNo: strings.TrimSpace(body.OriginalTxNo),
		Amount:       body.Amount,
		Reason:       strings.TrimSpace(body.Reason),
		Tag:          body.Tag,
		Actor: txengine.Actor{
			Role:       security.RoleMerchant,
			MerchantID: claims.SubjectID,
		},
	})
	if errRefund != nil {
		common.WriteError(c, errRefund)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Transactions lists the merchant's own transactions, newest first.
func (h *ChargeHandler) Transactions(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	page, limit := common.PageParams(c)
	rows, total, errList := h.engine.ListByMerchant(c.Request.Context(), claims.SubjectID, limit, (page-1)*limit)
	if errList != nil {
		common.WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "transactions": rows})
}

// Transaction returns one of the merchant's own transactions.
func (h *ChargeHandler) Transaction(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	txNo := strings.TrimSpace(c.Param("tx_no"))
	if txNo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing tx_no"})
		return
	}

	record, errGet := h.engine.GetByTxNo(c.Request.Context(), txNo)
	if errGet != nil {
		common.WriteError(c, errGet)
		return
	}
	if record.MerchantID == nil || *record.MerchantID != claims.SubjectID {
		// Hide other merchants' transactions entirely.
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// TodayStats summarizes the merchant's activity since midnight UTC.
func (h *ChargeHandler) TodayStats(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	stats, errStats := h.engine.TodayStats(c.Request.Context(), claims.SubjectID)
	if errStats != nil {
		common.WriteError(c, errStats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
