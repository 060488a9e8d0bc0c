package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/txengine"
)

// TransactionHandler exposes transaction lookup and administrative
// refunds.
type TransactionHandler struct {
	engine *txengine.Engine
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(engine *txengine.Engine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

// Get returns a transaction by number.
func (h *TransactionHandler) Get(c *gin.Context) {
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
	c.JSON(http.StatusOK, record)
}

// List returns a page of transactions filtered by card or merchant.
func (h *TransactionHandler) List(c *gin.Context) {
	page, limit := common.PageParams(c)
	offset := (page - 1) * limit
	ctx := c.Request.Context()

	if v := strings.TrimSpace(c.Query("card_id")); v != "" {
		cardID, errParse := strconv.ParseUint(v, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid card_id"})
			return
		}
		rows, total, errList := h.engine.ListByCard(ctx, cardID, limit, offset)
		if errList != nil {
			common.WriteError(c, errList)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "transactions": rows})
		return
	}
	if v := strings.TrimSpace(c.Query("merchant_id")); v != "" {
		merchantID, errParse := strconv.ParseUint(v, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merchant_id"})
			return
		}
		rows, total, errList := h.engine.ListByMerchant(ctx, merchantID, limit, offset)
		if errList != nil {
			common.WriteError(c, errList)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "transactions": rows})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "card_id or merchant_id is required"})
}

type adminRefundRequest struct {
	MerchantCode string  `json:"merchant_code"`
	OriginalTxNo string  `json:"original_tx_no"`
	Amount       float64 `json:"amount"`
	Reason       string  `json:"reason"`
}

// Refund issues a refund with super admin privileges, bypassing the
// merchant identity check.
func (h *TransactionHandler) Refund(c *gin.Context) {
	var body adminRefundRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	record, errRefund := h.engine.Refund(c.Request.Context(), txengine.RefundParams{
		MerchantCode: strings.TrimSpace(body.MerchantCode),
		OriginalTxNo: strings.TrimSpace(body.OriginalTxNo),
		Amount:       body.Amount,
		Reason:       strings.TrimSpace(body.Reason),
		Actor:        txengine.Actor{Role: security.RoleSuperAdmin},
	})
	if errRefund != nil {
		common.WriteError(c, errRefund)
		return
	}
	c.JSON(http.StatusOK, record)
}
