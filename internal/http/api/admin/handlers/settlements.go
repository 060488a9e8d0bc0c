package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/settlement"
)

// SettlementHandler administers merchant settlements.
type SettlementHandler struct {
	settlements *settlement.Service
}

// NewSettlementHandler constructs a SettlementHandler.
func NewSettlementHandler(settlements *settlement.Service) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

type createSettlementRequest struct {
	MerchantID  uint64 `json:"merchant_id"`
	Mode        string `json:"mode"`
	PeriodStart string `json:"period_start"` // RFC3339.
	PeriodEnd   string `json:"period_end"`   // RFC3339.
}

// Create aggregates a merchant's activity over a period into a pending
// settlement record.
func (h *SettlementHandler) Create(c *gin.Context) {
	var body createSettlementRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.MerchantID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing merchant_id"})
		return
	}
	mode := models.SettlementMode(strings.TrimSpace(body.Mode))
	switch mode {
	case models.SettlementModeRealtime, models.SettlementModeTPlus1, models.SettlementModeMonthly:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
		return
	}
	periodStart, errStart := time.Parse(time.RFC3339, strings.TrimSpace(body.PeriodStart))
	periodEnd, errEnd := time.Parse(time.RFC3339, strings.TrimSpace(body.PeriodEnd))
	if errStart != nil || errEnd != nil || !periodEnd.After(periodStart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
		return
	}

	record, errCreate := h.settlements.Create(c.Request.Context(), body.MerchantID, mode, periodStart, periodEnd)
	if errCreate != nil {
		common.WriteError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// MarkSettled transitions a pending settlement to settled.
func (h *SettlementHandler) MarkSettled(c *gin.Context) {
	settlementID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errMark := h.settlements.MarkSettled(c.Request.Context(), settlementID); errMark != nil {
		common.WriteError(c, errMark)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SettlementStatusSettled})
}

// List returns a merchant's settlements.
func (h *SettlementHandler) List(c *gin.Context) {
	merchantID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	page, limit := common.PageParams(c)
	rows, total, errList := h.settlements.List(c.Request.Context(), merchantID, page, limit)
	if errList != nil {
		common.WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "settlements": rows})
}
