package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/settlement"
)

// SettlementHandler lists the merchant's own settlements.
type SettlementHandler struct {
	settlements *settlement.Service
}

// NewSettlementHandler constructs a SettlementHandler.
func NewSettlementHandler(settlements *settlement.Service) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

// List returns the authenticated merchant's settlements, newest first.
func (h *SettlementHandler) List(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	page, limit := common.PageParams(c)
	rows, total, errList := h.settlements.List(c.Request.Context(), claims.SubjectID, page, limit)
	if errList != nil {
		common.WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "settlements": rows})
}

// parsePeriodParam accepts RFC3339 or a bare date.
func parsePeriodParam(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if t, errParse := time.Parse(time.RFC3339, value); errParse == nil {
		return t, true
	}
	if t, errParse := time.Parse("2006-01-02", value); errParse == nil {
		return t, true
	}
	return time.Time{}, false
}

// Summary aggregates the authenticated merchant's activity over
// [from, to) without persisting a settlement record.
func (h *SettlementHandler) Summary(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	from, okFrom := parsePeriodParam(c.Query("from"))
	to, okTo := parsePeriodParam(c.Query("to"))
	if !okFrom || !okTo || !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from/to period"})
		return
	}

	summary, errSummarize := h.settlements.Summarize(c.Request.Context(), claims.SubjectID, from, to)
	if errSummarize != nil {
		common.WriteError(c, errSummarize)
		return
	}
	c.JSON(http.StatusOK, summary)
}
