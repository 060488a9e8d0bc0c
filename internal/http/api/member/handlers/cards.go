package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/discount"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/txengine"
)

// CardHandler exposes a member's view of their cards.
type CardHandler struct {
	bindings *binding.Manager
	engine   *txengine.Engine
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(bindings *binding.Manager, engine *txengine.Engine) *CardHandler {
	return &CardHandler{bindings: bindings, engine: engine}
}

// cardView is the member-facing card projection. The binding password
// hash never leaves the server.
type cardView struct {
	ID                uint64            `json:"id"`
	CardNo            string            `json:"card_no"`
	Name              string            `json:"name"`
	CardType          models.CardType   `json:"card_type"`
	Status            models.CardStatus `json:"status"`
	Balance           float64           `json:"balance"`
	Points            int64             `json:"points"`
	Level             int               `json:"level"`
	EffectiveDiscount float64           `json:"effective_discount"`
	Role              models.BindRole   `json:"role"`
}

func viewOf(card *models.Card, role models.BindRole) cardView {
	return cardView{
		ID:                card.ID,
		CardNo:            card.CardNo,
		Name:              card.Name,
		CardType:          card.CardType,
		Status:            card.Status,
		Balance:           card.Balance,
		Points:            card.Points,
		Level:             card.Level,
		EffectiveDiscount: discount.Effective(card),
		Role:              role,
	}
}

// List returns every card the member is bound to.
func (h *CardHandler) List(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	rows, errList := h.bindings.ListByMember(c.Request.Context(), claims.SubjectID)
	if errList != nil {
		common.WriteError(c, errList)
		return
	}
	views := make([]cardView, 0, len(rows))
	for i := range rows {
		views = append(views, viewOf(&rows[i].Card, rows[i].Role))
	}
	c.JSON(http.StatusOK, gin.H{"cards": views})
}

// Get returns one card the member is bound to.
func (h *CardHandler) Get(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rows, errList := h.bindings.ListByMember(c.Request.Context(), claims.SubjectID)
	if errList != nil {
		common.WriteError(c, errList)
		return
	}
	for i := range rows {
		if rows[i].CardID == cardID {
			c.JSON(http.StatusOK, viewOf(&rows[i].Card, rows[i].Role))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
}

type rechargeRequest struct {
	Amount          float64 `json:"amount"`
	PaymentMethod   string  `json:"payment_method"`
	IdempotencyKey  string  `json:"idempotency_key"`
	ExternalOrderID *string `json:"external_order_id"`
}

// Recharge credits one of the member's own cards. Requires a binding
// with spending rights.
func (h *CardHandler) Recharge(c *gin.Context) {
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

	var body rechargeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	method := models.PaymentMethod(strings.TrimSpace(body.PaymentMethod))
	if method == "" {
		method = models.PaymentMethodWechat
	}

	record, errRecharge := h.engine.Recharge(c.Request.Context(), txengine.RechargeParams{
		CardID:          cardID,
		Amount:          body.Amount,
		PaymentMethod:   method,
		IdempotencyKey:  strings.TrimSpace(body.IdempotencyKey),
		ExternalOrderID: body.ExternalOrderID,
	})
	if errRecharge != nil {
		common.WriteError(c, errRecharge)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Transactions lists a bound card's transactions, newest first.
func (h *CardHandler) Transactions(c *gin.Context) {
	claims := common.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if !requireBinding(c, h.bindings, cardID, claims.SubjectID, nil) {
		return
	}

	page, limit := common.PageParams(c)
	rows, total, errList := h.engine.ListByCard(c.Request.Context(), cardID, limit, (page-1)*limit)
	if errList != nil {
		common.WriteError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "transactions": rows})
}
