package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/ledger"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/txengine"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CardHandler handles card issuance and administration.
type CardHandler struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	engine   *txengine.Engine
	bindings *binding.Manager
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(db *gorm.DB, l *ledger.Ledger, engine *txengine.Engine, bindings *binding.Manager) *CardHandler {
	return &CardHandler{db: db, ledger: l, engine: engine, bindings: bindings}
}

type createCardRequest struct {
	Name            string   `json:"name"`
	CardType        string   `json:"card_type"`
	OwnerMemberID   uint64   `json:"owner_member_id"`
	InitialBalance  float64  `json:"initial_balance"`
	FixedDiscount   *float64 `json:"fixed_discount"`
	BindingPassword string   `json:"binding_password"`
	ExpiresAt       *string  `json:"expires_at"` // RFC3339, optional.
}

// Create issues a new card and records its owner binding atomically.
func (h *CardHandler) Create(c *gin.Context) {
	var body createCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cardType := models.CardType(strings.TrimSpace(body.CardType))
	switch cardType {
	case models.CardTypeStandard, models.CardTypeVoucher, models.CardTypeCorporate:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid card_type"})
		return
	}
	if body.OwnerMemberID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing owner_member_id"})
		return
	}
	if body.InitialBalance < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid initial_balance"})
		return
	}
	if cardType == models.CardTypeCorporate {
		if body.FixedDiscount == nil || *body.FixedDiscount <= 0 || *body.FixedDiscount > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "corporate card requires fixed_discount in (0, 1]"})
			return
		}
		if body.InitialBalance != 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "corporate card carries no balance"})
			return
		}
	} else if body.FixedDiscount != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fixed_discount is corporate-only"})
		return
	}

	var expiresAt *time.Time
	if body.ExpiresAt != nil && strings.TrimSpace(*body.ExpiresAt) != "" {
		parsed, errParse := time.Parse(time.RFC3339, strings.TrimSpace(*body.ExpiresAt))
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires_at"})
			return
		}
		expiresAt = &parsed
	}

	ctx := c.Request.Context()
	var owner models.Member
	if errFind := h.db.WithContext(ctx).
		Where("id = ? AND status = ?", body.OwnerMemberID, models.MemberStatusActive).
		First(&owner).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	serial, errSerial := security.GenerateRandomDigits(8)
	if errSerial != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate card number failed"})
		return
	}
	card := models.Card{
		CardNo:        "C" + time.Now().UTC().Format("20060102") + serial,
		Name:          strings.TrimSpace(body.Name),
		CardType:      cardType,
		Status:        models.CardStatusActive,
		OwnerMemberID: owner.ID,
		Balance:       txengine.RoundHalfUp(body.InitialBalance),
		FixedDiscount: body.FixedDiscount,
		ExpiresAt:     expiresAt,
	}
	if strings.TrimSpace(body.BindingPassword) != "" {
		hash, errHash := security.HashPassword(strings.TrimSpace(body.BindingPassword))
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash binding password failed"})
			return
		}
		card.BindingPasswordHash = &hash
	}

	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.WithContext(ctx).Create(&card).Error; errCreate != nil {
			return errCreate
		}
		return h.bindings.CreateOwnerBinding(ctx, tx, card.ID, owner.ID)
	})
	if errTx != nil {
		common.WriteError(c, errTx)
		return
	}
	c.JSON(http.StatusCreated, card)
}

// Get returns one card.
func (h *CardHandler) Get(c *gin.Context) {
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var card models.Card
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ?", cardID).
		First(&card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		common.WriteError(c, errFind)
		return
	}
	c.JSON(http.StatusOK, card)
}

// List returns a page of cards, optionally filtered by type or status.
func (h *CardHandler) List(c *gin.Context) {
	page, limit := common.PageParams(c)
	query := h.db.WithContext(c.Request.Context()).Model(&models.Card{})
	if v := strings.TrimSpace(c.Query("card_type")); v != "" {
		query = query.Where("card_type = ?", v)
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		query = query.Where("status = ?", v)
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		common.WriteError(c, errCount)
		return
	}
	var cards []models.Card
	if errFind := query.Session(&gorm.Session{}).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&cards).Error; errFind != nil {
		common.WriteError(c, errFind)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "limit": limit, "cards": cards})
}

// Freeze suspends an active card.
func (h *CardHandler) Freeze(c *gin.Context) {
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errFreeze := h.ledger.Freeze(c.Request.Context(), cardID); errFreeze != nil {
		common.WriteError(c, errFreeze)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.CardStatusInactive})
}

// Unfreeze reactivates a frozen card.
func (h *CardHandler) Unfreeze(c *gin.Context) {
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if errUnfreeze := h.ledger.Unfreeze(c.Request.Context(), cardID); errUnfreeze != nil {
		common.WriteError(c, errUnfreeze)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.CardStatusActive})
}

type pointsRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// AdjustPoints applies a manual points delta to a card. The resulting
// points floor at zero and the level is rederived.
func (h *CardHandler) AdjustPoints(c *gin.Context) {
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body pointsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Delta == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing delta"})
		return
	}

	points, errAdjust := h.ledger.AddPoints(c.Request.Context(), cardID, body.Delta)
	if errAdjust != nil {
		common.WriteError(c, errAdjust)
		return
	}
	log.Infof("points adjusted on card %d by %+d: %s", cardID, body.Delta, strings.TrimSpace(body.Reason))
	c.JSON(http.StatusOK, gin.H{"points": points})
}

type rechargeRequest struct {
	Amount          float64 `json:"amount"`
	PaymentMethod   string  `json:"payment_method"`
	IdempotencyKey  string  `json:"idempotency_key"`
	ExternalOrderID *string `json:"external_order_id"`
}

// Recharge credits a card through the transaction engine.
func (h *CardHandler) Recharge(c *gin.Context) {
	cardID, ok := common.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var body rechargeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	method := models.PaymentMethod(strings.TrimSpace(body.PaymentMethod))
	if method == "" {
		method = models.PaymentMethodCash
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
