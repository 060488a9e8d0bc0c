// Package txengine orchestrates payments, refunds, and recharges as
// atomic operations against the card ledger, producing immutable
// transaction records with idempotency guarantees.
package txengine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/discount"
	"github.com/mps-suite/mps-engine/internal/ledger"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/policy"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
	"github.com/mps-suite/mps-engine/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Engine is the sole mutator of card ledger state for financial
// operations.
type Engine struct {
	conn   *gorm.DB
	ledger *ledger.Ledger
	tokens *qrtoken.Manager
}

// New constructs an Engine.
func New(conn *gorm.DB, l *ledger.Ledger, tokens *qrtoken.Manager) *Engine {
	return &Engine{conn: conn, ledger: l, tokens: tokens}
}

// Actor identifies the authenticated caller for authorization checks
// performed inside the engine.
type Actor struct {
	Role       security.Role
	MerchantID uint64
	MemberID   uint64
}

// ChargeParams are the inputs to ChargeByQR.
type ChargeParams struct {
	MerchantCode    string
	QRPlain         string
	RawAmount       float64
	IdempotencyKey  string
	Tag             datatypes.JSON
	ExternalOrderID *string
}

// ChargeByQR charges a card resolved from a QR token on behalf of a
// merchant. Retrying with the same idempotency key returns the original
// transaction without a second debit. Ledger failures persist a failed
// transaction record for audit and are returned alongside it.
func (e *Engine) ChargeByQR(ctx context.Context, p ChargeParams) (*models.Transaction, error) {
	merchant, errMerchant := e.resolveMerchant(ctx, p.MerchantCode)
	if errMerchant != nil {
		return nil, errMerchant
	}

	cardID, errValidate := e.tokens.Validate(ctx, p.QRPlain)
	if errValidate != nil {
		return nil, errValidate
	}

	if p.RawAmount <= 0 {
		return nil, bizerr.E(bizerr.CodeInvalidPrice)
	}

	if prior, ok, errPrior := e.findByIdempotencyKey(ctx, p.IdempotencyKey); errPrior != nil {
		return nil, errPrior
	} else if ok {
		return prior, nil
	}

	record := models.Transaction{
		TxNo:            NewTxNo(models.TxTypePayment),
		TxType:          models.TxTypePayment,
		CardID:          cardID,
		MerchantID:      &merchant.ID,
		RawAmount:       RoundHalfUp(p.RawAmount),
		DiscountApplied: 1,
		PaymentMethod:   models.PaymentMethodBalance,
		ExternalOrderID: p.ExternalOrderID,
		Tag:             p.Tag,
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		record.IdempotencyKey = &key
	}

	errTx := e.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, errLock := ledger.LockCard(ctx, tx, cardID)
		if errLock != nil {
			return errLock
		}
		if !card.Payable() {
			return bizerr.E(bizerr.CodeUnsupportedCardTypeForPayment)
		}

		multiplier := discount.Effective(card)
		record.DiscountApplied = multiplier
		record.FinalAmount = RoundHalfUp(record.RawAmount * multiplier)

		if _, errDebit := e.ledger.DebitTx(ctx, tx, cardID, record.FinalAmount); errDebit != nil {
			return errDebit
		}

		if card.PointsBearing() {
			record.PointsEarned = int64(math.Floor(record.RawAmount))
			if record.PointsEarned > 0 {
				if _, errPoints := e.ledger.AddPointsTx(ctx, tx, cardID, record.PointsEarned); errPoints != nil {
					return errPoints
				}
			}
		}

		record.Status = models.TxStatusCompleted
		return tx.WithContext(ctx).Create(&record).Error
	})
	if errTx != nil {
		if code, isBiz := bizerr.CodeOf(errTx); isBiz {
			failed := e.persistFailed(ctx, record, code)
			return failed, errTx
		}
		if prior, ok, errPrior := e.findByIdempotencyKey(ctx, p.IdempotencyKey); errPrior == nil && ok {
			// Lost an idempotency race; the winner's record stands.
			return prior, nil
		}
		return nil, errTx
	}

	log.Infof("payment %s completed: card=%d merchant=%s amount=%.2f discount=%.3f",
		record.TxNo, cardID, merchant.Code, record.FinalAmount, record.DiscountApplied)
	return &record, nil
}

// RefundParams are the inputs to Refund.
type RefundParams struct {
	MerchantCode string
	OriginalTxNo string
	Amount       float64
	Reason       string
	Tag          datatypes.JSON
	Actor        Actor
}

// Refund reverses part or all of a completed payment by crediting the
// card and creating a linked refund transaction. The cumulative
// refunded total never exceeds the original final amount; the check and
// the credit happen under the card's row lock.
func (e *Engine) Refund(ctx context.Context, p RefundParams) (*models.Transaction, error) {
	merchant, errMerchant := e.resolveMerchant(ctx, p.MerchantCode)
	if errMerchant != nil {
		return nil, errMerchant
	}

	switch p.Actor.Role {
	case security.RoleSuperAdmin:
	case security.RoleMerchant:
		if p.Actor.MerchantID != merchant.ID {
			return nil, bizerr.E(bizerr.CodeNotMerchantUser)
		}
	default:
		return nil, bizerr.E(bizerr.CodeNotMerchantUser)
	}

	if p.Amount <= 0 {
		return nil, bizerr.E(bizerr.CodeInvalidRefundAmount)
	}
	amount := RoundHalfUp(p.Amount)

	record := models.Transaction{
		TxNo:            NewTxNo(models.TxTypeRefund),
		TxType:          models.TxTypeRefund,
		MerchantID:      &merchant.ID,
		RawAmount:       amount,
		DiscountApplied: 1,
		FinalAmount:     amount,
		Status:          models.TxStatusCompleted,
		Reason:          p.Reason,
		Tag:             p.Tag,
	}

	errTx := e.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original models.Transaction
		if errFind := tx.WithContext(ctx).
			Where("tx_no = ?", p.OriginalTxNo).
			First(&original).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return bizerr.E(bizerr.CodeOriginalTxNotFound)
			}
			return errFind
		}

		if original.MerchantID == nil || *original.MerchantID != merchant.ID {
			return bizerr.E(bizerr.CodeNotMerchantUser)
		}
		if !original.Refundable() {
			return bizerr.E(bizerr.CodeOnlyCompletedPaymentRefundable)
		}

		// The card row lock serializes concurrent refunds against the
		// same payment, making the cumulative check race-free.
		if _, errLock := ledger.LockCard(ctx, tx, original.CardID); errLock != nil {
			return errLock
		}

		var refunded float64
		if errSum := tx.WithContext(ctx).
			Model(&models.Transaction{}).
			Where("original_tx_id = ? AND tx_type = ? AND status = ?",
				original.ID, models.TxTypeRefund, models.TxStatusCompleted).
			Select("COALESCE(SUM(final_amount), 0)").
			Scan(&refunded).Error; errSum != nil {
			return errSum
		}

		remaining := cents(original.FinalAmount) - cents(refunded)
		if cents(amount) > remaining {
			return bizerr.E(bizerr.CodeRefundExceedsRemaining)
		}

		if _, errCredit := e.ledger.CreditTx(ctx, tx, original.CardID, amount, true); errCredit != nil {
			return errCredit
		}

		record.CardID = original.CardID
		record.OriginalTxID = &original.ID
		if errCreate := tx.WithContext(ctx).Create(&record).Error; errCreate != nil {
			return errCreate
		}

		if cents(amount) == remaining {
			// Fully refunded; this status flip is the only mutation a
			// completed payment ever receives.
			return tx.WithContext(ctx).
				Model(&models.Transaction{}).
				Where("id = ?", original.ID).
				Update("status", models.TxStatusRefunded).Error
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	log.Infof("refund %s completed: original=%s amount=%.2f", record.TxNo, p.OriginalTxNo, amount)
	return &record, nil
}

// RechargeParams are the inputs to Recharge.
type RechargeParams struct {
	CardID          uint64
	Amount          float64
	PaymentMethod   models.PaymentMethod
	IdempotencyKey  string
	Tag             datatypes.JSON
	ExternalOrderID *string
}

// Recharge credits a rechargeable card. No discount applies; points
// accrue only when the recharge points policy is enabled.
func (e *Engine) Recharge(ctx context.Context, p RechargeParams) (*models.Transaction, error) {
	if p.Amount <= 0 {
		return nil, bizerr.E(bizerr.CodeInvalidRechargeAmount)
	}
	amount := RoundHalfUp(p.Amount)

	if prior, ok, errPrior := e.findByIdempotencyKey(ctx, p.IdempotencyKey); errPrior != nil {
		return nil, errPrior
	} else if ok {
		return prior, nil
	}

	record := models.Transaction{
		TxNo:            NewTxNo(models.TxTypeRecharge),
		TxType:          models.TxTypeRecharge,
		CardID:          p.CardID,
		RawAmount:       amount,
		DiscountApplied: 1,
		FinalAmount:     amount,
		Status:          models.TxStatusCompleted,
		PaymentMethod:   p.PaymentMethod,
		ExternalOrderID: p.ExternalOrderID,
		Tag:             p.Tag,
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		record.IdempotencyKey = &key
	}

	errTx := e.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errCredit := e.ledger.CreditTx(ctx, tx, p.CardID, amount, false); errCredit != nil {
			return errCredit
		}
		if policy.RechargeAwardsPoints() {
			record.PointsEarned = int64(math.Floor(amount))
			if record.PointsEarned > 0 {
				if _, errPoints := e.ledger.AddPointsTx(ctx, tx, p.CardID, record.PointsEarned); errPoints != nil {
					return errPoints
				}
			}
		}
		return tx.WithContext(ctx).Create(&record).Error
	})
	if errTx != nil {
		if _, isBiz := bizerr.CodeOf(errTx); isBiz {
			return nil, errTx
		}
		if prior, ok, errPrior := e.findByIdempotencyKey(ctx, p.IdempotencyKey); errPrior == nil && ok {
			return prior, nil
		}
		return nil, errTx
	}

	log.Infof("recharge %s completed: card=%d amount=%.2f method=%s",
		record.TxNo, p.CardID, amount, p.PaymentMethod)
	return &record, nil
}

// GetByTxNo returns a transaction by its number.
func (e *Engine) GetByTxNo(ctx context.Context, txNo string) (*models.Transaction, error) {
	var record models.Transaction
	if errFind := e.conn.WithContext(ctx).
		Where("tx_no = ?", txNo).
		First(&record).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, bizerr.E(bizerr.CodeTxNotFound)
		}
		return nil, errFind
	}
	return &record, nil
}

// ListByCard returns a page of a card's transactions, newest first,
// plus the total count.
func (e *Engine) ListByCard(ctx context.Context, cardID uint64, limit, offset int) ([]models.Transaction, int64, error) {
	return e.list(ctx, e.conn.WithContext(ctx).Where("card_id = ?", cardID), limit, offset)
}

// ListByMerchant returns a page of a merchant's transactions, newest
// first, plus the total count.
func (e *Engine) ListByMerchant(ctx context.Context, merchantID uint64, limit, offset int) ([]models.Transaction, int64, error) {
	return e.list(ctx, e.conn.WithContext(ctx).Where("merchant_id = ?", merchantID), limit, offset)
}

func (e *Engine) list(ctx context.Context, query *gorm.DB, limit, offset int) ([]models.Transaction, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if errCount := query.Session(&gorm.Session{}).Model(&models.Transaction{}).Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.Transaction
	if errFind := query.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

// TodayStats summarizes a merchant's completed transactions since
// midnight UTC.
type TodayStats struct {
	PaymentCount  int64   `json:"payment_count"`
	PaymentAmount float64 `json:"payment_amount"`
	RefundCount   int64   `json:"refund_count"`
	RefundAmount  float64 `json:"refund_amount"`
	NetAmount     float64 `json:"net_amount"`
}

// TodayStats aggregates today's completed payments and refunds for a
// merchant.
func (e *Engine) TodayStats(ctx context.Context, merchantID uint64) (*TodayStats, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats := &TodayStats{}
	type row struct {
		TxType models.TxType
		Count  int64
		Amount float64
	}
	var rows []row
	if errScan := e.conn.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("tx_type, COUNT(*) AS count, COALESCE(SUM(final_amount), 0) AS amount").
		Where("merchant_id = ? AND created_at >= ? AND status IN ?",
			merchantID, midnight, []models.TxStatus{models.TxStatusCompleted, models.TxStatusRefunded}).
		Group("tx_type").
		Scan(&rows).Error; errScan != nil {
		return nil, errScan
	}
	for _, r := range rows {
		switch r.TxType {
		case models.TxTypePayment:
			stats.PaymentCount = r.Count
			stats.PaymentAmount = r.Amount
		case models.TxTypeRefund:
			stats.RefundCount = r.Count
			stats.RefundAmount = r.Amount
		}
	}
	stats.NetAmount = RoundHalfUp(stats.PaymentAmount - stats.RefundAmount)
	return stats, nil
}

func (e *Engine) resolveMerchant(ctx context.Context, code string) (*models.Merchant, error) {
	var merchant models.Merchant
	if errFind := e.conn.WithContext(ctx).
		Where("code = ? AND active = ?", code, true).
		First(&merchant).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, bizerr.E(bizerr.CodeMerchantNotFoundOrInactive)
		}
		return nil, errFind
	}
	return &merchant, nil
}

func (e *Engine) findByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	var prior models.Transaction
	errFind := e.conn.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&prior).Error
	if errFind == nil {
		return &prior, true, nil
	}
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	return nil, false, errFind
}

// persistFailed writes an audit record for a charge rejected by the
// ledger. Written outside the aborted transaction; best effort.
func (e *Engine) persistFailed(ctx context.Context, record models.Transaction, code bizerr.Code) *models.Transaction {
	record.Status = models.TxStatusFailed
	record.FailCode = string(code)
	record.PointsEarned = 0
	if errCreate := e.conn.WithContext(ctx).Create(&record).Error; errCreate != nil {
		log.Errorf("persist failed transaction %s: %v", record.TxNo, errCreate)
		return nil
	}
	return &record
}
