// Package ledger owns balance and points mutations for cards. Every
// mutation runs inside a database transaction holding the card row
// lock, so concurrent payments, refunds, and adjustments for one card
// are applied serially.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/db"
	"github.com/mps-suite/mps-engine/internal/discount"
	"github.com/mps-suite/mps-engine/internal/models"
	"gorm.io/gorm"
)

// Ledger applies atomic balance and points mutations.
type Ledger struct {
	conn *gorm.DB
}

// New constructs a Ledger.
func New(conn *gorm.DB) *Ledger {
	return &Ledger{conn: conn}
}

// LockCard loads a card under the row lock and verifies it is active
// and unexpired. Callers must already be inside a transaction.
func LockCard(ctx context.Context, tx *gorm.DB, cardID uint64) (*models.Card, error) {
	var card models.Card
	if errFind := db.LockForUpdate(tx.WithContext(ctx)).
		Where("id = ?", cardID).
		First(&card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, bizerr.E(bizerr.CodeCardNotFoundOrInactive)
		}
		return nil, errFind
	}
	if card.Status != models.CardStatusActive {
		return nil, bizerr.E(bizerr.CodeCardNotActive)
	}
	if card.ExpiredAt(time.Now().UTC()) {
		return nil, bizerr.E(bizerr.CodeCardExpired)
	}
	return &card, nil
}

// DebitTx subtracts amount from the card balance inside the caller's
// transaction and returns the new balance. Only payable card types with
// sufficient balance can be debited.
func (l *Ledger) DebitTx(ctx context.Context, tx *gorm.DB, cardID uint64, amount float64) (float64, error) {
	card, errLock := LockCard(ctx, tx, cardID)
	if errLock != nil {
		return 0, errLock
	}
	if !card.Payable() {
		return 0, bizerr.E(bizerr.CodeUnsupportedCardTypeForPayment)
	}
	if amount > card.Balance {
		return 0, bizerr.E(bizerr.CodeInsufficientBalance)
	}

	newBalance := card.Balance - amount
	if errUpdate := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", cardID).
		Update("balance", newBalance).Error; errUpdate != nil {
		return 0, errUpdate
	}
	return newBalance, nil
}

// Debit runs DebitTx in its own transaction.
func (l *Ledger) Debit(ctx context.Context, cardID uint64, amount float64) (float64, error) {
	var newBalance float64
	errTx := l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errDebit error
		newBalance, errDebit = l.DebitTx(ctx, tx, cardID, amount)
		return errDebit
	})
	return newBalance, errTx
}

// CreditTx adds amount to the card balance inside the caller's
// transaction. forRefund bypasses the rechargeable type restriction:
// refunds always return value to the card that paid.
func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, cardID uint64, amount float64, forRefund bool) (float64, error) {
	card, errLock := LockCard(ctx, tx, cardID)
	if errLock != nil {
		return 0, errLock
	}
	if !forRefund && !card.Rechargeable() {
		return 0, bizerr.E(bizerr.CodeUnsupportedCardTypeForRecharge)
	}

	newBalance := card.Balance + amount
	if errUpdate := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", cardID).
		Update("balance", newBalance).Error; errUpdate != nil {
		return 0, errUpdate
	}
	return newBalance, nil
}

// Credit runs CreditTx (recharge semantics) in its own transaction.
func (l *Ledger) Credit(ctx context.Context, cardID uint64, amount float64) (float64, error) {
	var newBalance float64
	errTx := l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errCredit error
		newBalance, errCredit = l.CreditTx(ctx, tx, cardID, amount, false)
		return errCredit
	})
	return newBalance, errTx
}

// AddPointsTx adjusts the card's points by delta inside the caller's
// transaction. Negative deltas floor the balance at zero. The stored
// membership level follows the new points balance.
func (l *Ledger) AddPointsTx(ctx context.Context, tx *gorm.DB, cardID uint64, delta int64) (int64, error) {
	card, errLock := LockCard(ctx, tx, cardID)
	if errLock != nil {
		return 0, errLock
	}
	if !card.PointsBearing() {
		return 0, bizerr.E(bizerr.CodeUnsupportedCardTypeForPoints)
	}

	newPoints := card.Points + delta
	if newPoints < 0 {
		newPoints = 0
	}
	if errUpdate := tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ?", cardID).
		Updates(map[string]any{
			"points": newPoints,
			"level":  discount.TierLevel(newPoints),
		}).Error; errUpdate != nil {
		return 0, errUpdate
	}
	return newPoints, nil
}

// AddPoints runs AddPointsTx in its own transaction.
func (l *Ledger) AddPoints(ctx context.Context, cardID uint64, delta int64) (int64, error) {
	var newPoints int64
	errTx := l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errAdd error
		newPoints, errAdd = l.AddPointsTx(ctx, tx, cardID, delta)
		return errAdd
	})
	return newPoints, errTx
}

// Freeze transitions an active card to inactive.
func (l *Ledger) Freeze(ctx context.Context, cardID uint64) error {
	return l.setStatus(ctx, cardID, models.CardStatusActive, models.CardStatusInactive)
}

// Unfreeze transitions an inactive card back to active.
func (l *Ledger) Unfreeze(ctx context.Context, cardID uint64) error {
	return l.setStatus(ctx, cardID, models.CardStatusInactive, models.CardStatusActive)
}

func (l *Ledger) setStatus(ctx context.Context, cardID uint64, from, to models.CardStatus) error {
	return l.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.Card
		if errFind := db.LockForUpdate(tx.WithContext(ctx)).
			Where("id = ?", cardID).
			First(&card).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return bizerr.E(bizerr.CodeCardNotFoundOrInactive)
			}
			return errFind
		}
		if card.Status != from {
			return bizerr.E(bizerr.CodeCardNotActive)
		}
		return tx.WithContext(ctx).
			Model(&models.Card{}).
			Where("id = ?", cardID).
			Update("status", to).Error
	})
}
