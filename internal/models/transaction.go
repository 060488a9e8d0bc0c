package models

import (
	"time"

	"gorm.io/datatypes"
)

// TxType is the kind of financial operation a transaction records.
type TxType string

// Transaction types.
const (
	TxTypePayment  TxType = "payment"
	TxTypeRefund   TxType = "refund"
	TxTypeRecharge TxType = "recharge"
)

// TxStatus is the state of a transaction record.
type TxStatus string

// Transaction statuses. Completed records are immutable; the only
// permitted later change is payment -> refunded on a full refund.
const (
	TxStatusProcessing TxStatus = "processing"
	TxStatusCompleted  TxStatus = "completed"
	TxStatusFailed     TxStatus = "failed"
	TxStatusCancelled  TxStatus = "cancelled"
	TxStatusRefunded   TxStatus = "refunded"
)

// PaymentMethod identifies how a recharge was funded.
type PaymentMethod string

// Payment methods.
const (
	PaymentMethodBalance PaymentMethod = "balance"
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodWechat  PaymentMethod = "wechat"
	PaymentMethodAlipay  PaymentMethod = "alipay"
)

// Transaction is an immutable record of a payment, refund, or recharge.
// Refunds reference the original payment; they never edit it.
type Transaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TxNo   string   `gorm:"type:varchar(64);not null;uniqueIndex"` // Human-readable transaction number.
	TxType TxType   `gorm:"type:varchar(16);not null;index"`
	Status TxStatus `gorm:"type:varchar(16);not null;default:processing;index"`

	CardID     uint64  `gorm:"not null;index"`
	MerchantID *uint64 `gorm:"index"` // Nil for recharges.

	RawAmount       float64 `gorm:"type:decimal(20,2);not null"`           // Amount before discount.
	DiscountApplied float64 `gorm:"type:decimal(6,3);not null;default:1"`  // Effective multiplier.
	FinalAmount     float64 `gorm:"type:decimal(20,2);not null"`           // Amount actually moved.
	PointsEarned    int64   `gorm:"not null;default:0"`

	// IdempotencyKey deduplicates retried charge/recharge requests.
	// Nil for refunds.
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex"`
	// OriginalTxID links a refund to the payment it reverses.
	OriginalTxID *uint64 `gorm:"index"`

	PaymentMethod   PaymentMethod  `gorm:"type:varchar(32)"`
	ExternalOrderID *string        `gorm:"type:varchar(128)"`
	Reason          string         `gorm:"type:text"`        // Refund reason or adjustment note.
	FailCode        string         `gorm:"type:varchar(64)"` // Business code when status=failed.
	Tag             datatypes.JSON `gorm:"type:jsonb"`       // Free-form caller metadata.

	Card     Card      `gorm:"foreignKey:CardID"`
	Merchant *Merchant `gorm:"foreignKey:MerchantID"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// Refundable reports whether a refund may be issued against this
// transaction. Partially refunded payments stay completed, so both
// completed and refunded payments qualify for the cumulative check.
func (t *Transaction) Refundable() bool {
	return t.TxType == TxTypePayment &&
		(t.Status == TxStatusCompleted || t.Status == TxStatusRefunded)
}
