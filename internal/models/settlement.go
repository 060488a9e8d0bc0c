package models

import (
	"time"

	"gorm.io/datatypes"
)

// SettlementMode determines the aggregation cadence for a merchant.
type SettlementMode string

// Settlement modes.
const (
	SettlementModeRealtime SettlementMode = "realtime"
	SettlementModeTPlus1   SettlementMode = "t_plus_1"
	SettlementModeMonthly  SettlementMode = "monthly"
)

// SettlementStatus is the state of a settlement record.
type SettlementStatus string

// Settlement statuses.
const (
	SettlementStatusPending SettlementStatus = "pending"
	SettlementStatusSettled SettlementStatus = "settled"
	SettlementStatusFailed  SettlementStatus = "failed"
	SettlementStatusPaid    SettlementStatus = "paid"
)

// Settlement is a periodic aggregation of a merchant's transactions
// into a payable summary.
type Settlement struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	MerchantID uint64           `gorm:"not null;index"`
	Mode       SettlementMode   `gorm:"type:varchar(16);not null"`
	Status     SettlementStatus `gorm:"type:varchar(16);not null;default:pending"`

	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`

	TotalAmount  float64        `gorm:"type:decimal(20,2);not null;default:0"` // Net payable amount.
	TotalTxCount int64          `gorm:"not null;default:0"`
	Payload      datatypes.JSON `gorm:"type:jsonb"` // Per-type breakdown.

	Merchant Merchant `gorm:"foreignKey:MerchantID"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}
