package models

import "time"

// Merchant is a payee referenced by payment and refund transactions.
// Read-mostly.
type Merchant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code    string `gorm:"type:varchar(64);not null;uniqueIndex"` // Stable merchant code.
	Name    string `gorm:"type:text;not null"`
	Contact string `gorm:"type:text"`
	Active  bool   `gorm:"not null;default:true"` // Inactive merchants cannot charge or refund.

	// Password authenticates merchant terminal logins.
	Password string `gorm:"type:text"` // bcrypt hash.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}
