package models

import "time"

// Admin is a system administrator account (role super_admin).
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Password string `gorm:"type:text;not null"` // bcrypt hash.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}
