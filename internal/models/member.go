package models

import "time"

// MemberStatus is the lifecycle state of a member account.
type MemberStatus string

// Member statuses.
const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusInactive  MemberStatus = "inactive"
	MemberStatusSuspended MemberStatus = "suspended"
	MemberStatusDeleted   MemberStatus = "deleted"
)

// Member is a registered account that owns and binds cards.
type Member struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string       `gorm:"type:text;not null"`
	Phone    string       `gorm:"type:varchar(32);not null;uniqueIndex"`
	Email    string       `gorm:"type:text"`
	Password string       `gorm:"type:text"` // bcrypt hash, empty for externally authenticated members.
	Status   MemberStatus `gorm:"type:varchar(32);not null;default:active"`

	// External identity pair. A given (org, user id) pair can be
	// attached to at most one member at a time.
	ExternalOrg    *string `gorm:"type:varchar(255);uniqueIndex:idx_external_identity"`
	ExternalUserID *string `gorm:"type:varchar(255);uniqueIndex:idx_external_identity"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}
