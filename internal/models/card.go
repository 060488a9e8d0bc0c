package models

import "time"

// CardType distinguishes the capability profile of a card.
type CardType string

// Card types.
const (
	// CardTypeStandard is the default spendable, point-accruing card.
	CardTypeStandard CardType = "standard"
	// CardTypeVoucher is a single-purpose stored-value card.
	CardTypeVoucher CardType = "voucher"
	// CardTypeCorporate carries no spendable balance, only a fixed
	// discount propagated to bound members.
	CardTypeCorporate CardType = "corporate"
)

// CardStatus is the lifecycle state of a card.
type CardStatus string

// Card statuses.
const (
	CardStatusActive    CardStatus = "active"
	CardStatusInactive  CardStatus = "inactive"
	CardStatusLost      CardStatus = "lost"
	CardStatusExpired   CardStatus = "expired"
	CardStatusSuspended CardStatus = "suspended"
	CardStatusClosed    CardStatus = "closed"
)

// Card is a balance/points/discount-bearing account instrument issued
// to a member. Cards are never deleted; closing is a status change.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardNo   string     `gorm:"type:text;not null;uniqueIndex"` // Human-readable card number.
	Name     string     `gorm:"type:text"`                      // Display name.
	CardType CardType   `gorm:"type:varchar(32);not null"`      // Capability profile.
	Status   CardStatus `gorm:"type:varchar(32);not null;default:active;index"`

	OwnerMemberID uint64 `gorm:"not null;index"` // Issuing member.

	Balance float64 `gorm:"type:decimal(20,2);not null;default:0"` // Spendable balance (standard/voucher).
	Points  int64   `gorm:"not null;default:0"`                    // Loyalty points (standard only).
	Level   int     `gorm:"not null;default:0"`                    // Membership level derived from points.

	// FixedDiscount is the discount a corporate card propagates to its
	// bound members. Unset for other card types.
	FixedDiscount *float64 `gorm:"type:decimal(6,3)"`
	// CorporateDiscount is the discount inherited onto a standard card
	// through an active corporate binding.
	CorporateDiscount *float64 `gorm:"type:decimal(6,3)"`

	BindingPasswordHash *string    `gorm:"type:text"` // bcrypt hash, nil when no password is set.
	ExpiresAt           *time.Time // Expiry, nil means no expiry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// Payable reports whether the card type can be debited for payment.
func (c *Card) Payable() bool {
	return c.CardType == CardTypeStandard || c.CardType == CardTypeVoucher
}

// Rechargeable reports whether the card type accepts recharges.
func (c *Card) Rechargeable() bool {
	return c.CardType == CardTypeStandard
}

// PointsBearing reports whether the card type accrues points.
func (c *Card) PointsBearing() bool {
	return c.CardType == CardTypeStandard
}

// Shareable reports whether the card type can be bound by additional
// members.
func (c *Card) Shareable() bool {
	return c.CardType == CardTypeCorporate
}

// ExpiredAt reports whether the card is expired at the given instant.
func (c *Card) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// BindRole is a member's role on a card binding.
type BindRole string

// Binding roles.
const (
	BindRoleOwner  BindRole = "owner"
	BindRoleAdmin  BindRole = "admin"
	BindRoleMember BindRole = "member"
	BindRoleViewer BindRole = "viewer"
)

// CanSpend reports whether the role grants spending rights.
func (r BindRole) CanSpend() bool {
	return r == BindRoleOwner || r == BindRoleAdmin || r == BindRoleMember
}

// CanManage reports whether the role grants management rights.
func (r BindRole) CanManage() bool {
	return r == BindRoleOwner || r == BindRoleAdmin
}

// Valid reports whether the role is one of the known binding roles.
func (r BindRole) Valid() bool {
	switch r {
	case BindRoleOwner, BindRoleAdmin, BindRoleMember, BindRoleViewer:
		return true
	}
	return false
}

// CardBinding is a role-scoped association between a member and a card.
// Unique per (card, member) pair; every card keeps at least one owner.
type CardBinding struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID   uint64   `gorm:"not null;uniqueIndex:idx_card_member"` // Bound card.
	MemberID uint64   `gorm:"not null;uniqueIndex:idx_card_member;index"`
	Role     BindRole `gorm:"type:varchar(16);not null"` // Usage/management rights.

	Card   Card   `gorm:"foreignKey:CardID"`
	Member Member `gorm:"foreignKey:MemberID"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}
