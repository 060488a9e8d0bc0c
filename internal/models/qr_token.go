package models

import "time"

// QRTokenState is the lifecycle state of a QR token.
type QRTokenState string

// QR token states. A card has at most one active token; rotation moves
// the previous active token to superseded.
const (
	QRTokenStateActive     QRTokenState = "active"
	QRTokenStateExpired    QRTokenState = "expired"
	QRTokenStateRevoked    QRTokenState = "revoked"
	QRTokenStateSuperseded QRTokenState = "superseded"
)

// QRToken is a time-boxed opaque credential bound to a card. Only the
// SHA-256 hash of the plaintext is stored; the plaintext is returned
// once at rotation time and consumed at validation time.
type QRToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID    uint64       `gorm:"not null;index"`
	TokenHash string       `gorm:"type:varchar(64);not null;uniqueIndex"` // Hex SHA-256 of the plaintext.
	State     QRTokenState `gorm:"type:varchar(16);not null;default:active;index"`

	IssuedAt   time.Time  `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"not null"`
	ConsumedAt *time.Time // Set when single-use policy consumes the token.

	Card Card `gorm:"foreignKey:CardID"`
}

// Usable reports whether the token can still authorize a charge at the
// given instant.
func (t *QRToken) Usable(now time.Time) bool {
	return t.State == QRTokenStateActive && now.Before(t.ExpiresAt)
}
