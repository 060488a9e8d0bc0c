// Package discount computes effective discount multipliers for cards.
// A multiplier of 1.000 means no discount; lower means cheaper.
package discount

import (
	"context"
	"errors"

	"github.com/mps-suite/mps-engine/internal/models"
	"gorm.io/gorm"
)

// tier is one step of the membership level table.
type tier struct {
	level     int
	minPoints int64
	discount  float64
}

// tiers is ordered by descending minPoints so the first match wins.
// The step function is monotonically non-increasing in points.
var tiers = []tier{
	{level: 3, minPoints: 10000, discount: 0.850},
	{level: 2, minPoints: 5000, discount: 0.900},
	{level: 1, minPoints: 1000, discount: 0.950},
	{level: 0, minPoints: 0, discount: 1.000},
}

// TierDiscount returns the tier multiplier for a points balance.
func TierDiscount(points int64) float64 {
	for _, t := range tiers {
		if points >= t.minPoints {
			return t.discount
		}
	}
	return 1.000
}

// TierLevel returns the membership level for a points balance.
func TierLevel(points int64) int {
	for _, t := range tiers {
		if points >= t.minPoints {
			return t.level
		}
	}
	return 0
}

// Effective returns the spending multiplier for a card, in (0, 1].
//
// Standard cards take the better of their tier discount and any
// inherited corporate discount. Voucher cards have no discount.
// Corporate cards cannot pay; their fixed discount is only a value to
// propagate, so Effective returns 1.000 for them.
func Effective(card *models.Card) float64 {
	if card == nil || card.CardType != models.CardTypeStandard {
		return 1.000
	}
	d := TierDiscount(card.Points)
	if card.CorporateDiscount != nil && *card.CorporateDiscount > 0 && *card.CorporateDiscount < d {
		d = *card.CorporateDiscount
	}
	if d <= 0 || d > 1 {
		return 1.000
	}
	return d
}

// SetCorporateInheritance sets or clears the inherited corporate
// discount on a standard card. Called by the binding manager inside its
// own transaction; not part of the external surface.
func SetCorporateInheritance(ctx context.Context, tx *gorm.DB, cardID uint64, d *float64) error {
	if tx == nil {
		return errors.New("discount: nil tx")
	}
	return tx.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ? AND card_type = ?", cardID, models.CardTypeStandard).
		Update("corporate_discount", d).Error
}
