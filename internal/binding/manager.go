// Package binding manages the many-to-many card/member relationships,
// role checks, and the corporate discount inheritance they drive.
package binding

import (
	"context"
	"errors"
	"fmt"

	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/db"
	"github.com/mps-suite/mps-engine/internal/discount"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Manager manages card bindings.
type Manager struct {
	conn *gorm.DB
}

// NewManager constructs a Manager.
func NewManager(conn *gorm.DB) *Manager {
	return &Manager{conn: conn}
}

// Bind attaches a member to a shareable card with the given role. When
// the card has a binding password set, it must match. Binding a
// corporate card recomputes the member's inherited discount.
func (m *Manager) Bind(ctx context.Context, cardID, memberID uint64, role models.BindRole, bindingPassword string) error {
	if !role.Valid() {
		return fmt.Errorf("binding: invalid role %q", role)
	}

	return m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, errCard := m.lockCard(ctx, tx, cardID)
		if errCard != nil {
			return errCard
		}

		if !card.Shareable() {
			return bizerr.E(bizerr.CodeCardTypeNotShareable)
		}
		if card.BindingPasswordHash != nil {
			if !security.CheckPassword(*card.BindingPasswordHash, bindingPassword) {
				return bizerr.E(bizerr.CodeInvalidBindingPassword)
			}
		}

		var existing models.CardBinding
		errFind := tx.WithContext(ctx).
			Where("card_id = ? AND member_id = ?", cardID, memberID).
			First(&existing).Error
		if errFind == nil {
			// Already bound; binding is idempotent.
			return nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}

		bindingRow := models.CardBinding{CardID: cardID, MemberID: memberID, Role: role}
		if errCreate := tx.WithContext(ctx).Create(&bindingRow).Error; errCreate != nil {
			return errCreate
		}

		if card.CardType == models.CardTypeCorporate {
			if errRecompute := m.recomputeInheritanceTx(ctx, tx, memberID); errRecompute != nil {
				return errRecompute
			}
		}
		log.Infof("bound member %d to card %d as %s", memberID, cardID, role)
		return nil
	})
}

// Unbind detaches a member from a card. The last owner can never be
// removed. Unbinding a corporate card recomputes the member's inherited
// discount from any remaining corporate bindings.
func (m *Manager) Unbind(ctx context.Context, cardID, memberID uint64) error {
	return m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, errCard := m.lockCard(ctx, tx, cardID)
		if errCard != nil {
			return errCard
		}

		var bindingRow models.CardBinding
		if errFind := tx.WithContext(ctx).
			Where("card_id = ? AND member_id = ?", cardID, memberID).
			First(&bindingRow).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				// Nothing bound; unbind is idempotent.
				return nil
			}
			return errFind
		}

		if bindingRow.Role == models.BindRoleOwner {
			var owners int64
			if errCount := tx.WithContext(ctx).
				Model(&models.CardBinding{}).
				Where("card_id = ? AND role = ?", cardID, models.BindRoleOwner).
				Count(&owners).Error; errCount != nil {
				return errCount
			}
			if owners <= 1 {
				return bizerr.E(bizerr.CodeCannotRemoveLastOwner)
			}
		}

		if errDelete := tx.WithContext(ctx).Delete(&bindingRow).Error; errDelete != nil {
			return errDelete
		}

		if card.CardType == models.CardTypeCorporate {
			if errRecompute := m.recomputeInheritanceTx(ctx, tx, memberID); errRecompute != nil {
				return errRecompute
			}
		}
		log.Infof("unbound member %d from card %d", memberID, cardID)
		return nil
	})
}

// CreateOwnerBinding records the initial owner binding for a freshly
// issued card. Bypasses the shareable check; card creation is the one
// place an owner appears on a non-shareable card.
func (m *Manager) CreateOwnerBinding(ctx context.Context, tx *gorm.DB, cardID, memberID uint64) error {
	bindingRow := models.CardBinding{CardID: cardID, MemberID: memberID, Role: models.BindRoleOwner}
	return tx.WithContext(ctx).Create(&bindingRow).Error
}

// SetBindingPassword sets or clears (empty password) the card's binding
// password.
func (m *Manager) SetBindingPassword(ctx context.Context, cardID uint64, password string) error {
	return m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errCard := m.lockCard(ctx, tx, cardID); errCard != nil {
			return errCard
		}
		var hash *string
		if password != "" {
			hashed, errHash := security.HashPassword(password)
			if errHash != nil {
				return errHash
			}
			hash = &hashed
		}
		return tx.WithContext(ctx).
			Model(&models.Card{}).
			Where("id = ?", cardID).
			Update("binding_password_hash", hash).Error
	})
}

// LinkExternalIdentity attaches an external platform identity to a
// member. A given (org, user id) pair belongs to at most one member.
func (m *Manager) LinkExternalIdentity(ctx context.Context, memberID uint64, org, externalUserID string) error {
	return m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var other models.Member
		errFind := tx.WithContext(ctx).
			Where("external_org = ? AND external_user_id = ? AND id <> ?", org, externalUserID, memberID).
			First(&other).Error
		if errFind == nil {
			return bizerr.E(bizerr.CodeExternalIDAlreadyBound)
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}
		return tx.WithContext(ctx).
			Model(&models.Member{}).
			Where("id = ?", memberID).
			Updates(map[string]any{
				"external_org":     org,
				"external_user_id": externalUserID,
			}).Error
	})
}

// RoleOf returns the member's role on a card, or ok=false when no
// binding exists.
func (m *Manager) RoleOf(ctx context.Context, cardID, memberID uint64) (models.BindRole, bool, error) {
	var bindingRow models.CardBinding
	errFind := m.conn.WithContext(ctx).
		Where("card_id = ? AND member_id = ?", cardID, memberID).
		First(&bindingRow).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errFind
	}
	return bindingRow.Role, true, nil
}

// ListByMember returns all bindings for a member with cards preloaded.
func (m *Manager) ListByMember(ctx context.Context, memberID uint64) ([]models.CardBinding, error) {
	var rows []models.CardBinding
	if errFind := m.conn.WithContext(ctx).
		Preload("Card").
		Where("member_id = ?", memberID).
		Order("created_at ASC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// lockCard loads a card under the row lock without status checks;
// binding management works on frozen cards too.
func (m *Manager) lockCard(ctx context.Context, tx *gorm.DB, cardID uint64) (*models.Card, error) {
	var card models.Card
	if errFind := db.LockForUpdate(tx.WithContext(ctx)).
		Where("id = ?", cardID).
		First(&card).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, bizerr.E(bizerr.CodeCardNotFoundOrInactive)
		}
		return nil, errFind
	}
	return &card, nil
}

// recomputeInheritanceTx re-derives the member's inherited corporate
// discount from their remaining active corporate bindings and applies
// it to every standard card the member owns. Several corporate
// bindings keep the lowest (best) discount.
func (m *Manager) recomputeInheritanceTx(ctx context.Context, tx *gorm.DB, memberID uint64) error {
	var discounts []float64
	if errScan := tx.WithContext(ctx).
		Model(&models.CardBinding{}).
		Joins("JOIN cards ON cards.id = card_bindings.card_id").
		Where("card_bindings.member_id = ? AND cards.card_type = ? AND cards.status = ? AND cards.fixed_discount IS NOT NULL",
			memberID, models.CardTypeCorporate, models.CardStatusActive).
		Pluck("cards.fixed_discount", &discounts).Error; errScan != nil {
		return errScan
	}

	var inherited *float64
	for i := range discounts {
		d := discounts[i]
		if d <= 0 || d > 1 {
			continue
		}
		if inherited == nil || d < *inherited {
			inherited = &d
		}
	}

	var standardCards []models.Card
	if errFind := tx.WithContext(ctx).
		Select("id").
		Where("owner_member_id = ? AND card_type = ?", memberID, models.CardTypeStandard).
		Find(&standardCards).Error; errFind != nil {
		return errFind
	}
	for _, card := range standardCards {
		if errSet := discount.SetCorporateInheritance(ctx, tx, card.ID, inherited); errSet != nil {
			return errSet
		}
	}
	return nil
}
