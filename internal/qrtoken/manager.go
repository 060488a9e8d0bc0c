// Package qrtoken issues, validates, and invalidates the time-boxed
// opaque tokens that resolve a scanned QR code to a card. At most one
// active token exists per card; rotation supersedes the previous one
// atomically.
package qrtoken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/ledger"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/policy"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// minPlainLength is the minimum accepted plaintext length. Generated
// tokens carry 32 hex characters; anything shorter than 16 is rejected
// before touching storage.
const minPlainLength = 16

// redisKeyPrefix namespaces the active-token mirror entries.
const redisKeyPrefix = "mps:qr:"

// Manager manages QR token lifecycle for cards. The redis client is
// optional; when present it mirrors active tokens for fast validation,
// with the database remaining the source of truth.
type Manager struct {
	conn *gorm.DB
	rdb  *redis.Client
}

// NewManager constructs a Manager. rdb may be nil.
func NewManager(conn *gorm.DB, rdb *redis.Client) *Manager {
	return &Manager{conn: conn, rdb: rdb}
}

// Rotated is the result of issuing a new QR token. Plain is returned
// exactly once and never stored.
type Rotated struct {
	Plain     string
	ExpiresAt time.Time
}

// Rotate issues a new token for an active card, superseding any
// previously active token in the same transaction.
func (m *Manager) Rotate(ctx context.Context, cardID uint64, ttl time.Duration) (*Rotated, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("qrtoken: non-positive ttl")
	}

	plain, errGen := security.GenerateQRPlain()
	if errGen != nil {
		return nil, errGen
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	var supersededHashes []string

	errTx := m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errLock := ledger.LockCard(ctx, tx, cardID); errLock != nil {
			return errLock
		}

		var actives []models.QRToken
		if errFind := tx.WithContext(ctx).
			Where("card_id = ? AND state = ?", cardID, models.QRTokenStateActive).
			Find(&actives).Error; errFind != nil {
			return errFind
		}
		for _, t := range actives {
			supersededHashes = append(supersededHashes, t.TokenHash)
		}
		if len(actives) > 0 {
			if errUpdate := tx.WithContext(ctx).
				Model(&models.QRToken{}).
				Where("card_id = ? AND state = ?", cardID, models.QRTokenStateActive).
				Update("state", models.QRTokenStateSuperseded).Error; errUpdate != nil {
				return errUpdate
			}
		}

		token := models.QRToken{
			CardID:    cardID,
			TokenHash: security.HashQRPlain(plain),
			State:     models.QRTokenStateActive,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}
		return tx.WithContext(ctx).Create(&token).Error
	})
	if errTx != nil {
		return nil, errTx
	}

	m.mirrorSet(ctx, security.HashQRPlain(plain), cardID, ttl)
	m.mirrorDel(ctx, supersededHashes)
	return &Rotated{Plain: plain, ExpiresAt: expiresAt}, nil
}

// Validate resolves a plaintext to the bound card id. Fails with
// QR_EXPIRED_OR_INVALID unless the token is active and unexpired. When
// the single-use policy is on, a successful validation consumes the
// token atomically.
func (m *Manager) Validate(ctx context.Context, plain string) (uint64, error) {
	if len(plain) < minPlainLength {
		return 0, bizerr.E(bizerr.CodeInvalidQR)
	}
	hash := security.HashQRPlain(plain)
	singleUse := policy.QRSingleUse()

	// Multi-use tokens can be answered from the mirror alone.
	if !singleUse {
		if cardID, ok := m.mirrorGet(ctx, hash); ok {
			return cardID, nil
		}
	}

	var cardID uint64
	errTx := m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.QRToken
		if errFind := tx.WithContext(ctx).
			Where("token_hash = ?", hash).
			First(&token).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return bizerr.E(bizerr.CodeQRExpiredOrInvalid)
			}
			return errFind
		}

		now := time.Now().UTC()
		if !token.Usable(now) {
			return bizerr.E(bizerr.CodeQRExpiredOrInvalid)
		}

		if singleUse {
			// Guard against a concurrent validation consuming the same
			// token; exactly one caller wins the state transition.
			res := tx.WithContext(ctx).
				Model(&models.QRToken{}).
				Where("id = ? AND state = ?", token.ID, models.QRTokenStateActive).
				Updates(map[string]any{
					"state":       models.QRTokenStateExpired,
					"consumed_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return bizerr.E(bizerr.CodeQRExpiredOrInvalid)
			}
		}

		cardID = token.CardID
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	if singleUse {
		m.mirrorDel(ctx, []string{hash})
	}
	return cardID, nil
}

// Revoke invalidates the card's active token, if any. Idempotent.
func (m *Manager) Revoke(ctx context.Context, cardID uint64) error {
	var revokedHashes []string
	errTx := m.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var actives []models.QRToken
		if errFind := tx.WithContext(ctx).
			Where("card_id = ? AND state = ?", cardID, models.QRTokenStateActive).
			Find(&actives).Error; errFind != nil {
			return errFind
		}
		if len(actives) == 0 {
			return nil
		}
		for _, t := range actives {
			revokedHashes = append(revokedHashes, t.TokenHash)
		}
		return tx.WithContext(ctx).
			Model(&models.QRToken{}).
			Where("card_id = ? AND state = ?", cardID, models.QRTokenStateActive).
			Update("state", models.QRTokenStateRevoked).Error
	})
	if errTx != nil {
		return errTx
	}
	m.mirrorDel(ctx, revokedHashes)
	return nil
}

// BatchRotate rotates tokens for every active corporate card as a
// periodic security sweep. The minted plaintexts are discarded, which
// invalidates all outstanding corporate QR codes. Returns the number of
// cards rotated.
func (m *Manager) BatchRotate(ctx context.Context, ttl time.Duration) (int64, error) {
	var cards []models.Card
	if errFind := m.conn.WithContext(ctx).
		Select("id").
		Where("card_type = ? AND status = ?", models.CardTypeCorporate, models.CardStatusActive).
		Find(&cards).Error; errFind != nil {
		return 0, errFind
	}

	var rotated int64
	for _, card := range cards {
		if _, errRotate := m.Rotate(ctx, card.ID, ttl); errRotate != nil {
			// Cards frozen or expired mid-sweep are skipped, not fatal.
			if _, isBiz := bizerr.CodeOf(errRotate); isBiz {
				continue
			}
			return rotated, errRotate
		}
		rotated++
	}
	return rotated, nil
}

func (m *Manager) mirrorSet(ctx context.Context, hash string, cardID uint64, ttl time.Duration) {
	if m.rdb == nil {
		return
	}
	_ = m.rdb.Set(ctx, redisKeyPrefix+hash, strconv.FormatUint(cardID, 10), ttl).Err()
}

func (m *Manager) mirrorGet(ctx context.Context, hash string) (uint64, bool) {
	if m.rdb == nil {
		return 0, false
	}
	val, errGet := m.rdb.Get(ctx, redisKeyPrefix+hash).Result()
	if errGet != nil {
		return 0, false
	}
	cardID, errParse := strconv.ParseUint(val, 10, 64)
	if errParse != nil {
		return 0, false
	}
	return cardID, true
}

func (m *Manager) mirrorDel(ctx context.Context, hashes []string) {
	if m.rdb == nil || len(hashes) == 0 {
		return
	}
	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, redisKeyPrefix+h)
	}
	_ = m.rdb.Del(ctx, keys...).Err()
}
