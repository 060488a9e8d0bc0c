// Package policy exposes runtime-tunable engine behavior. Values live
// in the settings table and are mirrored into an in-memory snapshot so
// hot paths never query the database for a flag.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mps-suite/mps-engine/internal/models"
	"gorm.io/gorm"
)

// Policy keys.
const (
	// KeyQRSingleUse controls whether validating a QR token consumes it.
	KeyQRSingleUse = "qr_single_use"
	// KeyRechargeAwardsPoints controls whether recharges accrue points.
	KeyRechargeAwardsPoints = "recharge_awards_points"
)

// snapshot holds the in-memory policy values.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var globalSnapshot atomic.Value // stores snapshot

func init() {
	globalSnapshot.Store(snapshot{values: map[string]json.RawMessage{}})
}

// Defaults are the fallback values used before the settings table has a
// row for a key. Set once at bootstrap from the config file.
type Defaults struct {
	QRSingleUse          bool
	RechargeAwardsPoints bool
}

var globalDefaults atomic.Value // stores Defaults

// SetDefaults installs the config-file fallback values.
func SetDefaults(d Defaults) {
	globalDefaults.Store(d)
}

func loadDefaults() Defaults {
	v := globalDefaults.Load()
	d, ok := v.(Defaults)
	if !ok {
		return Defaults{}
	}
	return d
}

// Refresh reloads all settings rows and replaces the snapshot.
//
// Required at process startup; otherwise lookups fall back to the
// config defaults until an admin updates a setting (which triggers
// refresh).
func Refresh(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("policy: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if row.UpdatedAt.UTC().After(maxUpdatedAt) {
			maxUpdatedAt = row.UpdatedAt.UTC()
		}
	}

	store(maxUpdatedAt, values)
	return nil
}

// Set persists a policy value and refreshes the snapshot.
func Set(ctx context.Context, db *gorm.DB, key string, value any) error {
	if db == nil {
		return errors.New("policy: nil db")
	}
	raw, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return errMarshal
	}
	row := models.Setting{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	if errSave := db.WithContext(ctx).Save(&row).Error; errSave != nil {
		return errSave
	}
	return Refresh(ctx, db)
}

func store(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		copied := make([]byte, len(v))
		copy(copied, v)
		next[k] = copied
	}
	globalSnapshot.Store(snapshot{updatedAt: updatedAt, values: next})
}

func load() snapshot {
	v := globalSnapshot.Load()
	s, ok := v.(snapshot)
	if !ok || s.values == nil {
		return snapshot{values: map[string]json.RawMessage{}}
	}
	return s
}

// UpdatedAt returns the last settings refresh timestamp.
func UpdatedAt() time.Time {
	return load().updatedAt
}

func boolValue(key string, fallback bool) bool {
	raw, ok := load().values[key]
	if !ok || len(raw) == 0 {
		return fallback
	}
	var v bool
	if errUnmarshal := json.Unmarshal(raw, &v); errUnmarshal != nil {
		return fallback
	}
	return v
}

// QRSingleUse reports whether a successful QR validation consumes the
// token.
func QRSingleUse() bool {
	return boolValue(KeyQRSingleUse, loadDefaults().QRSingleUse)
}

// RechargeAwardsPoints reports whether recharge transactions accrue
// points like payments do.
func RechargeAwardsPoints() bool {
	return boolValue(KeyRechargeAwardsPoints, loadDefaults().RechargeAwardsPoints)
}
