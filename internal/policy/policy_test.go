package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mps-suite/mps-engine/internal/models"
	"gorm.io/gorm"
)

func openPolicyTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:policy_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func resetPolicyState(t *testing.T) {
	t.Helper()
	SetDefaults(Defaults{})
	store(time.Time{}, map[string]json.RawMessage{})
}

func TestDefaultsApplyWithoutSettingsRows(t *testing.T) {
	resetPolicyState(t)
	t.Cleanup(func() { resetPolicyState(t) })

	if QRSingleUse() {
		t.Fatalf("qr_single_use default must be false")
	}
	if RechargeAwardsPoints() {
		t.Fatalf("recharge_awards_points default must be false")
	}

	SetDefaults(Defaults{QRSingleUse: true})
	if !QRSingleUse() {
		t.Fatalf("config default should apply until a settings row exists")
	}
}

func TestSetPersistsAndRefreshesSnapshot(t *testing.T) {
	resetPolicyState(t)
	t.Cleanup(func() { resetPolicyState(t) })
	conn := openPolicyTestDB(t)
	ctx := context.Background()

	if errSet := Set(ctx, conn, KeyRechargeAwardsPoints, true); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if !RechargeAwardsPoints() {
		t.Fatalf("snapshot not refreshed after Set")
	}

	var row models.Setting
	if errFind := conn.Where("key = ?", KeyRechargeAwardsPoints).First(&row).Error; errFind != nil {
		t.Fatalf("settings row missing: %v", errFind)
	}
}

func TestSettingsRowOverridesConfigDefault(t *testing.T) {
	resetPolicyState(t)
	t.Cleanup(func() { resetPolicyState(t) })
	conn := openPolicyTestDB(t)
	ctx := context.Background()

	SetDefaults(Defaults{QRSingleUse: true})
	if errSet := Set(ctx, conn, KeyQRSingleUse, false); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if QRSingleUse() {
		t.Fatalf("explicit settings row must beat the config default")
	}
}

func TestRefreshLoadsExistingRows(t *testing.T) {
	resetPolicyState(t)
	t.Cleanup(func() { resetPolicyState(t) })
	conn := openPolicyTestDB(t)
	ctx := context.Background()

	row := models.Setting{Key: KeyQRSingleUse, Value: []byte("true"), UpdatedAt: time.Now().UTC()}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed setting: %v", errCreate)
	}
	if errRefresh := Refresh(ctx, conn); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}
	if !QRSingleUse() {
		t.Fatalf("refresh did not pick up the settings row")
	}
	if UpdatedAt().IsZero() {
		t.Fatalf("refresh did not record the update timestamp")
	}
}
