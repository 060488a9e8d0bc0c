package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/models"
	"gorm.io/gorm"
)

func openLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Card{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createCard(t *testing.T, conn *gorm.DB, card models.Card) *models.Card {
	t.Helper()
	if card.CardNo == "" {
		card.CardNo = fmt.Sprintf("C%d", time.Now().UnixNano())
	}
	if card.Status == "" {
		card.Status = models.CardStatusActive
	}
	if card.OwnerMemberID == 0 {
		card.OwnerMemberID = 1
	}
	if errCreate := conn.Create(&card).Error; errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}
	return &card
}

func TestDebitHappyPath(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeStandard, Balance: 100})

	newBalance, errDebit := l.Debit(context.Background(), card.ID, 40)
	if errDebit != nil {
		t.Fatalf("debit: %v", errDebit)
	}
	if newBalance != 60 {
		t.Fatalf("balance = %v, want 60", newBalance)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeStandard, Balance: 10})

	_, errDebit := l.Debit(context.Background(), card.ID, 10.01)
	if !bizerr.HasCode(errDebit, bizerr.CodeInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", errDebit)
	}

	var reloaded models.Card
	if errFind := conn.First(&reloaded, card.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.Balance != 10 {
		t.Fatalf("failed debit must not change balance, got %v", reloaded.Balance)
	}
}

func TestDebitExactBalanceSucceeds(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeStandard, Balance: 10})

	newBalance, errDebit := l.Debit(context.Background(), card.ID, 10)
	if errDebit != nil {
		t.Fatalf("debit to zero: %v", errDebit)
	}
	if newBalance != 0 {
		t.Fatalf("balance = %v, want 0", newBalance)
	}
}

func TestDebitCorporateCardRejected(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	fixed := 0.8
	card := createCard(t, conn, models.Card{CardType: models.CardTypeCorporate, FixedDiscount: &fixed})

	_, errDebit := l.Debit(context.Background(), card.ID, 1)
	if !bizerr.HasCode(errDebit, bizerr.CodeUnsupportedCardTypeForPayment) {
		t.Fatalf("expected UNSUPPORTED_CARD_TYPE_FOR_PAYMENT, got %v", errDebit)
	}
}

func TestDebitVoucherCardAllowed(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeVoucher, Balance: 50})

	newBalance, errDebit := l.Debit(context.Background(), card.ID, 20)
	if errDebit != nil {
		t.Fatalf("voucher debit: %v", errDebit)
	}
	if newBalance != 30 {
		t.Fatalf("balance = %v, want 30", newBalance)
	}
}

func TestCreditVoucherRejectedButRefundAllowed(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeVoucher, Balance: 5})

	if _, errCredit := l.Credit(context.Background(), card.ID, 10); !bizerr.HasCode(errCredit, bizerr.CodeUnsupportedCardTypeForRecharge) {
		t.Fatalf("expected UNSUPPORTED_CARD_TYPE_FOR_RECHARGE, got %v", errCredit)
	}

	errTx := conn.Transaction(func(tx *gorm.DB) error {
		_, errCredit := l.CreditTx(context.Background(), tx, card.ID, 10, true)
		return errCredit
	})
	if errTx != nil {
		t.Fatalf("refund credit to voucher: %v", errTx)
	}
	var reloaded models.Card
	conn.First(&reloaded, card.ID)
	if reloaded.Balance != 15 {
		t.Fatalf("balance = %v, want 15", reloaded.Balance)
	}
}

func TestDebitInactiveAndExpiredCard(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)

	frozen := createCard(t, conn, models.Card{CardType: models.CardTypeStandard, Balance: 100, Status: models.CardStatusInactive})
	if _, errDebit := l.Debit(context.Background(), frozen.ID, 1); !bizerr.HasCode(errDebit, bizerr.CodeCardNotActive) {
		t.Fatalf("expected CARD_NOT_ACTIVE, got %v", errDebit)
	}

	past := time.Now().UTC().Add(-time.Hour)
	expired := createCard(t, conn, models.Card{CardType: models.CardTypeStandard, Balance: 100, ExpiresAt: &past})
	if _, errDebit := l.Debit(context.Background(), expired.ID, 1); !bizerr.HasCode(errDebit, bizerr.CodeCardExpired) {
		t.Fatalf("expected CARD_EXPIRED, got %v", errDebit)
	}

	if _, errDebit := l.Debit(context.Background(), 99999, 1); !bizerr.HasCode(errDebit, bizerr.CodeCardNotFoundOrInactive) {
		t.Fatalf("expected CARD_NOT_FOUND_OR_INACTIVE, got %v", errDebit)
	}
}

func TestAddPointsFloorsAtZeroAndTracksLevel(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeStandard})

	points, errAdd := l.AddPoints(context.Background(), card.ID, 1200)
	if errAdd != nil {
		t.Fatalf("add points: %v", errAdd)
	}
	if points != 1200 {
		t.Fatalf("points = %d, want 1200", points)
	}
	var reloaded models.Card
	conn.First(&reloaded, card.ID)
	if reloaded.Level != 1 {
		t.Fatalf("level = %d, want 1", reloaded.Level)
	}

	points, errAdd = l.AddPoints(context.Background(), card.ID, -5000)
	if errAdd != nil {
		t.Fatalf("subtract points: %v", errAdd)
	}
	if points != 0 {
		t.Fatalf("points floored = %d, want 0", points)
	}
	conn.First(&reloaded, card.ID)
	if reloaded.Level != 0 {
		t.Fatalf("level = %d, want 0", reloaded.Level)
	}
}

func TestAddPointsVoucherRejected(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeVoucher, Balance: 10})

	if _, errAdd := l.AddPoints(context.Background(), card.ID, 10); !bizerr.HasCode(errAdd, bizerr.CodeUnsupportedCardTypeForPoints) {
		t.Fatalf("expected UNSUPPORTED_CARD_TYPE_FOR_POINTS, got %v", errAdd)
	}
}

func TestFreezeUnfreeze(t *testing.T) {
	conn := openLedgerTestDB(t)
	l := New(conn)
	card := createCard(t, conn, models.Card{CardType: models.CardTypeStandard, Balance: 100})
	ctx := context.Background()

	if errFreeze := l.Freeze(ctx, card.ID); errFreeze != nil {
		t.Fatalf("freeze: %v", errFreeze)
	}
	if _, errDebit := l.Debit(ctx, card.ID, 1); !bizerr.HasCode(errDebit, bizerr.CodeCardNotActive) {
		t.Fatalf("frozen card should reject debit, got %v", errDebit)
	}
	// Double freeze is a state conflict.
	if errFreeze := l.Freeze(ctx, card.ID); !bizerr.HasCode(errFreeze, bizerr.CodeCardNotActive) {
		t.Fatalf("expected CARD_NOT_ACTIVE on double freeze, got %v", errFreeze)
	}

	if errUnfreeze := l.Unfreeze(ctx, card.ID); errUnfreeze != nil {
		t.Fatalf("unfreeze: %v", errUnfreeze)
	}
	if _, errDebit := l.Debit(ctx, card.ID, 1); errDebit != nil {
		t.Fatalf("unfrozen card should debit, got %v", errDebit)
	}
}
