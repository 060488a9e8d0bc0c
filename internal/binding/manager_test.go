package binding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/security"
	"gorm.io/gorm"
)

func openBindingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:binding_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Card{}, &models.CardBinding{}, &models.Member{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createTestMember(t *testing.T, conn *gorm.DB, phone string) *models.Member {
	t.Helper()
	member := models.Member{Name: "member " + phone, Phone: phone, Status: models.MemberStatusActive}
	if errCreate := conn.Create(&member).Error; errCreate != nil {
		t.Fatalf("create member: %v", errCreate)
	}
	return &member
}

func createTestCard(t *testing.T, conn *gorm.DB, card models.Card) *models.Card {
	t.Helper()
	if card.CardNo == "" {
		card.CardNo = fmt.Sprintf("C%d%s", time.Now().UnixNano(), card.CardType)
	}
	if card.Status == "" {
		card.Status = models.CardStatusActive
	}
	if errCreate := conn.Create(&card).Error; errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}
	return &card
}

func corporateDiscountOf(t *testing.T, conn *gorm.DB, cardID uint64) *float64 {
	t.Helper()
	var card models.Card
	if errFind := conn.First(&card, cardID).Error; errFind != nil {
		t.Fatalf("reload card: %v", errFind)
	}
	return card.CorporateDiscount
}

func TestBindRejectsNonShareableCard(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	member := createTestMember(t, conn, "13000000001")
	card := createTestCard(t, conn, models.Card{CardType: models.CardTypeStandard, OwnerMemberID: member.ID})

	errBind := m.Bind(context.Background(), card.ID, member.ID, models.BindRoleMember, "")
	if !bizerr.HasCode(errBind, bizerr.CodeCardTypeNotShareable) {
		t.Fatalf("expected CARD_TYPE_NOT_SHAREABLE, got %v", errBind)
	}
}

func TestBindChecksBindingPassword(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	owner := createTestMember(t, conn, "13000000001")
	joiner := createTestMember(t, conn, "13000000002")

	hash, _ := security.HashPassword("join-me")
	fixed := 0.8
	card := createTestCard(t, conn, models.Card{
		CardType:            models.CardTypeCorporate,
		OwnerMemberID:       owner.ID,
		FixedDiscount:       &fixed,
		BindingPasswordHash: &hash,
	})
	ctx := context.Background()

	if errBind := m.Bind(ctx, card.ID, joiner.ID, models.BindRoleMember, "wrong"); !bizerr.HasCode(errBind, bizerr.CodeInvalidBindingPassword) {
		t.Fatalf("expected INVALID_BINDING_PASSWORD, got %v", errBind)
	}
	if errBind := m.Bind(ctx, card.ID, joiner.ID, models.BindRoleMember, "join-me"); errBind != nil {
		t.Fatalf("bind with correct password: %v", errBind)
	}

	role, ok, errRole := m.RoleOf(ctx, card.ID, joiner.ID)
	if errRole != nil || !ok || role != models.BindRoleMember {
		t.Fatalf("role = %v ok=%v err=%v", role, ok, errRole)
	}
}

func TestBindCorporatePropagatesDiscountToStandardCard(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	member := createTestMember(t, conn, "13000000001")
	standard := createTestCard(t, conn, models.Card{CardType: models.CardTypeStandard, OwnerMemberID: member.ID})
	fixed := 0.750
	corporate := createTestCard(t, conn, models.Card{CardType: models.CardTypeCorporate, OwnerMemberID: 99, FixedDiscount: &fixed})
	ctx := context.Background()

	if errBind := m.Bind(ctx, corporate.ID, member.ID, models.BindRoleMember, ""); errBind != nil {
		t.Fatalf("bind: %v", errBind)
	}
	inherited := corporateDiscountOf(t, conn, standard.ID)
	if inherited == nil || *inherited != 0.750 {
		t.Fatalf("inherited = %v, want 0.750", inherited)
	}

	// A second, better corporate binding lowers the inherited discount.
	better := 0.700
	corporate2 := createTestCard(t, conn, models.Card{CardType: models.CardTypeCorporate, OwnerMemberID: 99, FixedDiscount: &better})
	if errBind := m.Bind(ctx, corporate2.ID, member.ID, models.BindRoleMember, ""); errBind != nil {
		t.Fatalf("second bind: %v", errBind)
	}
	inherited = corporateDiscountOf(t, conn, standard.ID)
	if inherited == nil || *inherited != 0.700 {
		t.Fatalf("inherited = %v, want 0.700", inherited)
	}

	// Unbinding the better card falls back to the remaining one.
	if errUnbind := m.Unbind(ctx, corporate2.ID, member.ID); errUnbind != nil {
		t.Fatalf("unbind: %v", errUnbind)
	}
	inherited = corporateDiscountOf(t, conn, standard.ID)
	if inherited == nil || *inherited != 0.750 {
		t.Fatalf("inherited after unbind = %v, want 0.750", inherited)
	}

	// Unbinding the last corporate card clears the inheritance.
	if errUnbind := m.Unbind(ctx, corporate.ID, member.ID); errUnbind != nil {
		t.Fatalf("final unbind: %v", errUnbind)
	}
	if inherited = corporateDiscountOf(t, conn, standard.ID); inherited != nil {
		t.Fatalf("inherited after all unbinds = %v, want nil", *inherited)
	}
}

func TestUnbindKeepsLastOwner(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	owner := createTestMember(t, conn, "13000000001")
	fixed := 0.9
	card := createTestCard(t, conn, models.Card{CardType: models.CardTypeCorporate, OwnerMemberID: owner.ID, FixedDiscount: &fixed})
	ctx := context.Background()

	errTx := conn.Transaction(func(tx *gorm.DB) error {
		return m.CreateOwnerBinding(ctx, tx, card.ID, owner.ID)
	})
	if errTx != nil {
		t.Fatalf("create owner binding: %v", errTx)
	}

	if errUnbind := m.Unbind(ctx, card.ID, owner.ID); !bizerr.HasCode(errUnbind, bizerr.CodeCannotRemoveLastOwner) {
		t.Fatalf("expected CANNOT_REMOVE_LAST_OWNER, got %v", errUnbind)
	}
}

func TestUnbindUnknownBindingIsNoOp(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	member := createTestMember(t, conn, "13000000001")
	fixed := 0.9
	card := createTestCard(t, conn, models.Card{CardType: models.CardTypeCorporate, OwnerMemberID: 99, FixedDiscount: &fixed})

	if errUnbind := m.Unbind(context.Background(), card.ID, member.ID); errUnbind != nil {
		t.Fatalf("unbind without binding should be a no-op, got %v", errUnbind)
	}
}

func TestLinkExternalIdentityConflict(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	alice := createTestMember(t, conn, "13000000001")
	bob := createTestMember(t, conn, "13000000002")
	ctx := context.Background()

	if errLink := m.LinkExternalIdentity(ctx, alice.ID, "acme", "u-100"); errLink != nil {
		t.Fatalf("link: %v", errLink)
	}
	if errLink := m.LinkExternalIdentity(ctx, bob.ID, "acme", "u-100"); !bizerr.HasCode(errLink, bizerr.CodeExternalIDAlreadyBound) {
		t.Fatalf("expected EXTERNAL_ID_ALREADY_BOUND, got %v", errLink)
	}
	// Relinking the same pair to the same member is allowed.
	if errLink := m.LinkExternalIdentity(ctx, alice.ID, "acme", "u-100"); errLink != nil {
		t.Fatalf("relink same member: %v", errLink)
	}
}

func TestSetBindingPassword(t *testing.T) {
	conn := openBindingTestDB(t)
	m := NewManager(conn)
	member := createTestMember(t, conn, "13000000001")
	joiner := createTestMember(t, conn, "13000000002")
	fixed := 0.9
	card := createTestCard(t, conn, models.Card{CardType: models.CardTypeCorporate, OwnerMemberID: member.ID, FixedDiscount: &fixed})
	ctx := context.Background()

	if errSet := m.SetBindingPassword(ctx, card.ID, "open-sesame"); errSet != nil {
		t.Fatalf("set password: %v", errSet)
	}
	if errBind := m.Bind(ctx, card.ID, joiner.ID, models.BindRoleMember, "nope"); !bizerr.HasCode(errBind, bizerr.CodeInvalidBindingPassword) {
		t.Fatalf("expected INVALID_BINDING_PASSWORD, got %v", errBind)
	}

	// Clearing the password reopens the card.
	if errSet := m.SetBindingPassword(ctx, card.ID, ""); errSet != nil {
		t.Fatalf("clear password: %v", errSet)
	}
	if errBind := m.Bind(ctx, card.ID, joiner.ID, models.BindRoleMember, ""); errBind != nil {
		t.Fatalf("bind after clearing password: %v", errBind)
	}
}
