package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/bizerr"
	"github.com/mps-suite/mps-engine/internal/config"
	"github.com/mps-suite/mps-engine/internal/db"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/ledger"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/settlement"
	"github.com/mps-suite/mps-engine/internal/txengine"
	"gorm.io/gorm"
)

const testJWTSecret = "routes-test-secret"

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:routes_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	l := ledger.New(conn)
	tokens := qrtoken.NewManager(conn, nil)
	deps := common.Deps{
		DB:          conn,
		JWT:         config.JWTConfig{Secret: testJWTSecret, Expiry: time.Hour},
		QR:          config.QRConfig{DefaultTTL: time.Minute},
		Engine:      txengine.New(conn, l, tokens),
		Ledger:      l,
		Tokens:      tokens,
		Bindings:    binding.NewManager(conn),
		Settlements: settlement.NewService(conn),
	}

	r := gin.New()
	Register(r, deps)
	return r, conn
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal request: %v", errMarshal)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if errDecode := json.Unmarshal(rec.Body.Bytes(), out); errDecode != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), errDecode)
	}
}

func registerAndLoginMember(t *testing.T, r *gin.Engine, conn *gorm.DB, phone string) (string, uint64) {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/v0/member/register", "", gin.H{
		"name": "member " + phone, "phone": phone, "password": "secret-pw",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/v0/member/login", "", gin.H{
		"phone": phone, "password": "secret-pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rec.Code, rec.Body.String())
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &loginResp)
	if loginResp.Token == "" {
		t.Fatalf("login returned empty token")
	}

	var member models.Member
	if errFind := conn.Where("phone = ?", phone).First(&member).Error; errFind != nil {
		t.Fatalf("member not persisted: %v", errFind)
	}
	return loginResp.Token, member.ID
}

func seedMerchant(t *testing.T, conn *gorm.DB, code string) *models.Merchant {
	t.Helper()
	hash, errHash := security.HashPassword("terminal-pw")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	merchant := models.Merchant{Code: code, Name: "Shop " + code, Password: hash, Active: true}
	if errCreate := conn.Create(&merchant).Error; errCreate != nil {
		t.Fatalf("create merchant: %v", errCreate)
	}
	return &merchant
}

func loginMerchant(t *testing.T, r *gin.Engine, code string) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/v0/merchant/login", "", gin.H{
		"code": code, "password": "terminal-pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("merchant login status = %d body = %s", rec.Code, rec.Body.String())
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &loginResp)
	return loginResp.Token
}

func issueCard(t *testing.T, conn *gorm.DB, ownerID uint64, balance float64) *models.Card {
	t.Helper()
	card := models.Card{
		CardNo:        fmt.Sprintf("C%d", time.Now().UnixNano()),
		CardType:      models.CardTypeStandard,
		Status:        models.CardStatusActive,
		OwnerMemberID: ownerID,
		Balance:       balance,
	}
	bindings := binding.NewManager(conn)
	errTx := conn.Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&card).Error; errCreate != nil {
			return errCreate
		}
		return bindings.CreateOwnerBinding(context.Background(), tx, card.ID, ownerID)
	})
	if errTx != nil {
		t.Fatalf("issue card: %v", errTx)
	}
	return &card
}

func TestHealthz(t *testing.T) {
	r, _ := newTestServer(t)

	rec := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestMemberRegisterAndLogin(t *testing.T) {
	r, conn := newTestServer(t)
	registerAndLoginMember(t, r, conn, "13900000001")

	// Duplicate phone is rejected.
	rec := doJSON(t, r, http.MethodPost, "/v0/member/register", "", gin.H{
		"name": "dup", "phone": "13900000001", "password": "other",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/v0/member/login", "", gin.H{
		"phone": "13900000001", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password login status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareEnforcesRoles(t *testing.T) {
	r, conn := newTestServer(t)

	rec := doJSON(t, r, http.MethodGet, "/v0/admin/cards", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/v0/admin/cards", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", rec.Code)
	}

	memberToken, _ := registerAndLoginMember(t, r, conn, "13900000002")
	rec = doJSON(t, r, http.MethodGet, "/v0/admin/cards", memberToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member on admin route status = %d, want 403", rec.Code)
	}
	var errResp struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &errResp)
	if errResp.Code != string(bizerr.CodePermissionDenied) {
		t.Fatalf("code = %q, want %q", errResp.Code, bizerr.CodePermissionDenied)
	}
}

func TestChargeFlowOverHTTP(t *testing.T) {
	r, conn := newTestServer(t)
	seedMerchant(t, conn, "POS-1")

	memberToken, memberID := registerAndLoginMember(t, r, conn, "13900000003")
	card := issueCard(t, conn, memberID, 500)

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/v0/member/cards/%d/qr", card.ID), memberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate qr status = %d body = %s", rec.Code, rec.Body.String())
	}
	var qrResp struct {
		QRToken string `json:"qr_token"`
	}
	decodeBody(t, rec, &qrResp)
	if len(qrResp.QRToken) != 32 {
		t.Fatalf("qr token length = %d, want 32", len(qrResp.QRToken))
	}

	merchantToken := loginMerchant(t, r, "POS-1")
	rec = doJSON(t, r, http.MethodPost, "/v0/merchant/charge", merchantToken, gin.H{
		"qr_token":        qrResp.QRToken,
		"amount":          100.0,
		"idempotency_key": "http-charge-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("charge status = %d body = %s", rec.Code, rec.Body.String())
	}
	var record models.Transaction
	decodeBody(t, rec, &record)
	if record.Status != models.TxStatusCompleted || record.TxType != models.TxTypePayment {
		t.Fatalf("charge record = %s/%s", record.TxType, record.Status)
	}
	if record.RawAmount != 100 {
		t.Fatalf("raw amount = %v, want 100", record.RawAmount)
	}

	var reloaded models.Card
	if errFind := conn.First(&reloaded, card.ID).Error; errFind != nil {
		t.Fatalf("reload card: %v", errFind)
	}
	if got, want := reloaded.Balance, 500-record.FinalAmount; got != want {
		t.Fatalf("balance = %v, want %v", got, want)
	}

	// The merchant can fetch its own transaction back by number.
	rec = doJSON(t, r, http.MethodGet, "/v0/merchant/transactions/"+record.TxNo, merchantToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get transaction status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestChargeInsufficientBalanceOverHTTP(t *testing.T) {
	r, conn := newTestServer(t)
	seedMerchant(t, conn, "POS-2")

	memberToken, memberID := registerAndLoginMember(t, r, conn, "13900000004")
	card := issueCard(t, conn, memberID, 5)

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/v0/member/cards/%d/qr", card.ID), memberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate qr status = %d body = %s", rec.Code, rec.Body.String())
	}
	var qrResp struct {
		QRToken string `json:"qr_token"`
	}
	decodeBody(t, rec, &qrResp)

	merchantToken := loginMerchant(t, r, "POS-2")
	rec = doJSON(t, r, http.MethodPost, "/v0/merchant/charge", merchantToken, gin.H{
		"qr_token":        qrResp.QRToken,
		"amount":          100.0,
		"idempotency_key": "http-charge-fail-1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("insufficient charge status = %d, want 409; body = %s", rec.Code, rec.Body.String())
	}
	var errResp struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &errResp)
	if errResp.Code != string(bizerr.CodeInsufficientBalance) {
		t.Fatalf("code = %q, want %q", errResp.Code, bizerr.CodeInsufficientBalance)
	}

	// The failed attempt leaves an audit record behind.
	var failed models.Transaction
	if errFind := conn.Where("card_id = ? AND status = ?", card.ID, models.TxStatusFailed).
		First(&failed).Error; errFind != nil {
		t.Fatalf("failed audit record missing: %v", errFind)
	}
	if failed.FailCode != string(bizerr.CodeInsufficientBalance) {
		t.Fatalf("fail code = %q", failed.FailCode)
	}
}

func TestMemberRechargeAndMerchantValidate(t *testing.T) {
	r, conn := newTestServer(t)
	seedMerchant(t, conn, "POS-3")

	memberToken, memberID := registerAndLoginMember(t, r, conn, "13900000007")
	card := issueCard(t, conn, memberID, 0)

	rec := doJSON(t, r, http.MethodPost, fmt.Sprintf("/v0/member/cards/%d/recharge", card.ID), memberToken, gin.H{
		"amount":          50.0,
		"payment_method":  "wechat",
		"idempotency_key": "http-recharge-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("recharge status = %d body = %s", rec.Code, rec.Body.String())
	}
	var reloaded models.Card
	if errFind := conn.First(&reloaded, card.ID).Error; errFind != nil {
		t.Fatalf("reload card: %v", errFind)
	}
	if reloaded.Balance != 50 {
		t.Fatalf("balance after recharge = %v, want 50", reloaded.Balance)
	}

	rec = doJSON(t, r, http.MethodPost, fmt.Sprintf("/v0/member/cards/%d/qr", card.ID), memberToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate qr status = %d body = %s", rec.Code, rec.Body.String())
	}
	var qrResp struct {
		QRToken string `json:"qr_token"`
	}
	decodeBody(t, rec, &qrResp)

	merchantToken := loginMerchant(t, r, "POS-3")
	rec = doJSON(t, r, http.MethodPost, "/v0/merchant/qr/validate", merchantToken, gin.H{
		"qr_token": qrResp.QRToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d body = %s", rec.Code, rec.Body.String())
	}
	var validateResp struct {
		CardID uint64 `json:"card_id"`
	}
	decodeBody(t, rec, &validateResp)
	if validateResp.CardID != card.ID {
		t.Fatalf("validate card_id = %d, want %d", validateResp.CardID, card.ID)
	}
}

func TestMemberCardVisibility(t *testing.T) {
	r, conn := newTestServer(t)

	aliceToken, aliceID := registerAndLoginMember(t, r, conn, "13900000005")
	bobToken, _ := registerAndLoginMember(t, r, conn, "13900000006")
	card := issueCard(t, conn, aliceID, 100)

	rec := doJSON(t, r, http.MethodGet, fmt.Sprintf("/v0/member/cards/%d", card.ID), aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner get card status = %d body = %s", rec.Code, rec.Body.String())
	}

	// An unbound member cannot see the card.
	rec = doJSON(t, r, http.MethodGet, fmt.Sprintf("/v0/member/cards/%d", card.ID), bobToken, nil)
	if rec.Code == http.StatusOK {
		t.Fatalf("unbound member should not see the card, got %d", rec.Code)
	}
}
