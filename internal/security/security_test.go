package security

import (
	"errors"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, errGen := GenerateSessionToken("test-secret", RoleMerchant, 42, "SHOP-1", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	claims, errParse := ParseSessionToken("test-secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.Role != RoleMerchant || claims.SubjectID != 42 || claims.Name != "SHOP-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, _ := GenerateSessionToken("secret-a", RoleMember, 1, "alice", time.Hour)
	if _, errParse := ParseSessionToken("secret-b", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestSessionTokenExpired(t *testing.T) {
	token, _ := GenerateSessionToken("test-secret", RoleMember, 1, "alice", -time.Minute)
	if _, errParse := ParseSessionToken("test-secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestSessionTokenRejectsUnknownRole(t *testing.T) {
	token, _ := GenerateSessionToken("test-secret", Role("root"), 1, "x", time.Hour)
	if _, errParse := ParseSessionToken("test-secret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", errParse)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, errHash := HashPassword("s3cret-pass")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "s3cret-pass" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected mismatching password to fail")
	}
}

func TestGenerateQRPlain(t *testing.T) {
	a, errA := GenerateQRPlain()
	if errA != nil {
		t.Fatalf("generate: %v", errA)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
	b, _ := GenerateQRPlain()
	if a == b {
		t.Fatalf("two plaintexts collided")
	}
	if HashQRPlain(a) == HashQRPlain(b) {
		t.Fatalf("two hashes collided")
	}
	if HashQRPlain(a) != HashQRPlain(a) {
		t.Fatalf("hash must be deterministic")
	}
}
