package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// GenerateQRPlain creates the opaque plaintext for a QR token: 32 hex
// characters of cryptographically random payload. The plaintext is
// returned to the caller once and only its hash is persisted.
func GenerateQRPlain() (string, error) {
	secret := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate qr plaintext: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

// HashQRPlain returns the hex SHA-256 digest stored for a QR plaintext.
func HashQRPlain(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomDigits returns a numeric string of the given length,
// used for card serial suffixes.
func GenerateRandomDigits(length int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate digits: %w", err)
	}
	for i := range buf {
		buf[i] = digits[int(buf[i])%len(digits)]
	}
	return string(buf), nil
}

// GenerateRandomString returns a hex-encoded random string of the given
// length.
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, (length+1)/2)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("generate random string: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}
