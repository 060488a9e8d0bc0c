package txengine

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mps-suite/mps-engine/internal/models"
)

// txNoPrefixes maps transaction types to their human-readable number
// prefixes.
var txNoPrefixes = map[models.TxType]string{
	models.TxTypePayment:  "PAY",
	models.TxTypeRefund:   "RFD",
	models.TxTypeRecharge: "RCH",
}

// NewTxNo mints a human-readable transaction number:
// PREFIX-YYYYMMDDHHMMSS-xxxxxxxx.
func NewTxNo(txType models.TxType) string {
	prefix, ok := txNoPrefixes[txType]
	if !ok {
		prefix = "TXN"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "-" + time.Now().UTC().Format("20060102150405") + "-" + suffix
}

// NewIdempotencyKey mints an idempotency key for callers that do not
// supply their own.
func NewIdempotencyKey(kind string) string {
	return kind + "-" + uuid.NewString()
}

// RoundHalfUp rounds v to the currency's minor unit (two decimals)
// using round-half-up. Rounding an already-rounded amount is a no-op.
func RoundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// cents converts an amount to integer minor units for exact comparison.
func cents(v float64) int64 {
	return int64(math.Floor(v*100 + 0.5))
}
