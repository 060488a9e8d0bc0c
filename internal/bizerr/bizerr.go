// Package bizerr defines the closed set of machine-readable business
// error codes returned by the ledger engine. Callers branch on Code
// values, never on error message text.
package bizerr

import (
	"errors"
	"fmt"
)

// Code identifies a business failure condition.
type Code string

// Validation failures. Input rejected before any state change.
const (
	CodeInvalidPrice          Code = "INVALID_PRICE"
	CodeInvalidRefundAmount   Code = "INVALID_REFUND_AMOUNT"
	CodeInvalidRechargeAmount Code = "INVALID_RECHARGE_AMOUNT"
	CodeInvalidQR             Code = "INVALID_QR"
)

// Not-found failures. No mutation occurred.
const (
	CodeTxNotFound                 Code = "TX_NOT_FOUND"
	CodeOriginalTxNotFound         Code = "ORIGINAL_TX_NOT_FOUND"
	CodeCardNotFoundOrInactive     Code = "CARD_NOT_FOUND_OR_INACTIVE"
	CodeMerchantNotFoundOrInactive Code = "MERCHANT_NOT_FOUND_OR_INACTIVE"
)

// Authorization failures. No mutation occurred.
const (
	CodeNotMerchantUser        Code = "NOT_MERCHANT_USER"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeInvalidBindingPassword Code = "INVALID_BINDING_PASSWORD"
)

// Business-rule conflicts. Evaluated atomically with the attempted
// mutation; no partial state is left behind.
const (
	CodeInsufficientBalance            Code = "INSUFFICIENT_BALANCE"
	CodeRefundExceedsRemaining         Code = "REFUND_EXCEEDS_REMAINING"
	CodeCardTypeNotShareable           Code = "CARD_TYPE_NOT_SHAREABLE"
	CodeCannotRemoveLastOwner          Code = "CANNOT_REMOVE_LAST_OWNER"
	CodeExternalIDAlreadyBound         Code = "EXTERNAL_ID_ALREADY_BOUND"
	CodeUnsupportedCardTypeForPayment  Code = "UNSUPPORTED_CARD_TYPE_FOR_PAYMENT"
	CodeUnsupportedCardTypeForRecharge Code = "UNSUPPORTED_CARD_TYPE_FOR_RECHARGE"
	CodeUnsupportedCardTypeForPoints   Code = "UNSUPPORTED_CARD_TYPE_FOR_POINTS"
	CodeCardNotActive                  Code = "CARD_NOT_ACTIVE"
	CodeCardExpired                    Code = "CARD_EXPIRED"
	CodeOnlyCompletedPaymentRefundable Code = "ONLY_COMPLETED_PAYMENT_REFUNDABLE"
)

// Token lifecycle failures. Safe to retry after re-issuing a token.
const (
	CodeQRExpiredOrInvalid Code = "QR_EXPIRED_OR_INVALID"
)

// Error is a business error carrying a stable code. The code is the
// contract; the wrapped error (if any) is diagnostic only.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return string(e.Code)
}

// Unwrap exposes the wrapped diagnostic error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches two business errors by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// E constructs a business error from a code.
func E(code Code) *Error {
	return &Error{Code: code}
}

// Op constructs a business error with an operation label.
func Op(op string, code Code) *Error {
	return &Error{Code: code, Op: op}
}

// Wrap attaches a diagnostic cause to a business error.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the business code from an error chain. The second
// return is false for infrastructure errors, which must not be mapped
// to a business code.
func CodeOf(err error) (Code, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}

// HasCode reports whether err carries the given business code.
func HasCode(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
