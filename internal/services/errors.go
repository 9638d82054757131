// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type ErrorCode string

const (
	CodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	CodeInvalidPercentage   ErrorCode = "INVALID_PERCENTAGE"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeAlreadyTerminal     ErrorCode = "ALREADY_TERMINAL"
	CodeInsufficientEscrow  ErrorCode = "INSUFFICIENT_ESCROW"
	CodeProofExpired        ErrorCode = "PROOF_EXPIRED"
	CodeUnsupportedCircuit  ErrorCode = "UNSUPPORTED_OR_INACTIVE_CIRCUIT"
	CodePayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeVerificationFailed  ErrorCode = "VERIFICATION_FAILED"
	CodeArrayLengthMismatch ErrorCode = "ARRAY_LENGTH_MISMATCH"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidState        ErrorCode = "INVALID_STATE"
	CodeInvalidBatch        ErrorCode = "INVALID_BATCH"
	CodeAlreadyExists       ErrorCode = "ALREADY_EXISTS"
	CodePaused              ErrorCode = "PAUSED"
	CodeTransferFailed      ErrorCode = "TRANSFER_FAILED"
)

// Error is a typed rejection. It names the violated rule and the record it
// was raised against.
type Error struct {
	Code     ErrorCode `json:"code"`
	Entity   string    `json:"entity,omitempty"`
	EntityID string    `json:"entity_id,omitempty"`
	Message  string    `json:"message"`
	cause    error
}

func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Entity, e.EntityID, e.Message)
}

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, services.ErrAlreadyTerminal).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Sentinels for errors.Is.
var (
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount}
	ErrInvalidPercentage   = &Error{Code: CodeInvalidPercentage}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized}
	ErrAlreadyTerminal     = &Error{Code: CodeAlreadyTerminal}
	ErrInsufficientEscrow  = &Error{Code: CodeInsufficientEscrow}
	ErrProofExpired        = &Error{Code: CodeProofExpired}
	ErrUnsupportedCircuit  = &Error{Code: CodeUnsupportedCircuit}
	ErrPayloadTooLarge     = &Error{Code: CodePayloadTooLarge}
	ErrVerificationFailed  = &Error{Code: CodeVerificationFailed}
	ErrArrayLengthMismatch = &Error{Code: CodeArrayLengthMismatch}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrInvalidBatch        = &Error{Code: CodeInvalidBatch}
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists}
	ErrPaused              = &Error{Code: CodePaused}
	ErrTransferFailed      = &Error{Code: CodeTransferFailed}
)

func newError(code ErrorCode, entity, entityID, format string, args ...interface{}) *Error {
	return &Error{
		Code:     code,
		Entity:   entity,
		EntityID: entityID,
		Message:  fmt.Sprintf(format, args...),
	}
}

func wrapError(code ErrorCode, entity, entityID string, cause error, format string, args ...interface{}) *Error {
	e := newError(code, entity, entityID, format, args...)
	e.cause = cause
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound rejection and wraps
// everything else.
func notFoundOr(err error, entity, entityID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(CodeNotFound, entity, entityID, "%s not found", entity)
	}
	return fmt.Errorf("failed to load %s %s: %w", entity, entityID, err)
}
