// internal/services/errors_test.go
package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := newError(CodeAlreadyTerminal, "grant", "g-1", "grant is %s", "completed")

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	assert.NotErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "ALREADY_TERMINAL: grant g-1: grant is completed", err.Error())

	wrapped := fmt.Errorf("approve milestone: %w", err)
	assert.ErrorIs(t, wrapped, ErrAlreadyTerminal)
	assert.Equal(t, CodeAlreadyTerminal, CodeOf(wrapped))
}

func TestWrappedCauseIsReachable(t *testing.T) {
	cause := fmt.Errorf("%w: balance 1", ErrInsufficientFunds)
	err := wrapError(CodeTransferFailed, "loan", "l-1", cause, "custodian refused")

	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, CodeTransferFailed, CodeOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, "PAUSED: component is paused", (&Error{Code: CodePaused, Message: "component is paused"}).Error())
}

func TestNotFoundOr(t *testing.T) {
	assert.ErrorIs(t, notFoundOr(gorm.ErrRecordNotFound, "loan", "l-1"), ErrNotFound)

	other := notFoundOr(errors.New("disk full"), "loan", "l-1")
	assert.NotErrorIs(t, other, ErrNotFound)
	assert.Empty(t, CodeOf(other))
}
