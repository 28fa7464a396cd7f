package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := New(ErrCodeMissingPrice, "no price for BTC")
	assert.Equal(t, "[201] no price for BTC", err.Error())

	wrapped := Wrap(ErrCodeDataParseFailed, "bad row", fmt.Errorf("strconv failure"))
	assert.Equal(t, "[203] bad row: strconv failure", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCodeLedgerQueryFailed, "query failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeUnknown, GetCode(nil))
	assert.Equal(t, ErrCodeUnknown, GetCode(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeEmptyUniverse, GetCode(New(ErrCodeEmptyUniverse, "no assets")))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeRunFailed, "inner"))
	assert.Equal(t, ErrCodeRunFailed, GetCode(wrapped))
}

func TestHasCode(t *testing.T) {
	err := New(ErrCodeInvalidConfiguration, "bad config")

	assert.True(t, HasCode(err, ErrCodeInvalidConfiguration))
	assert.False(t, HasCode(err, ErrCodeInvalidParameter))
	assert.False(t, HasCode(nil, ErrCodeInvalidConfiguration))
}

func TestInsufficientDataError(t *testing.T) {
	err := NewInsufficientDataErrorf(30, 12, "ETH", "need %d, have %d", 30, 12)

	assert.True(t, IsInsufficientDataError(err))
	assert.Equal(t, 30, err.Required)
	assert.Equal(t, 12, err.Actual)
	assert.Equal(t, "ETH", err.AssetID)
	assert.Contains(t, err.Error(), "need 30, have 12")

	assert.False(t, IsInsufficientDataError(New(ErrCodeComputation, "other")))
	assert.False(t, IsInsufficientDataError(nil))

	wrapped := fmt.Errorf("scoring: %w", err)
	assert.True(t, IsInsufficientDataError(wrapped))
}
