package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NewAppErrorf(NotFound, "user %q not found", "bob")
	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.True(t, errors.Is(err, ErrTransactionNotFound))
	assert.False(t, errors.Is(err, ErrVersionConflict))

	wrapped := fmt.Errorf("loading: %w", ErrVersionConflict.WithDetails("v3"))
	assert.True(t, errors.Is(wrapped, ErrVersionConflict))
	assert.Equal(t, Conflict, CodeOf(wrapped))
}

func TestWithDetailsCopies(t *testing.T) {
	detailed := ErrNotPending.WithDetails("current status is ACCEPTED")
	assert.Equal(t, "current status is ACCEPTED", detailed.Details)
	assert.Empty(t, ErrNotPending.Details)
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		InvalidInput:  http.StatusBadRequest,
		NotFound:      http.StatusNotFound,
		Forbidden:     http.StatusForbidden,
		InvalidState:  http.StatusConflict,
		Conflict:      http.StatusConflict,
		StaleIdentity: http.StatusUnauthorized,
		Unauthorized:  http.StatusUnauthorized,
		Transient:     http.StatusServiceUnavailable,
		InternalError: http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, NewAppError(code, "x").HTTPStatus(), string(code))
	}
}

func TestAsAppError(t *testing.T) {
	plain := errors.New("driver exploded")
	appErr := AsAppError(plain)
	assert.Equal(t, InternalError, appErr.Code)
	assert.NotContains(t, appErr.Message, "exploded")
	assert.Equal(t, InternalError, CodeOf(plain))

	assert.Same(t, ErrNotCreator, AsAppError(ErrNotCreator))
}
