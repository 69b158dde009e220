package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("error string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Session not found")
		assert.Equal(t, "NOT_FOUND: Session not found", err.Error())
	})

	t.Run("error string with cause", func(t *testing.T) {
		cause := errors.New("row missing")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "row missing")
	})

	t.Run("unwrap reaches the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("as through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("login: %w", InvalidCredentials())

		appErr, ok := AsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeInvalidCredentials, appErr.Code)
		assert.True(t, IsAppError(wrapped))
	})

	t.Run("plain error is not an app error", func(t *testing.T) {
		err := errors.New("plain")
		assert.False(t, IsAppError(err))
		assert.Equal(t, ErrCodeInternal, GetCode(err))
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err  *AppError
		code ErrorCode
	}{
		{Unauthorized("nope"), ErrCodeUnauthorized},
		{InvalidToken("bad"), ErrCodeInvalidToken},
		{TokenExpired(), ErrCodeTokenExpired},
		{InvalidCredentials(), ErrCodeInvalidCredentials},
		{NotFound("Session"), ErrCodeNotFound},
		{AlreadyExists("Session"), ErrCodeAlreadyExists},
		{ValidationError("bad body"), ErrCodeValidation},
		{InvalidInput("limit", "too big"), ErrCodeInvalidInput},
		{MissingRequired("Email"), ErrCodeMissingRequired},
		{CodeExhausted(), ErrCodeCodeExhausted},
		{RateLimitExceeded(), ErrCodeRateLimitExceeded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, GetCode(tt.err))
	}

	assert.Equal(t, "Session not found", NotFound("Session").Message)
	assert.Equal(t, "Email is required", MissingRequired("Email").Message)
	assert.Equal(t, "Invalid limit: too big", InvalidInput("limit", "too big").Message)
}

func TestWithDetails(t *testing.T) {
	err := ValidationError("bad input").WithDetails(map[string]string{"field": "email"})
	assert.NotNil(t, err.Details)
}
