package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorString(t *testing.T) {
	err := NewInternalError("failed to insert plans", errors.New("connection reset"))
	assert.Equal(t, "INTERNAL: failed to insert plans: connection reset", err.Error())

	blocked := NewBlockedError("captcha detected")
	assert.Equal(t, "BLOCKED: captcha detected", blocked.Error())
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("provider AIA: %w", NewBlockedError("unusual traffic"))

	assert.True(t, IsType(wrapped, ErrorTypeBlocked))
	assert.False(t, IsType(wrapped, ErrorTypeExternal))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeBlocked))
	assert.True(t, IsType(ErrMissingAPIKey, ErrorTypeUnauthorized))
}

func TestAppError_Unwrap(t *testing.T) {
	root := errors.New("root cause")
	err := NewExternalError("openai request failed", root)
	assert.ErrorIs(t, err, root)
}
