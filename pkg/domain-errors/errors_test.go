package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTemplates(t *testing.T) {
	t.Run("substitutes metadata into the code template", func(t *testing.T) {
		err := New(CodeEntityNotFound, "").WithMeta("id", "abc")
		assert.Equal(t, `user "abc" not found or not in the required state`, err.PublicMessage())
	})

	t.Run("explicit message wins over template", func(t *testing.T) {
		err := New(CodeValidation, "take must not be negative")
		assert.Equal(t, "take must not be negative", err.PublicMessage())
		assert.Equal(t, "VALIDATION_ERROR: take must not be negative", err.Error())
	})

	t.Run("leaves unknown placeholders untouched", func(t *testing.T) {
		err := New(CodeDuplicateIdentity, "")
		assert.Equal(t, "an active user already exists for provider ${provider}", err.PublicMessage())
	})
}

func TestClassification(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("outer: %w", Wrap(cause, CodeStoreTimeout, ""))

	require.True(t, HasCode(wrapped, CodeStoreTimeout))
	assert.False(t, HasCode(wrapped, CodeUnknown))
	assert.Equal(t, CodeStoreTimeout, CodeOf(wrapped))
	assert.Equal(t, CodeUnknown, CodeOf(cause))
	assert.ErrorIs(t, wrapped, cause)
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidIdentity, http.StatusBadRequest},
		{CodeFilterTooComplex, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeCursorNotFound, http.StatusBadRequest},
		{CodeDuplicateIdentity, http.StatusConflict},
		{CodeEntityNotFound, http.StatusNotFound},
		{CodeStoreTimeout, http.StatusGatewayTimeout},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.code), string(tt.code))
	}
}
