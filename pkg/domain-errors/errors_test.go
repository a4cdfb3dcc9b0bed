package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	base := errors.New("connection refused")

	t.Run("direct code", func(t *testing.T) {
		err := New(CodeNotFound, "user not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load user: %w", New(CodeForbidden, "nope"))
		assert.True(t, HasCode(err, CodeForbidden))
	})

	t.Run("nested coded errors are all visible", func(t *testing.T) {
		inner := Wrap(base, CodeTimeout, "store timed out")
		outer := Wrap(inner, CodeInternal, "failed to list audit records")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeTimeout))
		assert.True(t, Is(outer, base))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(base, CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", New(CodeValidation, "bad"), http.StatusBadRequest},
		{"unauthorized", New(CodeUnauthorized, "bad"), http.StatusUnauthorized},
		{"forbidden", New(CodeForbidden, "bad"), http.StatusForbidden},
		{"not found", New(CodeNotFound, "bad"), http.StatusNotFound},
		{"conflict", New(CodeConflict, "bad"), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"unknown code", New(Code("weird"), "bad"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(errors.New("pq: relation missing"), CodeInternal, "failed to save user")
	require.EqualError(t, err, "failed to save user: pq: relation missing")

	de, ok := As(fmt.Errorf("ctx: %w", err))
	require.True(t, ok)
	assert.Equal(t, CodeInternal, de.Code)
}
