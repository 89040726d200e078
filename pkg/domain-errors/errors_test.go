package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct error", func(t *testing.T) {
		err := New(CodeNotFound, "missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeForbidden))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeForbidden, "denied"))
		assert.True(t, HasCode(err, CodeForbidden))
		assert.True(t, Is(err, CodeForbidden))
	})

	t.Run("uncoded error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "failed to load canister")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load canister: connection refused", err.Error())
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestErrorIs_ComparesCodes(t *testing.T) {
	err := New(CodeValidation, "name too long")
	require.ErrorIs(t, err, New(CodeValidation, "any message"))
	assert.NotErrorIs(t, err, New(CodeNotFound, "name too long"))
}
