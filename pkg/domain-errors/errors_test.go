package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeIdentityMismatch, "claimed id does not match document")
		assert.True(t, HasCode(err, CodeIdentityMismatch))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("evaluate: %w", New(CodeDuplicateDecision, "already decided"))
		assert.True(t, HasCode(err, CodeDuplicateDecision))
	})

	t.Run("matches inner code of nested domain errors", func(t *testing.T) {
		inner := New(CodeTimeout, "ml timed out")
		outer := Wrap(inner, CodeInternal, "prediction failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeTimeout))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))

	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "load application")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("unknown")))
	assert.Equal(t, CodeNotFound, CodeOf(Newf(CodeNotFound, "application %s not found", "x")))
}
