package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := Deferred("listing %s not received yet", "abc")

	assert.True(t, errors.Is(err, ErrDeferred))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsDeferred(fmt.Errorf("apply: %w", err)))
	assert.Equal(t, KindDeferred, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Contains(t, err.Error(), "listing abc not received yet")
}

func TestPersistenceKeepsClassifiedErrors(t *testing.T) {
	rule := BusinessRule("illegal transition")
	assert.Same(t, rule, Persistence("failed to update order", rule))

	raw := errors.New("connection reset")
	wrapped := Persistence("failed to update order", raw)
	assert.True(t, errors.Is(wrapped, ErrPersistence))
	assert.True(t, errors.Is(wrapped, raw))
	assert.Nil(t, Persistence("noop", nil))
	assert.Equal(t, Kind(""), KindOf(raw))
}
