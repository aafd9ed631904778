package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(KindIO, "write failed", inner)
	wrapped := fmt.Errorf("higher level: %w", err)

	assert.True(t, Is(wrapped, KindIO))
	assert.False(t, Is(wrapped, KindCorrupt))
}

func TestUnwrapReachesUnderlyingError(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(KindIO, "write failed", inner)
	assert.ErrorIs(t, err, inner)
}

func TestOfReturnsUnknownForPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, Of(errors.New("plain")))
}
