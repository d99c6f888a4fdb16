package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	enc, err := EncodeCursor(at, "job-1")
	require.NoError(t, err)

	got, err := DecodeCursor(enc)
	require.NoError(t, err)
	assert.True(t, got.At.Equal(at))
	assert.Equal(t, "job-1", got.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "%%%", "e30"} { // e30 is base64 of {}
		_, err := DecodeCursor(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, "input %q", in)
	}
}
