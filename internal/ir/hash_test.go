package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash([]byte("export const a = 1\n"))
	b := ContentHash([]byte("export const a = 1\n"))
	c := ContentHash([]byte("export const a = 2\n"))

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDomainSeparation(t *testing.T) {
	canonical, err := MarshalCanonical("x")
	require.NoError(t, err)
	fp, err := Fingerprint("x")
	require.NoError(t, err)
	assert.NotEqual(t, ContentHash(canonical), fp, "same bytes must hash differently per domain")
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"path": "a.ts", "mode": "text"})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"mode": "text", "path": "a.ts"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalEqual(t *testing.T) {
	eq, err := CanonicalEqual(map[string]any{"n": 1}, map[string]any{"n": 1.0})
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = CanonicalEqual(map[string]any{"n": 1}, map[string]any{"n": 2})
	require.NoError(t, err)
	assert.False(t, eq)
}
