package vault

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

func testKey() []byte { return bytes.Repeat([]byte{0x42}, 32) }

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal("public-key", "identity-1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "public-key")

	plain, err := s.Open(sealed, "identity-1")
	require.NoError(t, err)
	assert.Equal(t, "public-key", plain)
}

func TestSealer_WrongAdditionalData(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal("public-key", "identity-1")
	require.NoError(t, err)

	_, err = s.Open(sealed, "identity-2")
	assert.Error(t, err, "a value sealed for one identity must not open for another")
}

func TestSealer_NilKey(t *testing.T) {
	s, err := NewSealer(nil)
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = s.Seal("x", "")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = s.Open("x", "")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestSealer_BadKeyLength(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}

func TestSealer_Tampered(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	_, err = s.Open("bm90LXZhbGlk", "")
	assert.Error(t, err)
}
