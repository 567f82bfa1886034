package wallet

import (
	"crypto/rand"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 91)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestDeriveAddress_Deterministic(t *testing.T) {
	key := randomKey(t)

	first := DeriveAddress(key)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveAddress(key))
	}
}

func TestDeriveAddress_Format(t *testing.T) {
	addr := DeriveAddress([]byte("public-key-material"))

	assert.True(t, model.IsValidAddress(addr), "address %q should match the wire pattern", addr)
	// EIP-55: the checksummed form round-trips through go-ethereum unchanged.
	assert.Equal(t, common.HexToAddress(addr).Hex(), addr)
	assert.True(t, strings.HasPrefix(addr, "0x"))
}

func TestDeriveAddress_NoCollisions(t *testing.T) {
	const n = 2000
	seen := make(map[string]int, n)

	for i := 0; i < n; i++ {
		addr := DeriveAddress([]byte(fmt.Sprintf("key-%d", i)))
		prev, dup := seen[addr]
		require.False(t, dup, "key-%d collides with key-%d", i, prev)
		seen[addr] = i
	}
}

func TestRecoveryBackup_RoundTrip(t *testing.T) {
	key := randomKey(t)

	backup, err := CreateRecoveryBackup(key)
	require.NoError(t, err)
	assert.NotEmpty(t, backup)

	priv, err := OpenRecoveryBackup(key, backup)
	require.NoError(t, err)
	assert.True(t, model.IsValidAddress(RecoveryAddress(priv)))
}

func TestRecoveryBackup_IndependentOfSigningKey(t *testing.T) {
	key := randomKey(t)

	a, err := CreateRecoveryBackup(key)
	require.NoError(t, err)
	b, err := CreateRecoveryBackup(key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "each backup holds a freshly generated keypair")

	privA, err := OpenRecoveryBackup(key, a)
	require.NoError(t, err)
	assert.NotEqual(t, DeriveAddress(key), RecoveryAddress(privA))
}

func TestRecoveryBackup_WrongKey(t *testing.T) {
	backup, err := CreateRecoveryBackup(randomKey(t))
	require.NoError(t, err)

	_, err = OpenRecoveryBackup(randomKey(t), backup)
	assert.Error(t, err)
}

func TestRecoveryBackup_EmptyKey(t *testing.T) {
	_, err := CreateRecoveryBackup(nil)
	assert.Error(t, err)
}
