package postgres

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/vault"
	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

func TestNewCredentialRepo_Initializes(t *testing.T) {
	repo := NewCredentialRepo(nil, nil)
	require.NotNil(t, repo)
}

func TestCredentialRepo_GetWithoutKey(t *testing.T) {
	sealer, err := vault.NewSealer(nil)
	require.NoError(t, err)

	// The key check happens before any query, so a nil pool is never touched.
	repo := NewCredentialRepo(nil, sealer)
	_, err = repo.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	err = repo.Put(context.Background(), model.Credential{IdentityKey: "alice"})
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

// setupTestRepo connects to PASSKEYWALLET_TEST_DATABASE_URL and skips when it is unset.
func setupTestRepo(t *testing.T) *CredentialRepo {
	t.Helper()

	url := os.Getenv("PASSKEYWALLET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PASSKEYWALLET_TEST_DATABASE_URL not set")
	}

	require.NoError(t, RunMigrations(url))

	db, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sealer, err := vault.NewSealer(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	return NewCredentialRepo(db, sealer)
}

func TestCredentialRepo_Integration(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	key := "it-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	cred := model.Credential{
		IdentityKey:          key,
		CredentialID:         "cred-1",
		PublicKey:            "pk",
		Algorithm:            model.AlgES256,
		WalletAddress:        "0x00000000000000000000000000000000000000aa",
		EncryptedRecoveryKey: "backup",
		CreatedAt:            now,
		LastUsedAt:           now,
	}
	t.Cleanup(func() { _, _ = repo.Delete(context.Background(), key) })

	require.NoError(t, repo.Put(ctx, cred))

	list, err := repo.List(ctx, key)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pk", list[0].PublicKey)
	assert.Equal(t, "backup", list[0].EncryptedRecoveryKey)
	assert.True(t, now.Equal(list[0].CreatedAt))

	existed, err := repo.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}
