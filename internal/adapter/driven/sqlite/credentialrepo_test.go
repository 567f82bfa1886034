package sqlite

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/vault"
	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

func newTestRepo(t *testing.T) (*CredentialRepo, *DB) {
	t.Helper()
	db := setupTestDB(t)
	sealer, err := vault.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return NewCredentialRepo(db, sealer), db
}

func testCredential(key string) model.Credential {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.Credential{
		IdentityKey:          key,
		CredentialID:         "cred-" + key,
		PublicKey:            "pk-" + key,
		Algorithm:            model.AlgES256,
		WalletAddress:        "0x00000000000000000000000000000000000000aa",
		EncryptedRecoveryKey: "backup-" + key,
		CreatedAt:            created,
		LastUsedAt:           created,
	}
}

func TestCredentialRepo_PutAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	want := testCredential("alice")
	require.NoError(t, repo.Put(ctx, want))

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.CredentialID, got.CredentialID)
	assert.Equal(t, want.PublicKey, got.PublicKey)
	assert.Equal(t, want.Algorithm, got.Algorithm)
	assert.Equal(t, want.WalletAddress, got.WalletAddress)
	assert.Equal(t, want.EncryptedRecoveryKey, got.EncryptedRecoveryKey)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, want.LastUsedAt.Equal(got.LastUsedAt))
}

func TestCredentialRepo_KeyMaterialSealedAtRest(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, testCredential("alice")))

	var publicKey, recovery string
	err := db.Reader.QueryRowContext(ctx,
		`SELECT public_key, encrypted_recovery_key FROM credentials WHERE identity_key = ?`, "alice",
	).Scan(&publicKey, &recovery)
	require.NoError(t, err)
	assert.NotContains(t, publicKey, "pk-alice")
	assert.NotContains(t, recovery, "backup-alice")
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	got, err := repo.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialRepo_PutOverwrites(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, testCredential("alice")))

	replacement := testCredential("alice")
	replacement.CredentialID = "cred-second-device"
	replacement.LastUsedAt = replacement.LastUsedAt.Add(time.Hour)
	require.NoError(t, repo.Put(ctx, replacement))

	list, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cred-second-device", list[0].CredentialID)
	assert.True(t, replacement.LastUsedAt.Equal(list[0].LastUsedAt))
}

func TestCredentialRepo_List(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	require.NoError(t, repo.Put(ctx, testCredential("alice")))
	require.NoError(t, repo.Put(ctx, testCredential("bob")))

	list, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cred-alice", list[0].CredentialID)
}

func TestCredentialRepo_Delete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, testCredential("alice")))

	existed, err := repo.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	existed, err = repo.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, existed, "deleting a missing credential reports false without error")
}

func TestCredentialRepo_Count(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Put(ctx, testCredential(fmt.Sprintf("user-%d", i))))
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCredentialRepo_ConcurrentDistinctIdentities(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Put(ctx, testCredential(fmt.Sprintf("user-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestCredentialRepo_NoEncryptionKey(t *testing.T) {
	db := setupTestDB(t)
	sealer, err := vault.NewSealer(nil)
	require.NoError(t, err)
	repo := NewCredentialRepo(db, sealer)
	ctx := context.Background()

	err = repo.Put(ctx, testCredential("alice"))
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.Get(ctx, "alice")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestFormatTime_RoundTrips(t *testing.T) {
	in := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.FixedZone("CET", 3600))

	out, err := parseTime(formatTime(in))
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
	assert.Equal(t, time.UTC, out.Location())

	_, err = parseTime("2026-03-01 12:30:45")
	assert.Error(t, err)
}
