package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

func TestCredentialRepo_Lifecycle(t *testing.T) {
	repo := NewCredentialRepo()
	ctx := context.Background()

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Put(ctx, model.Credential{IdentityKey: "alice", CredentialID: "c1"}))
	require.NoError(t, repo.Put(ctx, model.Credential{IdentityKey: "alice", CredentialID: "c2"}))

	list, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c2", list[0].CredentialID)

	existed, err := repo.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, existed)

	list, err = repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCredentialRepo_GetReturnsCopy(t *testing.T) {
	repo := NewCredentialRepo()
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, model.Credential{IdentityKey: "alice", CredentialID: "c1"}))

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	got.CredentialID = "mutated"

	again, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "c1", again.CredentialID)
}

func TestCredentialRepo_Concurrent(t *testing.T) {
	repo := NewCredentialRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", i)
			_ = repo.Put(ctx, model.Credential{IdentityKey: key})
			_, _ = repo.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}
