// Package memory implements the CredentialStore port in process memory.
// Records do not survive a restart.
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
)

const shardCount = 32

var _ driven.CredentialStore = (*CredentialRepo)(nil)

// shard holds the records whose identity key hashes to it.
type shard struct {
	mu    sync.RWMutex
	creds map[string]model.Credential
}

// CredentialRepo keeps credentials in sharded maps so operations on
// distinct identities rarely share a lock.
type CredentialRepo struct {
	shards [shardCount]*shard
}

// NewCredentialRepo creates an empty CredentialRepo.
func NewCredentialRepo() *CredentialRepo {
	r := &CredentialRepo{}
	for i := range r.shards {
		r.shards[i] = &shard{creds: make(map[string]model.Credential)}
	}
	return r
}

func (r *CredentialRepo) shardFor(identityKey string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identityKey))
	return r.shards[h.Sum32()%shardCount]
}

// Put stores or replaces the credential for cred.IdentityKey.
func (r *CredentialRepo) Put(_ context.Context, cred model.Credential) error {
	s := r.shardFor(cred.IdentityKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.IdentityKey] = cred
	return nil
}

// Get returns a copy of the credential for identityKey, or (nil, nil).
func (r *CredentialRepo) Get(_ context.Context, identityKey string) (*model.Credential, error) {
	s := r.shardFor(identityKey)
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[identityKey]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// Delete removes the credential for identityKey and reports whether one existed.
func (r *CredentialRepo) Delete(_ context.Context, identityKey string) (bool, error) {
	s := r.shardFor(identityKey)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.creds[identityKey]
	delete(s.creds, identityKey)
	return ok, nil
}

// List returns the zero or one credential stored for identityKey.
func (r *CredentialRepo) List(ctx context.Context, identityKey string) ([]model.Credential, error) {
	cred, _ := r.Get(ctx, identityKey)
	if cred == nil {
		return []model.Credential{}, nil
	}
	return []model.Credential{*cred}, nil
}

// Count returns the number of stored credentials.
func (r *CredentialRepo) Count(_ context.Context) (int, error) {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.creds)
		s.mu.RUnlock()
	}
	return n, nil
}
