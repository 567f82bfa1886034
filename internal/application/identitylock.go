package application

import (
	"context"

	"github.com/sasha-s/go-deadlock"
)

// identityLocks serializes ceremonies per identity key. Entries are reference
// counted and dropped when the last holder or waiter leaves, so the map only
// grows with concurrent identities, not total ones.
//
// The registry mutex is only held for map bookkeeping. The per-identity lock
// is a one-slot channel: a ceremony may hold it for the whole ceremony
// timeout, and a waiter has to be able to give up when its request ends.
type identityLocks struct {
	mu    deadlock.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	sem  chan struct{}
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*identityLock)}
}

// lock blocks until key is free or ctx is done. On success it returns the
// matching unlock; otherwise it returns ctx.Err().
func (l *identityLocks) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &identityLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}

	return func() {
		<-entry.sem
		l.release(key, entry)
	}, nil
}

func (l *identityLocks) release(key string, entry *identityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// held returns the number of identity keys currently locked or awaited.
func (l *identityLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
