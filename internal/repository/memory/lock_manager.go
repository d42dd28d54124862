package memory

import (
	"context"
	"sync"
)

// lockEntry is one named lock. token holds a single value while the lock is
// free; acquiring takes it, releasing puts it back. refs counts the holder
// plus the waiters so the entry can be dropped once nobody needs it.
type lockEntry struct {
	token chan struct{}
	refs  int
}

// LockManager hands out named in-process locks. The index maintainer takes
// one per document so a write and the index refresh that follows it cannot
// interleave with another writer of the same document.
//
// This only serializes callers inside one process. Several server replicas
// writing the same store would need the database's own locking (SELECT ...
// FOR UPDATE, conditional writes), which the SQL and DynamoDB stores already
// use inside Update.
//
// Go Learning Note — Channels as Semaphores:
// A channel with a buffer of one is a mutex that can be waited on inside a
// select. Unlike sync.Mutex, the wait can be abandoned when the request's
// context is canceled.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until the lock named key is held or ctx is done. The
// returned release function is safe to call more than once.
//
// Go Learning Note — select Statement:
// select blocks until one of its cases can proceed. Here it waits for either
// the lock token or the context's Done channel, whichever comes first.
func (lm *LockManager) Acquire(ctx context.Context, key string) (func(), error) {
	lm.mu.Lock()
	entry, ok := lm.locks[key]
	if !ok {
		entry = &lockEntry{token: make(chan struct{}, 1)}
		entry.token <- struct{}{}
		lm.locks[key] = entry
	}
	entry.refs++
	lm.mu.Unlock()

	select {
	case <-entry.token:
		var once sync.Once
		return func() {
			once.Do(func() {
				entry.token <- struct{}{}
				lm.drop(key, entry)
			})
		}, nil
	case <-ctx.Done():
		lm.drop(key, entry)
		return nil, ctx.Err()
	}
}

func (lm *LockManager) drop(key string, entry *lockEntry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(lm.locks, key)
	}
}

// Len reports how many locks are held or waited on.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
