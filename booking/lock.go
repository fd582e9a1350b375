/*
lock.go - Keyed mutual exclusion with bounded waits

PURPOSE:
  Per-package and per-session critical sections. Each key gets its own
  lock; operations on different keys never contend. Acquisition honors
  context cancellation and a wait cap, surfacing ErrLockTimeout (a
  retryable infrastructure error) instead of blocking forever.
*/
package booking

import (
	"context"
	"sync"
	"time"
)

// KeyMutex provides one mutex per string key. Zero value is not usable;
// construct with NewKeyMutex.
type KeyMutex struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	maxWait time.Duration
}

// NewKeyMutex creates a KeyMutex whose Lock waits at most maxWait.
func NewKeyMutex(maxWait time.Duration) *KeyMutex {
	return &KeyMutex{
		locks:   make(map[string]chan struct{}),
		maxWait: maxWait,
	}
}

func (k *KeyMutex) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

// Lock acquires the key's mutex. Returns ErrLockTimeout if the wait cap
// elapses, or the context error if ctx is cancelled first.
func (k *KeyMutex) Lock(ctx context.Context, key string) error {
	ch := k.slot(key)

	timer := time.NewTimer(k.maxWait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the key's mutex. Must only be called after a successful
// Lock for the same key.
func (k *KeyMutex) Unlock(key string) {
	<-k.slot(key)
}
