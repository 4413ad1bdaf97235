package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"queueforge/pkg/types"
)

type lockKey struct {
	planetID int64
	category types.Category
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker hands out one exclusive lock per (planet, category).
// Entries are dropped once nobody holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[lockKey]*keyLock
}

// NewKeyedLocker returns an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[lockKey]*keyLock)}
}

// Lock blocks until the key is free, ctx is done, or timeout elapses (0 = no timeout).
// The returned func releases the lock and must be called exactly once.
func (l *KeyedLocker) Lock(ctx context.Context, planetID int64, category types.Category, timeout time.Duration) (func(), error) {
	key := lockKey{planetID: planetID, category: category}

	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case kl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.sem
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("waiting for queue lock: %w", ctx.Err())
	case <-expired:
		l.release(key, kl)
		return nil, fmt.Errorf("queue lock not acquired within %s", timeout)
	}
}

func (l *KeyedLocker) release(key lockKey, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
