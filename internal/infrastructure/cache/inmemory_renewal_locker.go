package cache

import (
	"context"
	"sync"

	"github.com/marketsync/backend/internal/domain/integration"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// InMemoryRenewalLocker implements RenewalLocker with one lock per key.
// It serializes goroutines in a single process only.
type InMemoryRenewalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewInMemoryRenewalLocker creates a new in-memory renewal locker
func NewInMemoryRenewalLocker() *InMemoryRenewalLocker {
	return &InMemoryRenewalLocker{
		locks: make(map[string]*keyLock),
	}
}

// Lock blocks until the key is free or ctx is done
func (l *InMemoryRenewalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

// release drops a reference and forgets the key once nobody holds or waits on it
func (l *InMemoryRenewalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Size returns the number of keys held or waited on (for testing/monitoring)
func (l *InMemoryRenewalLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Ensure InMemoryRenewalLocker implements RenewalLocker
var _ integration.RenewalLocker = (*InMemoryRenewalLocker)(nil)
