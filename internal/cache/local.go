package cache

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is the in-process fallback used when Valkey is not configured.
// It only excludes callers within the same process.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	seen  map[string]time.Time
	nowFn func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]time.Time),
		seen:  make(map[string]time.Time),
		nowFn: time.Now,
	}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}

func (l *LocalLocker) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	for k, exp := range l.seen {
		if !now.Before(exp) {
			delete(l.seen, k)
		}
	}
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	l.seen[key] = now.Add(ttl)
	return true, nil
}
