// Package lock serializes file mutation across concurrent workflow
// executions. Two executions must never hold overlapping backup/mutate
// windows on the same path.
package lock

import (
	"path/filepath"
	"sync"
)

// PathLocker provides per-path mutual exclusion. Paths are normalized to
// their cleaned absolute form so differing spellings of one file contend on
// one lock.
type PathLocker struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewPathLocker creates an empty locker.
func NewPathLocker() *PathLocker {
	return &PathLocker{locks: make(map[string]*pathLock)}
}

// Lock acquires the exclusive lock for path, blocking until it is free.
// It returns the normalized path the lock was taken under; pass the same
// value to Unlock.
func (l *PathLocker) Lock(path string) string {
	key := normalize(path)

	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &pathLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return key
}

// Unlock releases the lock for a key returned by Lock. Entries with no
// waiters are dropped so the map does not grow with every path ever seen.
func (l *PathLocker) Unlock(key string) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
	}
	l.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}

func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
