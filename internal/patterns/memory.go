package patterns

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by degraded mode when
// the persistent store cannot be opened.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Pattern
}

// NewMemoryStore creates an empty in-memory pattern store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Pattern)}
}

// Put stores a pattern at key.
func (s *MemoryStore) Put(ctx context.Context, key Key, p Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key.String()] = p
	return nil
}

// Get returns the pattern at key, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key Key) (*Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Scan streams patterns whose key starts with prefix, in key order.
func (s *MemoryStore) Scan(ctx context.Context, prefix string, fn ScanFunc) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	// Copy out under the lock so the callback runs unlocked.
	snapshot := make([]Pattern, len(keys))
	sort.Strings(keys)
	for i, k := range keys {
		snapshot[i] = s.data[k]
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := ParseKey(k)
		if !ok {
			continue
		}
		if !fn(key, snapshot[i]) {
			return nil
		}
	}
	return nil
}

// IncrementFrequency atomically bumps frequency and recomputes confidence.
func (s *MemoryStore) IncrementFrequency(ctx context.Context, key Key) (*Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data[key.String()]
	if !ok {
		return nil, ErrNotFound
	}

	p.Frequency++
	p.LastSeen = timeNow()
	Rescore(&p)

	s.data[key.String()] = p
	return &p, nil
}

// Delete removes the pattern at key. Missing keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key.String())
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored patterns. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
