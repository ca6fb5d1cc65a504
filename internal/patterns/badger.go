package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// keyspace prefix separating patterns from other records in a shared DB.
const badgerKeyspace = "pat/"

// incrementRetries bounds optimistic-transaction retries on write conflict.
const incrementRetries = 8

// BadgerStore is a Store backed by an embedded Badger database.
//
// Badger transactions provide the per-key atomicity the store contract
// requires: IncrementFrequency runs as a single read-modify-write
// transaction and retries on conflict, so concurrent increments on the
// same key never lose updates.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
	owned  bool
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	return &BadgerStore{db: db, logger: logger, owned: true}, nil
}

// NewBadgerStoreFromDB wraps an already-open database. The caller retains
// ownership of the DB lifecycle; Close becomes a no-op.
func NewBadgerStoreFromDB(db *badger.DB, logger *zap.Logger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger}
}

// Put stores a pattern at key.
func (s *BadgerStore) Put(ctx context.Context, key Key, p Pattern) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.storageKey(key), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get returns the pattern at key, or ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, key Key) (*Pattern, error) {
	var p Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.storageKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return &p, nil
}

// Scan streams patterns whose storage key starts with prefix, in key order.
// The iteration runs over a consistent snapshot; calling Scan again
// restarts the sequence.
func (s *BadgerStore) Scan(ctx context.Context, prefix string, fn ScanFunc) error {
	fullPrefix := []byte(badgerKeyspace + prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = fullPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key, ok := ParseKey(string(item.Key()[len(badgerKeyspace):]))
			if !ok {
				continue
			}
			var p Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			if !fn(key, p) {
				return nil
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: scan %s: %v", ErrUnavailable, prefix, err)
	}
	return err
}

// IncrementFrequency atomically bumps frequency and recomputes confidence.
func (s *BadgerStore) IncrementFrequency(ctx context.Context, key Key) (*Pattern, error) {
	var updated Pattern

	for attempt := 0; attempt < incrementRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(s.storageKey(key))
			if err != nil {
				return err
			}
			var p Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}

			p.Frequency++
			p.LastSeen = timeNow()
			Rescore(&p)

			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			updated = p
			return txn.Set(s.storageKey(key), data)
		})

		switch {
		case err == nil:
			return &updated, nil
		case errors.Is(err, badger.ErrConflict):
			// Another writer won the race on this key; retry.
			continue
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("%w: increment %s: %v", ErrUnavailable, key, err)
		}
	}

	return nil, fmt.Errorf("%w: increment %s: conflict retries exhausted", ErrUnavailable, key)
}

// Delete removes the pattern at key. Missing keys are not an error.
func (s *BadgerStore) Delete(ctx context.Context, key Key) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.storageKey(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close closes the underlying database if this store owns it.
func (s *BadgerStore) Close() error {
	if s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) storageKey(key Key) []byte {
	return []byte(badgerKeyspace + key.String())
}
