package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// historyPrefix namespaces execution records in the shared badger DB.
const historyPrefix = "wf/"

// ErrExecutionNotFound is returned when no execution exists for an ID.
var ErrExecutionNotFound = errors.New("execution not found")

// Query filters execution history. Zero-valued fields match everything.
type Query struct {
	Status   Status
	Template string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (q Query) matches(exec *WorkflowExecution) bool {
	if q.Status != "" && exec.Status != q.Status {
		return false
	}
	if q.Template != "" && exec.TemplateName != q.Template {
		return false
	}
	if !q.Since.IsZero() && exec.StartedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && exec.StartedAt.After(q.Until) {
		return false
	}
	return true
}

// History persists finished workflow executions.
type History interface {
	Save(ctx context.Context, exec *WorkflowExecution) error
	Get(ctx context.Context, id string) (*WorkflowExecution, error)
	List(ctx context.Context, q Query) ([]*WorkflowExecution, error)
}

// BadgerHistory stores executions as JSON values in a badger DB, sharing
// the DB with the pattern store under a distinct key prefix.
type BadgerHistory struct {
	db *badger.DB
}

// NewBadgerHistory wraps an open badger DB. The caller owns the DB's
// lifecycle.
func NewBadgerHistory(db *badger.DB) *BadgerHistory {
	return &BadgerHistory{db: db}
}

func historyKey(id string) []byte {
	return []byte(historyPrefix + id)
}

// Save upserts the execution record.
func (h *BadgerHistory) Save(_ context.Context, exec *WorkflowExecution) error {
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", exec.ID, err)
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(exec.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("save execution %s: %w", exec.ID, err)
	}
	return nil
}

// Get loads one execution by ID.
func (h *BadgerHistory) Get(_ context.Context, id string) (*WorkflowExecution, error) {
	var exec WorkflowExecution
	err := h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(historyKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &exec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", id, err)
	}
	return &exec, nil
}

// List returns matching executions, most recent first.
func (h *BadgerHistory) List(_ context.Context, q Query) ([]*WorkflowExecution, error) {
	var results []*WorkflowExecution
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var exec WorkflowExecution
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &exec)
			})
			if err != nil {
				return err
			}
			if q.matches(&exec) {
				results = append(results, &exec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	sortAndLimit(&results, q.Limit)
	return results, nil
}

// MemoryHistory is an in-memory History for tests and ephemeral runs.
type MemoryHistory struct {
	mu    sync.RWMutex
	execs map[string]*WorkflowExecution
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{execs: make(map[string]*WorkflowExecution)}
}

func (h *MemoryHistory) Save(_ context.Context, exec *WorkflowExecution) error {
	// Deep-copy through JSON so later caller mutations stay invisible.
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", exec.ID, err)
	}
	var stored WorkflowExecution
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("decode execution %s: %w", exec.ID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs[exec.ID] = &stored
	return nil
}

func (h *MemoryHistory) Get(_ context.Context, id string) (*WorkflowExecution, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	exec, ok := h.execs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return exec, nil
}

func (h *MemoryHistory) List(_ context.Context, q Query) ([]*WorkflowExecution, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var results []*WorkflowExecution
	for _, exec := range h.execs {
		if q.matches(exec) {
			results = append(results, exec)
		}
	}
	sortAndLimit(&results, q.Limit)
	return results, nil
}

func sortAndLimit(results *[]*WorkflowExecution, limit int) {
	sort.Slice(*results, func(i, j int) bool {
		return (*results)[i].StartedAt.After((*results)[j].StartedAt)
	})
	if limit > 0 && len(*results) > limit {
		*results = (*results)[:limit]
	}
}
