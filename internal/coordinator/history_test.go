package coordinator

import (
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// historyUnderTest runs the History contract against any implementation.
func historyUnderTest(t *testing.T, h History) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	execs := []*WorkflowExecution{
		{ID: "e1", TemplateName: "full", Status: StatusCompleted, StartedAt: base},
		{ID: "e2", TemplateName: "full", Status: StatusFailed, StartedAt: base.Add(time.Hour)},
		{ID: "e3", TemplateName: "quick", Status: StatusCompleted, StartedAt: base.Add(2 * time.Hour)},
	}
	for _, exec := range execs {
		exec.CompletedAt = exec.StartedAt.Add(time.Minute)
		exec.Duration = time.Minute
		require.NoError(t, h.Save(ctx, exec))
	}

	t.Run("get", func(t *testing.T) {
		got, err := h.Get(ctx, "e2")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "full", got.TemplateName)

		_, err = h.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrExecutionNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		all, err := h.List(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "e3", all[0].ID)
		assert.Equal(t, "e1", all[2].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		failed, err := h.List(ctx, Query{Status: StatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "e2", failed[0].ID)
	})

	t.Run("filter by template", func(t *testing.T) {
		quick, err := h.List(ctx, Query{Template: "quick"})
		require.NoError(t, err)
		require.Len(t, quick, 1)
		assert.Equal(t, "e3", quick[0].ID)
	})

	t.Run("filter by window", func(t *testing.T) {
		windowed, err := h.List(ctx, Query{
			Since: base.Add(30 * time.Minute),
			Until: base.Add(90 * time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, windowed, 1)
		assert.Equal(t, "e2", windowed[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		limited, err := h.List(ctx, Query{Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "e3", limited[0].ID)
	})

	t.Run("save is upsert", func(t *testing.T) {
		updated := *execs[0]
		updated.Status = StatusPartial
		require.NoError(t, h.Save(ctx, &updated))

		got, err := h.Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, StatusPartial, got.Status)
	})
}

func TestMemoryHistory(t *testing.T) {
	historyUnderTest(t, NewMemoryHistory())
}

func TestBadgerHistory(t *testing.T) {
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	historyUnderTest(t, NewBadgerHistory(db))
}

func TestBadgerHistorySharesDBWithOtherPrefixes(t *testing.T) {
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// A foreign record outside the history keyspace must stay invisible.
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("pat/other"), []byte("{}"))
	}))

	h := NewBadgerHistory(db)
	require.NoError(t, h.Save(context.Background(), &WorkflowExecution{
		ID: "e1", TemplateName: "full", Status: StatusCompleted, StartedAt: time.Now(),
	}))

	all, err := h.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
