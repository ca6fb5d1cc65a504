package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestBackupThenRollbackRestoresExactBytes(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	original := []byte("package main\n\nfunc main() {}\n\x00\xff binary tail")
	path := writeFile(t, dir, "main.go", original)

	ref, err := m.Backup("exec-1", path)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", ref.ExecutionID)
	assert.NotEmpty(t, ref.Digest)

	// Mutate, then roll back.
	require.NoError(t, os.WriteFile(path, []byte("mangled"), 0o644))
	require.NoError(t, m.Rollback(ref))

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, restored, "rollback must restore byte-identical content")
}

func TestBackupMissingFileFails(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Backup("exec-1", filepath.Join(t.TempDir(), "absent.go"))
	require.Error(t, err, "no backup, no mutation")
}

func TestRollbackAllReverseOrderAndPartialFailure(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	const n = 6
	paths := make([]string, n)
	refs := make([]*Ref, n)
	for i := 0; i < n; i++ {
		paths[i] = writeFile(t, dir, fmt.Sprintf("file%d.go", i), []byte(fmt.Sprintf("original %d", i)))
		ref, err := m.Backup("exec-2", paths[i])
		require.NoError(t, err)
		refs[i] = ref
		require.NoError(t, os.WriteFile(paths[i], []byte("mutated"), 0o644))
	}

	// Force the middle rollback to fail by destroying its object.
	require.NoError(t, os.Remove(filepath.Join(m.objectsDir, refs[n/2].Digest)))

	report, err := m.RollbackAll("exec-2")
	require.NoError(t, err)

	assert.Len(t, report.Restored, n-1, "failure of one rollback must not abort the rest")
	require.Len(t, report.Failed, 1)
	assert.Equal(t, paths[n/2], report.Failed[0].Ref.FilePath)
	assert.Contains(t, report.Failed[0].Error, "not found")
	assert.False(t, report.Complete())

	for i, p := range paths {
		content, err := os.ReadFile(p)
		require.NoError(t, err)
		if i == n/2 {
			assert.Equal(t, "mutated", string(content))
		} else {
			assert.Equal(t, fmt.Sprintf("original %d", i), string(content))
		}
	}

	// Reverse creation order: last backup restored first.
	assert.Equal(t, paths[n-1], report.Restored[0].FilePath)
}

func TestRollbackAllEmptyLedger(t *testing.T) {
	m := newTestManager(t)

	report, err := m.RollbackAll("never-ran")
	require.NoError(t, err)
	assert.Empty(t, report.Restored)
	assert.Empty(t, report.Failed)
	assert.True(t, report.Complete())
}

func TestLedgerIsAppendOnlyPerExecution(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	pathA := writeFile(t, dir, "a.go", []byte("a"))
	pathB := writeFile(t, dir, "b.go", []byte("b"))

	_, err := m.Backup("exec-a", pathA)
	require.NoError(t, err)
	_, err = m.Backup("exec-b", pathB)
	require.NoError(t, err)
	_, err = m.Backup("exec-a", pathB)
	require.NoError(t, err)

	refsA, err := m.Ledger("exec-a")
	require.NoError(t, err)
	require.Len(t, refsA, 2)
	assert.Equal(t, pathA, refsA[0].FilePath)
	assert.Equal(t, pathB, refsA[1].FilePath)

	refsB, err := m.Ledger("exec-b")
	require.NoError(t, err)
	assert.Len(t, refsB, 1)
}

func TestIdenticalContentSharesObject(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	pathA := writeFile(t, dir, "a.go", []byte("same content"))
	pathB := writeFile(t, dir, "b.go", []byte("same content"))

	refA, err := m.Backup("exec-1", pathA)
	require.NoError(t, err)
	refB, err := m.Backup("exec-1", pathB)
	require.NoError(t, err)

	assert.Equal(t, refA.Digest, refB.Digest)
	objects, err := os.ReadDir(m.objectsDir)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestSweepRemovesExpiredLedgersAndOrphanObjects(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "old.go", []byte("old content"))
	ref, err := m.Backup("exec-old", path)
	require.NoError(t, err)

	// Age the ledger past retention.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(m.ledgerPath("exec-old"), old, old))

	removed, err := m.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(m.objectsDir, ref.Digest))
	assert.True(t, os.IsNotExist(err), "orphaned object should be swept")

	refs, err := m.Ledger("exec-old")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSweepKeepsReferencedObjects(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "fresh.go", []byte("fresh content"))
	ref, err := m.Backup("exec-fresh", path)
	require.NoError(t, err)

	removed, err := m.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = os.Stat(filepath.Join(m.objectsDir, ref.Digest))
	assert.NoError(t, err)
}
