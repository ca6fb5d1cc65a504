// Package backup implements the backup/rollback manager.
//
// Every fix application is preceded by a snapshot of the target file.
// Snapshots are immutable: original bytes live content-addressed under an
// objects directory and each workflow execution owns an append-only ledger
// of refs. Rollback replays a ledger in reverse; it never mutates ledger
// records, so a rollback after N fixes is a pure replay over immutable
// state.
package backup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// ErrNoBackup indicates a rollback referenced a snapshot that is missing.
var ErrNoBackup = errors.New("backup object not found")

// Ref identifies one immutable file snapshot.
type Ref struct {
	ID          string      `json:"id"`
	ExecutionID string      `json:"execution_id"`
	FilePath    string      `json:"file_path"`
	Digest      string      `json:"digest"`
	Mode        fs.FileMode `json:"mode"`
	Size        int64       `json:"size"`
	CreatedAt   time.Time   `json:"created_at"`
}

// RollbackFailure reports one file that could not be restored.
type RollbackFailure struct {
	Ref   Ref    `json:"ref"`
	Error string `json:"error"`
}

// RollbackReport is the outcome of RollbackAll. A partial rollback is
// observable here, never silent.
type RollbackReport struct {
	ExecutionID string            `json:"execution_id"`
	Restored    []Ref             `json:"restored"`
	Failed      []RollbackFailure `json:"failed"`
}

// Complete reports whether every backup in the ledger was restored.
func (r *RollbackReport) Complete() bool {
	return len(r.Failed) == 0
}

// Manager creates and restores file snapshots.
type Manager struct {
	objectsDir string
	ledgersDir string
	logger     *zap.Logger

	// mu serializes ledger appends; object writes are idempotent.
	mu sync.Mutex
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		objectsDir: filepath.Join(dir, "objects"),
		ledgersDir: filepath.Join(dir, "ledgers"),
		logger:     logger,
	}
	for _, d := range []string{m.objectsDir, m.ledgersDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, fmt.Errorf("create backup directory %s: %w", d, err)
		}
	}
	return m, nil
}

// Backup snapshots filePath into the execution's ledger and returns the
// ref. It must run before any mutation of the file; a failure here fails
// the whole fix application ("no backup, no mutation").
func (m *Manager) Backup(executionID, filePath string) (*Ref, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", filePath, err)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read original content: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat original: %w", err)
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	if err := m.writeObject(digest, content); err != nil {
		return nil, err
	}

	ref := Ref{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		FilePath:    abs,
		Digest:      digest,
		Mode:        info.Mode().Perm(),
		Size:        int64(len(content)),
		CreatedAt:   timeNow(),
	}

	if err := m.appendLedger(ref); err != nil {
		return nil, err
	}

	m.logger.Debug("backup created",
		zap.String("execution_id", executionID),
		zap.String("file", abs),
		zap.String("digest", digest[:12]),
	)
	return &ref, nil
}

// Rollback restores the exact original bytes recorded by ref.
func (m *Manager) Rollback(ref *Ref) error {
	content, err := os.ReadFile(m.objectPath(ref.Digest))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoBackup, ref.Digest)
		}
		return fmt.Errorf("read backup object: %w", err)
	}

	sum := sha256.Sum256(content)
	if hex.EncodeToString(sum[:]) != ref.Digest {
		return fmt.Errorf("backup object %s is corrupt", ref.Digest)
	}

	if err := os.WriteFile(ref.FilePath, content, ref.Mode); err != nil {
		return fmt.Errorf("restore %s: %w", ref.FilePath, err)
	}
	// WriteFile only applies the mode on create.
	if err := os.Chmod(ref.FilePath, ref.Mode); err != nil {
		return fmt.Errorf("restore mode on %s: %w", ref.FilePath, err)
	}

	m.logger.Info("rolled back file",
		zap.String("execution_id", ref.ExecutionID),
		zap.String("file", ref.FilePath),
	)
	return nil
}

// RollbackAll restores every backup created during a workflow execution,
// in reverse creation order. Individual failures do not abort the replay;
// the failed subset is reported.
func (m *Manager) RollbackAll(executionID string) (*RollbackReport, error) {
	refs, err := m.Ledger(executionID)
	if err != nil {
		return nil, err
	}

	report := &RollbackReport{ExecutionID: executionID}
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		if err := m.Rollback(&ref); err != nil {
			m.logger.Warn("rollback failed",
				zap.String("execution_id", executionID),
				zap.String("file", ref.FilePath),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, RollbackFailure{Ref: ref, Error: err.Error()})
			continue
		}
		report.Restored = append(report.Restored, ref)
	}
	return report, nil
}

// Ledger returns the refs recorded for an execution, in creation order.
// An execution with no backups yields an empty ledger, not an error.
func (m *Manager) Ledger(executionID string) ([]Ref, error) {
	f, err := os.Open(m.ledgerPath(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var refs []Ref
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ref Ref
		if err := json.Unmarshal(scanner.Bytes(), &ref); err != nil {
			return nil, fmt.Errorf("decode ledger entry: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return refs, nil
}

// Sweep removes ledgers older than maxAge and any objects no remaining
// ledger references. Returns the number of ledgers removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := timeNow().Add(-maxAge)

	ledgers, err := os.ReadDir(m.ledgersDir)
	if err != nil {
		return 0, fmt.Errorf("list ledgers: %w", err)
	}

	removed := 0
	referenced := make(map[string]bool)
	for _, entry := range ledgers {
		path := filepath.Join(m.ledgersDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
			continue
		}

		execID := entry.Name()[:len(entry.Name())-len(filepath.Ext(entry.Name()))]
		refs, err := m.Ledger(execID)
		if err != nil {
			continue
		}
		for _, ref := range refs {
			referenced[ref.Digest] = true
		}
	}

	objects, err := os.ReadDir(m.objectsDir)
	if err != nil {
		return removed, fmt.Errorf("list objects: %w", err)
	}
	for _, entry := range objects {
		if !referenced[entry.Name()] {
			_ = os.Remove(filepath.Join(m.objectsDir, entry.Name()))
		}
	}

	return removed, nil
}

// writeObject stores content under its digest. Objects are immutable, so
// an existing object is reused rather than rewritten.
func (m *Manager) writeObject(digest string, content []byte) error {
	path := m.objectPath(digest)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(m.objectsDir, "obj-*")
	if err != nil {
		return fmt.Errorf("create backup object: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write backup object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close backup object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize backup object: %w", err)
	}
	return nil
}

func (m *Manager) appendLedger(ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}

	f, err := os.OpenFile(m.ledgerPath(ref.ExecutionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

func (m *Manager) objectPath(digest string) string {
	return filepath.Join(m.objectsDir, digest)
}

func (m *Manager) ledgerPath(executionID string) string {
	return filepath.Join(m.ledgersDir, executionID+".jsonl")
}
