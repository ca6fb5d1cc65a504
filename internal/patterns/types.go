package patterns

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Common errors for pattern store operations.
var (
	// ErrNotFound indicates the key has no stored pattern.
	ErrNotFound = errors.New("pattern not found")

	// ErrUnavailable indicates the backing store cannot be reached.
	// Callers must treat patterns as advisory and proceed with default
	// behavior rather than fail the workflow.
	ErrUnavailable = errors.New("pattern store unavailable")

	// ErrUnredactable indicates a payload contained sensitive content that
	// could not be safely redacted; the write is rejected.
	ErrUnredactable = errors.New("payload cannot be safely redacted")
)

// Pattern is a learned, anonymized unit of team/code behavior.
type Pattern struct {
	// Type categorizes the pattern (e.g. "fix-outcome", "issue-frequency").
	Type string `json:"type"`

	// Payload is the pattern content. Never contains raw secret-like
	// substrings; anonymization runs before the first write.
	Payload string `json:"payload"`

	// Confidence is a [0,1] score; it rises with corroborating frequency
	// and decays while the pattern goes unobserved.
	Confidence float64 `json:"confidence"`

	// Frequency counts corroborating observations.
	Frequency int `json:"frequency"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Anonymized records whether redaction altered the payload.
	Anonymized bool `json:"anonymized"`
}

// Key identifies a pattern by (repository, type, payload-hash).
type Key struct {
	Repository  string
	Type        string
	PayloadHash string
}

// NewKey builds a key for a payload. The payload must already be in its
// stored (anonymized) form so repeat observations hash identically.
func NewKey(repository, patternType, payload string) Key {
	sum := sha256.Sum256([]byte(payload))
	return Key{
		Repository:  identifier(repository),
		Type:        identifier(patternType),
		PayloadHash: hex.EncodeToString(sum[:])[:16],
	}
}

// String renders the key in its storage form.
func (k Key) String() string {
	return k.Repository + "/" + k.Type + "/" + k.PayloadHash
}

// KeyPrefix returns the scan prefix covering every pattern of the given
// type in a repository. An empty type covers the whole repository.
func KeyPrefix(repository, patternType string) string {
	if patternType == "" {
		return identifier(repository) + "/"
	}
	return identifier(repository) + "/" + identifier(patternType) + "/"
}

// ParseKey parses a storage-form key.
func ParseKey(s string) (Key, bool) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, false
	}
	return Key{Repository: parts[0], Type: parts[1], PayloadHash: parts[2]}, true
}

// ScanFunc receives patterns during a Scan. Returning false stops the scan.
type ScanFunc func(Key, Pattern) bool

// Store is the pattern store contract.
//
// All mutating operations are atomic per key: a read-modify-write never
// interleaves with a concurrent writer on the same key. Scan iterates a
// consistent snapshot; calling Scan again restarts the sequence.
type Store interface {
	// Put stores a pattern at key, replacing any existing value.
	Put(ctx context.Context, key Key, p Pattern) error

	// Get returns the pattern at key, or ErrNotFound.
	Get(ctx context.Context, key Key) (*Pattern, error)

	// Scan streams patterns whose storage key starts with prefix.
	Scan(ctx context.Context, prefix string, fn ScanFunc) error

	// IncrementFrequency atomically bumps frequency, stamps LastSeen, and
	// recomputes confidence. Returns the updated pattern.
	IncrementFrequency(ctx context.Context, key Key) (*Pattern, error)

	// Delete removes the pattern at key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key Key) error

	// Close releases store resources.
	Close() error
}

// identifier normalizes a key component to lowercase [a-z0-9_-.] so keys
// stay prefix-scannable regardless of how callers spell repository names.
func identifier(s string) string {
	if s == "" {
		return "default"
	}
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "default"
	}
	return out
}
