package patterns

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/secrets"
)

// SanitizingStore wraps a Store and anonymizes every payload before it is
// written. This is the only Store implementation agents should hold; the
// anonymization invariant is enforced here, not left to callers.
type SanitizingStore struct {
	inner    Store
	scrubber secrets.Scrubber
	logger   *zap.Logger
}

// NewSanitizingStore wraps inner with payload anonymization.
func NewSanitizingStore(inner Store, scrubber secrets.Scrubber, logger *zap.Logger) *SanitizingStore {
	return &SanitizingStore{inner: inner, scrubber: scrubber, logger: logger}
}

// Put anonymizes the payload, then stores the pattern. The write is
// rejected with ErrUnredactable when redaction cannot fully mask the
// sensitive content.
func (s *SanitizingStore) Put(ctx context.Context, key Key, p Pattern) error {
	scrubbed, anonymized, err := s.anonymize(p.Payload)
	if err != nil {
		return err
	}
	p.Payload = scrubbed
	p.Anonymized = p.Anonymized || anonymized
	return s.inner.Put(ctx, key, p)
}

// Get delegates to the wrapped store.
func (s *SanitizingStore) Get(ctx context.Context, key Key) (*Pattern, error) {
	return s.inner.Get(ctx, key)
}

// Scan delegates to the wrapped store.
func (s *SanitizingStore) Scan(ctx context.Context, prefix string, fn ScanFunc) error {
	return s.inner.Scan(ctx, prefix, fn)
}

// IncrementFrequency delegates to the wrapped store.
func (s *SanitizingStore) IncrementFrequency(ctx context.Context, key Key) (*Pattern, error) {
	return s.inner.IncrementFrequency(ctx, key)
}

// Delete delegates to the wrapped store.
func (s *SanitizingStore) Delete(ctx context.Context, key Key) error {
	return s.inner.Delete(ctx, key)
}

// Close delegates to the wrapped store.
func (s *SanitizingStore) Close() error {
	return s.inner.Close()
}

// Record observes a payload: the payload is anonymized, keyed by its
// anonymized form, and either inserted fresh or corroborated with a
// frequency increment. Returns the key and the stored pattern.
func (s *SanitizingStore) Record(ctx context.Context, repository, patternType, payload string) (Key, *Pattern, error) {
	scrubbed, anonymized, err := s.anonymize(payload)
	if err != nil {
		return Key{}, nil, err
	}

	// Key from the anonymized form so repeat observations of the same
	// secret-bearing payload corroborate one pattern.
	key := NewKey(repository, patternType, scrubbed)

	if p, err := s.inner.IncrementFrequency(ctx, key); err == nil {
		return key, p, nil
	} else if !errors.Is(err, ErrNotFound) {
		return key, nil, err
	}

	now := timeNow()
	p := Pattern{
		Type:       patternType,
		Payload:    scrubbed,
		Frequency:  1,
		FirstSeen:  now,
		LastSeen:   now,
		Anonymized: anonymized,
	}
	Rescore(&p)
	if err := s.inner.Put(ctx, key, p); err != nil {
		return key, nil, err
	}
	return key, &p, nil
}

// anonymize scrubs the payload and verifies the result is clean. A second
// detection pass over the scrubbed output catches the case where redaction
// would alter structural meaning instead of masking the match.
func (s *SanitizingStore) anonymize(payload string) (scrubbed string, anonymized bool, err error) {
	result := s.scrubber.Scrub(payload)
	if !result.HasFindings() {
		return payload, false, nil
	}

	verify := s.scrubber.Check(result.Scrubbed)
	if verify.HasFindings() {
		return "", false, fmt.Errorf("%w: rules %v still match after redaction", ErrUnredactable, verify.RuleIDs())
	}

	if s.logger != nil {
		s.logger.Debug("anonymized pattern payload",
			zap.Int("findings", result.TotalFindings),
			zap.Strings("rules", result.RuleIDs()),
		)
	}
	return result.Scrubbed, true, nil
}
