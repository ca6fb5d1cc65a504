package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeConfidenceMonotonicInFrequency(t *testing.T) {
	prev := 0.0
	for freq := 1; freq <= 100; freq++ {
		c := ComputeConfidence(freq, 1.0, 0)
		assert.Greater(t, c, prev, "confidence must rise with frequency (freq=%d)", freq)
		assert.LessOrEqual(t, c, 1.0)
		prev = c
	}
}

func TestComputeConfidenceZeroFrequency(t *testing.T) {
	assert.Equal(t, 0.0, ComputeConfidence(0, 1.0, 0))
	assert.Equal(t, 0.0, ComputeConfidence(-1, 1.0, 0))
}

func TestComputeConfidenceDecay(t *testing.T) {
	fresh := ComputeConfidence(20, 1.0, 0)
	inGrace := ComputeConfidence(20, 1.0, decayGrace-time.Hour)
	assert.Equal(t, fresh, inGrace, "no decay inside the grace window")

	stale := ComputeConfidence(20, 1.0, decayGrace+decayHalfLife)
	assert.InDelta(t, fresh/2, stale, 0.001, "one half-life past grace halves the score")

	ancient := ComputeConfidence(20, 1.0, decayGrace+10*decayHalfLife)
	assert.Less(t, ancient, 0.01)
}

func TestComputeConfidenceConsistencyWeight(t *testing.T) {
	steady := ComputeConfidence(10, 1.0, 0)
	erratic := ComputeConfidence(10, 0.2, 0)
	assert.Greater(t, steady, erratic)
}

func TestConsistency(t *testing.T) {
	now := time.Now()

	// Single observation: nothing to be inconsistent about.
	assert.Equal(t, 1.0, Consistency(1, now, now))

	// Daily observations over ten days.
	daily := Consistency(11, now.Add(-10*24*time.Hour), now)
	assert.Equal(t, 1.0, daily)

	// Two observations a month apart.
	sparse := Consistency(2, now.Add(-30*24*time.Hour), now)
	assert.Less(t, sparse, 0.1)
}

func TestRescore(t *testing.T) {
	defer func() { timeNow = time.Now }()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return base }

	p := Pattern{Frequency: 5, FirstSeen: base.Add(-4 * 24 * time.Hour), LastSeen: base}
	Rescore(&p)
	assert.Greater(t, p.Confidence, 0.5)
	assert.LessOrEqual(t, p.Confidence, 1.0)
}
