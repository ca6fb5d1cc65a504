package patterns

import (
	"math"
	"time"
)

// Confidence model parameters.
const (
	// decayGrace is how long a pattern may go unobserved before its
	// confidence starts to decay.
	decayGrace = 7 * 24 * time.Hour

	// decayHalfLife halves the confidence of an unobserved pattern.
	decayHalfLife = 30 * 24 * time.Hour
)

// ComputeConfidence recalculates a pattern's confidence from its frequency,
// observation consistency, and idle time.
//
// The base score follows a Beta-style mean: starting from a uniform prior,
// each corroborating observation adds weight proportional to consistency.
// With perfect consistency the score rises monotonically toward 1.0 as
// frequency grows; it never reaches it. Once a pattern goes unobserved past
// the grace window the score halves every decayHalfLife.
func ComputeConfidence(frequency int, consistency float64, idle time.Duration) float64 {
	if frequency <= 0 {
		return 0
	}
	consistency = clamp01(consistency)

	alpha := 1.0 + float64(frequency)*consistency
	beta := 1.0 + float64(frequency)*(1.0-consistency)
	score := alpha / (alpha + beta)

	if idle > decayGrace {
		excess := idle - decayGrace
		score *= math.Exp2(-excess.Hours() / decayHalfLife.Hours())
	}

	return clamp01(score)
}

// Consistency derives observation regularity from a pattern's history:
// a pattern corroborated at least daily over its lifetime scores 1.0, one
// observed twice across a month scores far lower.
func Consistency(frequency int, firstSeen, lastSeen time.Time) float64 {
	if frequency <= 1 {
		return 1.0
	}
	spanDays := lastSeen.Sub(firstSeen).Hours() / 24
	if spanDays <= 0 {
		return 1.0
	}
	return clamp01(float64(frequency) / (spanDays + 1))
}

// Rescore updates a pattern's confidence in place using the current time.
func Rescore(p *Pattern) {
	now := timeNow()
	consistency := Consistency(p.Frequency, p.FirstSeen, p.LastSeen)
	p.Confidence = ComputeConfidence(p.Frequency, consistency, now.Sub(p.LastSeen))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
