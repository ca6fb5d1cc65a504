package agents

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/patterns"
)

// predictionLimit caps how many rule predictions enter the state.
const predictionLimit = 10

// Predictor pre-ranks the rules most likely to need fixes, based on learned
// issue patterns. Its output is advisory: a missing or unavailable pattern
// store degrades to an empty prediction, never a step failure.
type Predictor struct {
	store  patterns.Store
	logger *zap.Logger
}

// NewPredictor creates the prediction agent.
func NewPredictor(store patterns.Store, logger *zap.Logger) *Predictor {
	return &Predictor{store: store, logger: logger}
}

func (p *Predictor) Name() string { return "predict" }

func (p *Predictor) Describe() string {
	return "rank rules likely to need fixes from learned patterns"
}

// Execute scans issue patterns for the repository and ranks rule payloads
// by confidence-weighted frequency.
func (p *Predictor) Execute(ctx context.Context, st State) (Output, error) {
	repository := RepositoryFrom(st)

	type ranked struct {
		payload string
		weight  float64
	}
	var candidates []ranked

	err := p.store.Scan(ctx, patterns.KeyPrefix(repository, "issue"), func(_ patterns.Key, pat patterns.Pattern) bool {
		candidates = append(candidates, ranked{
			payload: pat.Payload,
			weight:  pat.Confidence * float64(pat.Frequency),
		})
		return true
	})
	if err != nil {
		// Patterns are advisory; proceed unlearned.
		p.logger.Warn("pattern store unavailable, predictions skipped", zap.Error(err))
		return Output{
			Values:  map[string]any{KeyPredictions: []string(nil)},
			Summary: "pattern store unavailable, no predictions",
		}, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].weight > candidates[j].weight })
	if len(candidates) > predictionLimit {
		candidates = candidates[:predictionLimit]
	}

	predicted := make([]string, len(candidates))
	for i, c := range candidates {
		predicted[i] = c.payload
	}

	return Output{
		Values:  map[string]any{KeyPredictions: predicted},
		Summary: fmt.Sprintf("predicted %d rules", len(predicted)),
	}, nil
}
