// Package vision provides the chart pattern analyzer collaborator, returning
// simulated pattern detections in the upstream vision API's offline mode.
package vision

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"arbagent/internal/models"
)

var patternTypes = []string{
	"bullish_engulfing",
	"double_bottom",
	"support_bounce",
	"volume_spike",
	"ascending_triangle",
}

// Analyzer serves simulated chart pattern reads.
type Analyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAnalyzer creates a simulated analyzer. seed 0 uses the current time.
func NewAnalyzer(seed int64) *Analyzer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Analyzer{rng: rand.New(rand.NewSource(seed))}
}

// Name implements the integration lifecycle contract.
func (a *Analyzer) Name() string { return "vision" }

func (a *Analyzer) Initialize(ctx context.Context) error  { return nil }
func (a *Analyzer) HealthCheck(ctx context.Context) error { return nil }
func (a *Analyzer) Shutdown(ctx context.Context) error    { return nil }

// AnalyzeChart returns a simulated pattern read for a symbol and timeframe.
func (a *Analyzer) AnalyzeChart(ctx context.Context, symbol, timeframe string) (models.VisualPattern, error) {
	if err := ctx.Err(); err != nil {
		return models.VisualPattern{}, err
	}
	a.mu.Lock()
	pattern := patternTypes[a.rng.Intn(len(patternTypes))]
	confidence := 0.7 + a.rng.Float64()*0.25
	a.mu.Unlock()

	return models.VisualPattern{
		PatternType: pattern,
		Symbol:      symbol,
		Confidence:  confidence,
		Description: fmt.Sprintf("Detected %s pattern on %s %s chart with volume confirmation", pattern, symbol, timeframe),
		Timestamp:   time.Now(),
	}, nil
}
