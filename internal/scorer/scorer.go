// Package scorer provides the opportunity scoring collaborator: a weighted
// heuristic standing in for a fine-tuned prediction model.
package scorer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"arbagent/internal/models"
)

// Features are the inputs the model scores an opportunity on.
type Features struct {
	SpreadPct      float64
	SentimentScore float64
	Correlations   []models.CorrelationEntry
	Patterns       []models.VisualPattern
}

// NoiseFunc supplies the stochastic component of a score. Injectable so
// tests can pin scores exactly.
type NoiseFunc func() float64

// Model scores opportunities with a weighted heuristic.
type Model struct {
	mu    sync.Mutex
	noise NoiseFunc
}

// NewModel creates a model with uniform noise in [-0.05, 0.05].
// seed 0 uses the current time.
func NewModel(seed int64) *Model {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Model{noise: func() float64 { return (rng.Float64() - 0.5) * 0.1 }}
}

// NewDeterministicModel creates a model with the given noise function,
// nil for none.
func NewDeterministicModel(noise NoiseFunc) *Model {
	if noise == nil {
		noise = func() float64 { return 0 }
	}
	return &Model{noise: noise}
}

// Name implements the integration lifecycle contract.
func (m *Model) Name() string { return "scorer" }

func (m *Model) Initialize(ctx context.Context) error  { return nil }
func (m *Model) HealthCheck(ctx context.Context) error { return nil }
func (m *Model) Shutdown(ctx context.Context) error    { return nil }

// Predict returns the success probability of an opportunity in [0, 1].
// Weights: spread up to 0.4, positive sentiment up to 0.3, correlation
// support up to 0.2, plus bounded noise.
func (m *Model) Predict(ctx context.Context, feats Features, agentContext map[string]any) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	base := math.Min(math.Abs(feats.SpreadPct)/10.0, 0.4)
	sentimentBonus := math.Max(feats.SentimentScore*0.3, 0)
	correlationBonus := math.Min(float64(len(feats.Correlations))*0.05, 0.2)

	m.mu.Lock()
	n := m.noise()
	m.mu.Unlock()

	score := base + sentimentBonus + correlationBonus + n
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*10000) / 10000, nil
}

// Status describes the mock model for the status surface.
type Status struct {
	ModelID         string  `json:"model_id"`
	Version         string  `json:"version"`
	Accuracy        float64 `json:"accuracy"`
	F1Score         float64 `json:"f1_score"`
	TrainingSamples int     `json:"training_samples"`
}

// GetStatus reports model metadata.
func (m *Model) GetStatus() Status {
	return Status{
		ModelID:         "arbitrage-predictor-v1",
		Version:         "v0.1-sim",
		Accuracy:        0.73,
		F1Score:         0.68,
		TrainingSamples: 1245,
	}
}
