package agent

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"arbagent/internal/models"
)

// PnLEstimator derives the realized P&L of a simulated trade. Injectable so
// tests can pin outcomes; a real accounting feed would slot in here.
type PnLEstimator interface {
	Estimate(trade models.TradeResult) float64
}

// simEstimator draws P&L uniformly from [-50, 150], rounded to cents.
type simEstimator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimEstimator creates the reference estimator. seed 0 uses the current time.
func NewSimEstimator(seed int64) PnLEstimator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &simEstimator{rng: rand.New(rand.NewSource(seed))}
}

func (e *simEstimator) Estimate(trade models.TradeResult) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	pnl := -50 + e.rng.Float64()*200
	return math.Round(pnl*100) / 100
}

// FixedEstimator always returns PnL. Test double.
type FixedEstimator struct {
	PnL float64
}

func (e FixedEstimator) Estimate(trade models.TradeResult) float64 {
	return e.PnL
}
