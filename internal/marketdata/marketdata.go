// Package marketdata provides the market data source collaborator. Without
// brokerage credentials it simulates quotes as a seeded random walk around
// fixed reference prices, which keeps the pipeline fully runnable offline.
package marketdata

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"arbagent/internal/models"
)

var cryptoReference = map[string]float64{
	"BTC":  97250.00,
	"ETH":  3420.50,
	"DOGE": 0.245,
	"SOL":  195.30,
}

var stockReference = map[string]float64{
	"AAPL": 245.80,
	"TSLA": 342.15,
	"NVDA": 875.60,
	"SPY":  520.30,
	"DJT":  32.50,
}

// Source serves simulated quotes and a canned portfolio snapshot.
type Source struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	ready  bool
}

// NewSource creates a simulated source. seed 0 uses the current time.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
	}
}

// Name implements the integration lifecycle contract.
func (s *Source) Name() string { return "marketdata" }

// Initialize seeds the walk from the reference price table.
func (s *Source) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, p := range cryptoReference {
		s.prices[sym] = p
	}
	for sym, p := range stockReference {
		s.prices[sym] = p
	}
	s.ready = true
	return nil
}

// HealthCheck reports readiness.
func (s *Source) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return fmt.Errorf("marketdata source not initialized")
	}
	return nil
}

// Shutdown releases nothing; the simulated source holds no connections.
func (s *Source) Shutdown(ctx context.Context) error { return nil }

// Quote returns the current quote for symbol. Crypto quotes carry both bid
// and ask; stock quotes are last-price only, matching the upstream feed.
func (s *Source) Quote(ctx context.Context, symbol string, class models.AssetClass) (models.MarketQuote, error) {
	if err := ctx.Err(); err != nil {
		return models.MarketQuote{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		if class == models.AssetCrypto {
			price = 100.0
		} else {
			price = 150.0
		}
	}

	// Random walk: ±0.5% per poll.
	price *= 1 + (s.rng.Float64()-0.5)*0.01
	s.prices[symbol] = price

	q := models.MarketQuote{
		Symbol:     symbol,
		AssetClass: class,
		Price:      price,
		Source:     "sim",
		Timestamp:  time.Now(),
	}
	if class == models.AssetCrypto {
		q.Bid = price * 0.999
		q.Ask = price * 1.001
		q.Volume = 1000 + s.rng.Float64()*9000
	}
	return q, nil
}

// Portfolio returns a canned account snapshot.
func (s *Source) Portfolio(ctx context.Context) (models.PortfolioSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.PortfolioSnapshot{}, err
	}
	return models.PortfolioSnapshot{
		TotalValue: 25430.50,
		Cash:       5200.00,
		Positions: []models.PortfolioPosition{
			{Symbol: "AAPL", AssetClass: models.AssetStock, Quantity: 10, Value: 2400.00},
			{Symbol: "NVDA", AssetClass: models.AssetStock, Quantity: 5, Value: 4250.00},
			{Symbol: "BTC", AssetClass: models.AssetCrypto, Quantity: 0.15, Value: 13800.00},
			{Symbol: "ETH", AssetClass: models.AssetCrypto, Quantity: 2.5, Value: 8000.00},
		},
		Timestamp: time.Now(),
	}, nil
}
