// Package sentiment provides the sentiment and trending-news collaborator.
// It returns canned readings with light seeded variation, mirroring the
// upstream search API's offline mode.
package sentiment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"arbagent/internal/models"
)

// Source serves simulated sentiment readings and trending news.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource creates a simulated source. seed 0 uses the current time.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Name implements the integration lifecycle contract.
func (s *Source) Name() string { return "sentiment" }

func (s *Source) Initialize(ctx context.Context) error  { return nil }
func (s *Source) HealthCheck(ctx context.Context) error { return nil }
func (s *Source) Shutdown(ctx context.Context) error    { return nil }

// Sentiment returns the current reading for a topic. The score hovers mildly
// around a positive baseline so downstream scoring sees realistic variation.
func (s *Source) Sentiment(ctx context.Context, topic string) (models.SentimentReading, error) {
	if err := ctx.Err(); err != nil {
		return models.SentimentReading{}, err
	}
	s.mu.Lock()
	jitter := (s.rng.Float64() - 0.5) * 0.2
	s.mu.Unlock()

	score := clamp(0.65+jitter, -1, 1)
	return models.SentimentReading{
		Query:      topic,
		Score:      score,
		Confidence: 0.82,
		Sources: []string{
			"https://mock.search/1",
			"https://mock.search/2",
			"https://mock.search/3",
		},
		Summary:   fmt.Sprintf("Overall positive sentiment detected for %s", topic),
		Timestamp: time.Now(),
	}, nil
}

// TrendingNews returns canned trending headlines for a category.
func (s *Source) TrendingNews(ctx context.Context, category string) ([]models.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	return []models.NewsItem{
		{Title: "Bitcoin ETF inflows reach record $2.1B", Source: category, PublishedAt: now.Add(-1 * time.Hour)},
		{Title: "Fed signals potential rate pause", Source: "macro", PublishedAt: now.Add(-3 * time.Hour)},
		{Title: "Ethereum upgrade drives DeFi surge", Source: category, PublishedAt: now.Add(-5 * time.Hour)},
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
