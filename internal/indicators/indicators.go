// Package indicators provides the external indicator feed collaborator,
// serving the latest batch of canned macro readings.
package indicators

import (
	"context"
	"time"

	"arbagent/internal/models"
)

// Feed serves canned economic indicator batches.
type Feed struct{}

// NewFeed creates the indicator feed.
func NewFeed() *Feed { return &Feed{} }

// Name implements the integration lifecycle contract.
func (f *Feed) Name() string { return "indicators" }

func (f *Feed) Initialize(ctx context.Context) error  { return nil }
func (f *Feed) HealthCheck(ctx context.Context) error { return nil }
func (f *Feed) Shutdown(ctx context.Context) error    { return nil }

// LatestIndicators returns the most recent records from the named stream.
func (f *Feed) LatestIndicators(ctx context.Context, stream string) ([]models.IndicatorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	return []models.IndicatorRecord{
		{Stream: stream, Name: "cpi", Value: 3.2, ObservedAt: now.AddDate(0, 0, -20)},
		{Stream: stream, Name: "unemployment_rate", Value: 4.1, ObservedAt: now.AddDate(0, 0, -20)},
		{Stream: stream, Name: "fed_funds_rate", Value: 4.75, ObservedAt: now.AddDate(0, 0, -20)},
		{Stream: stream, Name: "gdp_growth", Value: 2.8, ObservedAt: now.AddDate(0, 0, -50)},
	}, nil
}
