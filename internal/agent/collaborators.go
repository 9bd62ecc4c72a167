package agent

import (
	"context"

	"arbagent/internal/models"
	"arbagent/internal/router"
	"arbagent/internal/scorer"
)

// Integration is the common lifecycle contract collaborators may implement.
// Lifecycle failures degrade the collaborator, they never abort the agent.
type Integration interface {
	Name() string
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// MarketDataSource supplies quotes and the account snapshot.
type MarketDataSource interface {
	Quote(ctx context.Context, symbol string, class models.AssetClass) (models.MarketQuote, error)
	Portfolio(ctx context.Context) (models.PortfolioSnapshot, error)
}

// SentimentSource supplies sentiment readings and trending news.
type SentimentSource interface {
	Sentiment(ctx context.Context, topic string) (models.SentimentReading, error)
	TrendingNews(ctx context.Context, category string) ([]models.NewsItem, error)
}

// IndicatorSource supplies external indicator batches.
type IndicatorSource interface {
	LatestIndicators(ctx context.Context, stream string) ([]models.IndicatorRecord, error)
}

// PatternAnalyzer reads chart patterns for a symbol.
type PatternAnalyzer interface {
	AnalyzeChart(ctx context.Context, symbol, timeframe string) (models.VisualPattern, error)
}

// CorrelationStore persists events and serves historical correlations.
type CorrelationStore interface {
	FindCorrelations(ctx context.Context, eventType, symbol string, lookbackDays int) ([]models.CorrelationEntry, error)
	StoreEvent(ctx context.Context, eventType string, payload any) (string, error)
	RecordTradeOutcome(ctx context.Context, tradeID string, pnl float64, success bool) error
}

// Scorer predicts the success probability of an opportunity.
type Scorer interface {
	Predict(ctx context.Context, feats scorer.Features, agentContext map[string]any) (float64, error)
}

// DecisionRouter maps a scored candidate to an action.
type DecisionRouter interface {
	Decide(ctx context.Context, dc router.Context) (models.Decision, error)
	RouteData(dataType string) router.Route
}

// Alerter delivers out-of-band alerts.
type Alerter interface {
	SendAlert(ctx context.Context, message, severity, opportunityID string) (models.AlertRecord, error)
}

// Ledger records executed trades and realized P&L.
type Ledger interface {
	LogTrade(ctx context.Context, trade models.TradeResult) error
	RecordPnL(ctx context.Context, rec models.PnLRecord) error
}

// Collaborators bundles every capability the orchestrator depends on.
// Each field is substitutable with a fake in tests.
type Collaborators struct {
	Market     MarketDataSource
	Sentiment  SentimentSource
	Indicators IndicatorSource
	Vision     PatternAnalyzer
	Graph      CorrelationStore
	Scorer     Scorer
	Router     DecisionRouter
	Alerter    Alerter
	Ledger     Ledger
}

// integrations returns the collaborators that implement the lifecycle
// contract, keyed by their stable slot name.
func (c Collaborators) integrations() map[string]Integration {
	out := make(map[string]Integration)
	add := func(slot string, v any) {
		if in, ok := v.(Integration); ok && in != nil {
			out[slot] = in
		}
	}
	add("marketdata", c.Market)
	add("sentiment", c.Sentiment)
	add("indicators", c.Indicators)
	add("vision", c.Vision)
	add("graphstore", c.Graph)
	add("scorer", c.Scorer)
	add("router", c.Router)
	add("alerter", c.Alerter)
	add("ledger", c.Ledger)
	return out
}
