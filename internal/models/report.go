package models

import "time"

// IngestSummary counts what the ingest phase pulled in.
type IngestSummary struct {
	CryptoQuotes   int     `json:"crypto_quotes"`
	StockQuotes    int     `json:"stock_quotes"`
	Indicators     int     `json:"indicators"`
	TrendingNews   int     `json:"trending_news"`
	SentimentScore float64 `json:"sentiment_score"`
}

// AnalyzeSummary counts the signals produced by the analyze phase.
type AnalyzeSummary struct {
	PatternsDetected  int `json:"patterns_detected"`
	CorrelationsFound int `json:"correlations_found"`
	EventsStored      int `json:"events_stored"`
}

// PredictSummary records scoring and routing results.
type PredictSummary struct {
	OpportunitiesFound int      `json:"opportunities_found"`
	TopScore           float64  `json:"top_score"`
	Decision           Decision `json:"decision"`
}

// ExecuteSummary records whether the cycle traded and alerted.
type ExecuteSummary struct {
	Traded  bool         `json:"traded"`
	Trade   *TradeResult `json:"trade,omitempty"`
	Alerted bool         `json:"alerted"`
}

// LearnSummary records the accounting outcome of the cycle.
type LearnSummary struct {
	PnLUpdated bool    `json:"pnl_updated"`
	CyclePnL   float64 `json:"cycle_pnl"`
	TotalPnL   float64 `json:"total_pnl"`
}

// CycleReport is the structured record of one full cycle. Reports are
// append-only and held in a capped ring buffer, oldest evicted first.
type CycleReport struct {
	Cycle       int           `json:"cycle"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	Ingest  IngestSummary  `json:"ingest"`
	Analyze AnalyzeSummary `json:"analyze"`
	Predict PredictSummary `json:"predict"`
	Execute ExecuteSummary `json:"execute"`
	Learn   LearnSummary   `json:"learn"`

	Errors []string `json:"errors,omitempty"`
}
