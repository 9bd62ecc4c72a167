// Package models defines the core domain entities: quotes, signals,
// opportunities, trades, and P&L records passed between cycle phases.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetClass distinguishes the two watchlist universes.
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetCrypto AssetClass = "crypto"
)

// MarketQuote is a point-in-time quote snapshot for a single asset.
// Created fresh on every ingest, never mutated.
type MarketQuote struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	Price      float64    `json:"price"`
	Bid        float64    `json:"bid,omitempty"`
	Ask        float64    `json:"ask,omitempty"`
	Volume     float64    `json:"volume,omitempty"`
	Source     string     `json:"source"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HasSpread reports whether the quote carries both sides of the book.
func (q *MarketQuote) HasSpread() bool {
	return q.Bid > 0 && q.Ask > 0
}

// SpreadPct returns (ask-bid)/bid as a percentage, 0 without both sides.
func (q *MarketQuote) SpreadPct() float64 {
	if !q.HasSpread() {
		return 0
	}
	return (q.Ask - q.Bid) / q.Bid * 100
}

// Validate checks quote field constraints.
func (q *MarketQuote) Validate() error {
	if q.Symbol == "" {
		return errors.New("quote symbol must not be empty")
	}
	if q.AssetClass != AssetStock && q.AssetClass != AssetCrypto {
		return fmt.Errorf("unknown asset class: %q", q.AssetClass)
	}
	if q.Price <= 0 {
		return errors.New("quote price must be positive")
	}
	if q.Bid < 0 || q.Ask < 0 {
		return errors.New("bid and ask must not be negative")
	}
	if q.Bid > 0 && q.Ask > 0 && q.Ask < q.Bid {
		return fmt.Errorf("crossed book: ask %.4f < bid %.4f", q.Ask, q.Bid)
	}
	if q.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	return nil
}

// SentimentReading is an aggregated sentiment signal for a query topic.
type SentimentReading struct {
	Query      string    `json:"query"`
	Score      float64   `json:"score"`      // [-1, 1]
	Confidence float64   `json:"confidence"` // [0, 1]
	Sources    []string  `json:"sources,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewsItem is one trending headline returned by the sentiment source.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// VisualPattern is a chart pattern detected by the image analyzer.
type VisualPattern struct {
	PatternType string    `json:"pattern_type"`
	Symbol      string    `json:"symbol"`
	Confidence  float64   `json:"confidence"` // [0, 1]
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IndicatorRecord is one row from an external indicator feed.
type IndicatorRecord struct {
	Stream     string    `json:"stream"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// CorrelationEntry is one historical correlation returned by the graph store.
type CorrelationEntry struct {
	Event      string    `json:"event"`
	Symbol     string    `json:"symbol"`
	Strength   float64   `json:"strength"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Opportunity status tags.
const (
	OpportunityDetected = "detected"
	OpportunityExecuted = "executed"
	OpportunityExpired  = "expired"
)

// Thresholds for the derived opportunity predicates.
const (
	ActionableScore  = 0.75
	AnomalyScore     = 0.95
	AnomalySpreadPct = 5.0
)

// ArbitrageOpportunity is a candidate mismatched-price signal. Created once
// per qualifying symbol per cycle, never mutated after creation.
type ArbitrageOpportunity struct {
	ID             string             `json:"id"`
	BuyAsset       string             `json:"buy_asset"`
	SellAsset      string             `json:"sell_asset"`
	BuyPrice       float64            `json:"buy_price"`
	SellPrice      float64            `json:"sell_price"`
	SpreadPct      float64            `json:"spread_pct"`
	PredictedScore float64            `json:"predicted_score"` // [0, 1]
	SentimentScore float64            `json:"sentiment_score"` // [-1, 1]
	VisualPatterns []VisualPattern    `json:"visual_patterns,omitempty"`
	Correlations   []string           `json:"correlations,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	Status         string             `json:"status"`
}

// NewOpportunityID returns a fresh unique opportunity identifier.
func NewOpportunityID() string {
	return uuid.New().String()
}

// Actionable reports whether the predicted score clears the execution bar.
func (o *ArbitrageOpportunity) Actionable() bool {
	return o.PredictedScore >= ActionableScore
}

// Anomaly reports whether the opportunity warrants an out-of-band alert.
func (o *ArbitrageOpportunity) Anomaly() bool {
	return o.PredictedScore >= AnomalyScore || o.SpreadPct > AnomalySpreadPct || o.SpreadPct < -AnomalySpreadPct
}

// Validate checks opportunity field constraints.
func (o *ArbitrageOpportunity) Validate() error {
	if o.ID == "" {
		return errors.New("opportunity ID must not be empty")
	}
	if o.BuyAsset == "" || o.SellAsset == "" {
		return errors.New("buy and sell assets must not be empty")
	}
	if o.BuyPrice <= 0 || o.SellPrice <= 0 {
		return errors.New("buy and sell prices must be positive")
	}
	if o.PredictedScore < 0 || o.PredictedScore > 1 {
		return errors.New("predicted score must be between 0.0 and 1.0")
	}
	if o.SentimentScore < -1 || o.SentimentScore > 1 {
		return errors.New("sentiment score must be between -1.0 and 1.0")
	}
	return nil
}

// TradeAction is the direction of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
	ActionHold TradeAction = "hold"
)

// TradeResult records one simulated or live trade execution. At most one is
// produced per cycle; immutable once created.
type TradeResult struct {
	OpportunityID string      `json:"opportunity_id"`
	Action        TradeAction `json:"action"`
	Asset         string      `json:"asset"`
	Quantity      float64     `json:"quantity"`
	Price         float64     `json:"price"`
	Simulated     bool        `json:"simulated"`
	ExecutedAt    time.Time   `json:"executed_at"`
	OrderID       string      `json:"order_id,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// PnLRecord is the realized profit/loss for one completed trade cycle.
type PnLRecord struct {
	TradeID       string    `json:"trade_id"`
	OpportunityID string    `json:"opportunity_id"`
	EntryPrice    float64   `json:"entry_price"`
	ExitPrice     float64   `json:"exit_price"`
	Quantity      float64   `json:"quantity"`
	PnL           float64   `json:"pnl"`
	PnLPct        float64   `json:"pnl_pct"`
	Asset         string    `json:"asset"`
	RecordedAt    time.Time `json:"recorded_at"`
	FeedbackSent  bool      `json:"feedback_sent"`
}

// PortfolioPosition is one holding inside a portfolio snapshot.
type PortfolioPosition struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	Quantity   float64    `json:"quantity"`
	Value      float64    `json:"value"`
}

// PortfolioSnapshot is the account state as reported by the market source.
type PortfolioSnapshot struct {
	TotalValue float64             `json:"total_value"`
	Cash       float64             `json:"cash"`
	Positions  []PortfolioPosition `json:"positions"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Decision actions produced by the router.
const (
	DecideSkip            = "skip"
	DecideMonitor         = "monitor"
	DecideExecute         = "execute"
	DecideExecuteAndAlert = "execute_and_alert"
)

// Decision is the router's verdict on the top candidate of a cycle.
type Decision struct {
	Action  string `json:"action"`
	Urgency string `json:"urgency"`
	Reason  string `json:"reason"`
}

// ShouldExecute reports whether the decision calls for a trade.
func (d Decision) ShouldExecute() bool {
	return d.Action == DecideExecute || d.Action == DecideExecuteAndAlert
}

// SkipDecision is the default verdict when no candidate exists.
func SkipDecision(reason string) Decision {
	return Decision{Action: DecideSkip, Urgency: "low", Reason: reason}
}

// AlertRecord is one raised alert, kept by the alerter for inspection.
type AlertRecord struct {
	ID            string    `json:"id"`
	Message       string    `json:"message"`
	Severity      string    `json:"severity"`
	OpportunityID string    `json:"opportunity_id,omitempty"`
	SentAt        time.Time `json:"sent_at"`
	Delivered     bool      `json:"delivered"`
}
