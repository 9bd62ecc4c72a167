package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"arbagent/internal/models"
	"arbagent/internal/router"
	"arbagent/internal/scorer"
)

type fakeMarket struct {
	mu       sync.Mutex
	quotes   map[string]models.MarketQuote
	err      error
	panicMsg string
}

func (f *fakeMarket) Quote(ctx context.Context, symbol string, class models.AssetClass) (models.MarketQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return models.MarketQuote{}, f.err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return models.MarketQuote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (f *fakeMarket) Portfolio(ctx context.Context) (models.PortfolioSnapshot, error) {
	return models.PortfolioSnapshot{TotalValue: 1000, Cash: 500, Timestamp: time.Now()}, nil
}

type fakeSentiment struct {
	mu    sync.Mutex
	score float64
	err   error
}

func (f *fakeSentiment) Sentiment(ctx context.Context, topic string) (models.SentimentReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.SentimentReading{}, f.err
	}
	return models.SentimentReading{Query: topic, Score: f.score, Confidence: 0.82, Timestamp: time.Now()}, nil
}

func (f *fakeSentiment) TrendingNews(ctx context.Context, category string) ([]models.NewsItem, error) {
	return []models.NewsItem{{Title: "headline", PublishedAt: time.Now()}}, nil
}

func (f *fakeSentiment) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeIndicators struct{}

func (fakeIndicators) LatestIndicators(ctx context.Context, stream string) ([]models.IndicatorRecord, error) {
	return []models.IndicatorRecord{{Stream: stream, Name: "cpi", Value: 3.2, ObservedAt: time.Now()}}, nil
}

type fakeVision struct {
	panicMsg string
}

func (f *fakeVision) AnalyzeChart(ctx context.Context, symbol, timeframe string) (models.VisualPattern, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return models.VisualPattern{PatternType: "double_bottom", Symbol: symbol, Confidence: 0.8, Timestamp: time.Now()}, nil
}

type fakeGraph struct {
	mu       sync.Mutex
	corrs    []models.CorrelationEntry
	events   []string
	outcomes []string
}

func (f *fakeGraph) FindCorrelations(ctx context.Context, eventType, symbol string, lookbackDays int) ([]models.CorrelationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CorrelationEntry(nil), f.corrs...), nil
}

func (f *fakeGraph) StoreEvent(ctx context.Context, eventType string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return fmt.Sprintf("evt-%d", len(f.events)), nil
}

func (f *fakeGraph) RecordTradeOutcome(ctx context.Context, tradeID string, pnl float64, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, tradeID)
	return nil
}

type fakeScorer struct {
	mu    sync.Mutex
	score float64
}

func (f *fakeScorer) Predict(ctx context.Context, feats scorer.Features, agentContext map[string]any) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.score, nil
}

func (f *fakeScorer) setScore(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.score = s
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []models.AlertRecord
}

func (f *fakeAlerter) SendAlert(ctx context.Context, message, severity, opportunityID string) (models.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := models.AlertRecord{
		ID: fmt.Sprintf("alert-%d", len(f.alerts)+1), Message: message,
		Severity: severity, OpportunityID: opportunityID, SentAt: time.Now(), Delivered: true,
	}
	f.alerts = append(f.alerts, rec)
	return rec, nil
}

func (f *fakeAlerter) sent() []models.AlertRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AlertRecord(nil), f.alerts...)
}

type fakeLedger struct {
	mu     sync.Mutex
	trades []models.TradeResult
	pnls   []models.PnLRecord
}

func (f *fakeLedger) LogTrade(ctx context.Context, trade models.TradeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeLedger) RecordPnL(ctx context.Context, rec models.PnLRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnls = append(f.pnls, rec)
	return nil
}

func cryptoQuote(symbol string, bid, ask float64) models.MarketQuote {
	return models.MarketQuote{
		Symbol: symbol, AssetClass: models.AssetCrypto,
		Price: (bid + ask) / 2, Bid: bid, Ask: ask,
		Source: "test", Timestamp: time.Now(),
	}
}

func stockQuote(symbol string, price float64) models.MarketQuote {
	return models.MarketQuote{
		Symbol: symbol, AssetClass: models.AssetStock,
		Price: price, Source: "test", Timestamp: time.Now(),
	}
}

type fixture struct {
	market    *fakeMarket
	sentiment *fakeSentiment
	vision    *fakeVision
	graph     *fakeGraph
	scorer    *fakeScorer
	alerter   *fakeAlerter
	ledger    *fakeLedger
	orch      *Orchestrator
}

func newFixture(t *testing.T, cfg Config, pnl float64) *fixture {
	t.Helper()
	if len(cfg.CryptoWatchlist) == 0 {
		cfg.CryptoWatchlist = []string{"BTC"}
	}
	if len(cfg.StockWatchlist) == 0 {
		cfg.StockWatchlist = []string{"AAPL"}
	}
	if cfg.PatternSymbols == 0 {
		cfg.PatternSymbols = 1
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = time.Second
	}
	if cfg.Seed == 0 {
		cfg.Seed = 7
	}

	f := &fixture{
		market:    &fakeMarket{quotes: map[string]models.MarketQuote{}},
		sentiment: &fakeSentiment{score: 0.65},
		vision:    &fakeVision{},
		graph: &fakeGraph{corrs: []models.CorrelationEntry{
			{Event: "fed_rate_decision", Symbol: "BTC", Strength: 0.82},
			{Event: "cpi_release", Symbol: "BTC", Strength: 0.67},
			{Event: "earnings_surprise", Symbol: "BTC", Strength: 0.74},
		}},
		scorer:  &fakeScorer{score: 0.8},
		alerter: &fakeAlerter{},
		ledger:  &fakeLedger{},
	}
	for _, s := range cfg.CryptoWatchlist {
		f.market.quotes[s] = cryptoQuote(s, 100, 100.2)
	}
	for _, s := range cfg.StockWatchlist {
		f.market.quotes[s] = stockQuote(s, 245.80)
	}

	f.orch = New(cfg, Collaborators{
		Market:     f.market,
		Sentiment:  f.sentiment,
		Indicators: fakeIndicators{},
		Vision:     f.vision,
		Graph:      f.graph,
		Scorer:     f.scorer,
		Router:     router.New(),
		Alerter:    f.alerter,
		Ledger:     f.ledger,
	}, FixedEstimator{PnL: pnl})
	return f
}

func runCycles(t *testing.T, o *Orchestrator, n int) []models.CycleReport {
	t.Helper()
	reports := make([]models.CycleReport, 0, n)
	for i := 0; i < n; i++ {
		r, err := o.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("cycle %d failed: %v", i+1, err)
		}
		reports = append(reports, r)
	}
	return reports
}

func TestRunCycleIncrementsCounter(t *testing.T) {
	f := newFixture(t, Config{}, 25)

	reports := runCycles(t, f.orch, 3)

	st := f.orch.GetState()
	if st.CycleCount != 3 {
		t.Fatalf("cycle count = %d, want 3", st.CycleCount)
	}
	for i, r := range reports {
		if r.Cycle != i+1 {
			t.Errorf("report %d cycle = %d, want %d", i, r.Cycle, i+1)
		}
	}
	if st.LastCycleAt == nil {
		t.Error("last cycle time not set")
	}
}

func TestRunCycleExecutesTrade(t *testing.T) {
	f := newFixture(t, Config{}, 25)

	report := runCycles(t, f.orch, 1)[0]

	if report.Predict.OpportunitiesFound != 1 {
		t.Fatalf("opportunities = %d, want 1", report.Predict.OpportunitiesFound)
	}
	if report.Predict.Decision.Action != models.DecideExecute {
		t.Fatalf("decision = %s, want %s", report.Predict.Decision.Action, models.DecideExecute)
	}
	if !report.Execute.Traded || report.Execute.Trade == nil {
		t.Fatal("expected a simulated trade")
	}
	trade := report.Execute.Trade
	if trade.Asset != "BTC" {
		t.Errorf("trade asset = %s, want BTC", trade.Asset)
	}
	if trade.Price != 100 {
		t.Errorf("trade price = %v, want bid 100", trade.Price)
	}
	if !trade.Simulated {
		t.Error("trade must be marked simulated")
	}
	if trade.Quantity < 0.01 || trade.Quantity > 0.1 {
		t.Errorf("trade quantity %v outside [0.01, 0.1]", trade.Quantity)
	}
	if report.Execute.Alerted {
		t.Error("score 0.8 with narrow spread must not alert")
	}
	if !report.Learn.PnLUpdated || report.Learn.CyclePnL != 25 {
		t.Errorf("learn summary = %+v, want pnl 25", report.Learn)
	}

	st := f.orch.GetState()
	if st.TradesExecuted != 1 {
		t.Errorf("trades executed = %d, want 1", st.TradesExecuted)
	}
	if st.TotalPnL != 25 {
		t.Errorf("total pnl = %v, want 25", st.TotalPnL)
	}
	if len(f.ledger.trades) != 1 || len(f.ledger.pnls) != 1 {
		t.Errorf("ledger got %d trades, %d pnl records, want 1 each", len(f.ledger.trades), len(f.ledger.pnls))
	}
	if got := f.ledger.pnls[0].TradeID; got != "sim-1" {
		t.Errorf("trade id = %q, want sim-1", got)
	}
	if got := f.ledger.trades[0].OrderID; got != "sim-1" {
		t.Errorf("logged trade order id = %q, want sim-1 to match the pnl record", got)
	}
	if len(f.graph.outcomes) != 1 {
		t.Errorf("graph outcomes = %d, want 1", len(f.graph.outcomes))
	}
}

func TestRunCycleAnomalyAlerts(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	f.scorer.setScore(0.96)

	report := runCycles(t, f.orch, 1)[0]

	if report.Predict.Decision.Action != models.DecideExecuteAndAlert {
		t.Fatalf("decision = %s, want %s", report.Predict.Decision.Action, models.DecideExecuteAndAlert)
	}
	if !report.Execute.Traded || !report.Execute.Alerted {
		t.Fatalf("expected trade and alert, got %+v", report.Execute)
	}
	alerts := f.alerter.sent()
	if len(alerts) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != "critical" {
		t.Errorf("alert severity = %s, want critical", alerts[0].Severity)
	}
	if !strings.Contains(alerts[0].Message, "ANOMALY DETECTED") {
		t.Errorf("alert message %q missing anomaly marker", alerts[0].Message)
	}
}

func TestRunCycleWideSpreadAlertsOnExecute(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	// Spread over 5% marks the opportunity anomalous even at a plain
	// execute score.
	f.market.quotes["BTC"] = cryptoQuote("BTC", 100, 106)
	f.scorer.setScore(0.8)

	report := runCycles(t, f.orch, 1)[0]

	if report.Predict.Decision.Action != models.DecideExecute {
		t.Fatalf("decision = %s, want %s", report.Predict.Decision.Action, models.DecideExecute)
	}
	if !report.Execute.Alerted {
		t.Error("anomalous spread must raise an alert")
	}
}

func TestRunCycleMonitorDoesNotTrade(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	f.scorer.setScore(0.6)

	report := runCycles(t, f.orch, 1)[0]

	if report.Predict.Decision.Action != models.DecideMonitor {
		t.Fatalf("decision = %s, want %s", report.Predict.Decision.Action, models.DecideMonitor)
	}
	if report.Execute.Traded {
		t.Error("monitor decision must not trade")
	}
	st := f.orch.GetState()
	if st.TradesExecuted != 0 || st.TotalPnL != 0 {
		t.Errorf("state after monitor cycle = trades %d pnl %v, want 0/0", st.TradesExecuted, st.TotalPnL)
	}
}

func TestRunCycleSkipsWithoutSpread(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	// One-sided book: no spread, no candidate.
	f.market.quotes["BTC"] = models.MarketQuote{
		Symbol: "BTC", AssetClass: models.AssetCrypto, Price: 100,
		Source: "test", Timestamp: time.Now(),
	}

	report := runCycles(t, f.orch, 1)[0]

	if report.Predict.OpportunitiesFound != 0 {
		t.Fatalf("opportunities = %d, want 0", report.Predict.OpportunitiesFound)
	}
	if report.Predict.Decision.Action != models.DecideSkip {
		t.Errorf("decision = %s, want %s", report.Predict.Decision.Action, models.DecideSkip)
	}
	if report.Predict.Decision.Reason != "No opportunities" {
		t.Errorf("reason = %q, want %q", report.Predict.Decision.Reason, "No opportunities")
	}
	if report.Execute.Traded {
		t.Error("skip cycle must not trade")
	}
	st := f.orch.GetState()
	if st.CycleCount != 1 || st.TotalPnL != 0 {
		t.Errorf("state = count %d pnl %v, want 1/0", st.CycleCount, st.TotalPnL)
	}
}

func TestRunCycleSentimentFailureDegrades(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	f.sentiment.setErr(errors.New("upstream 503"))

	report := runCycles(t, f.orch, 1)[0]

	if report.Ingest.SentimentScore != 0 {
		t.Errorf("sentiment fallback = %v, want 0", report.Ingest.SentimentScore)
	}
	found := false
	for _, e := range report.Errors {
		if strings.Contains(e, "sentiment") {
			found = true
		}
	}
	if !found {
		t.Errorf("report errors %v missing sentiment failure", report.Errors)
	}
	st := f.orch.GetState()
	if st.CycleCount != 1 {
		t.Errorf("cycle count = %d, want 1", st.CycleCount)
	}
	if len(st.Errors) == 0 {
		t.Error("state error log must record the degradation")
	}
}

func TestRunCycleRejectsMalformedQuote(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	f.market.quotes["BTC"] = cryptoQuote("BTC", 100.5, 100) // crossed book

	report := runCycles(t, f.orch, 1)[0]

	if report.Predict.OpportunitiesFound != 0 {
		t.Errorf("opportunities = %d, want 0 from a rejected quote", report.Predict.OpportunitiesFound)
	}
	found := false
	for _, e := range report.Errors {
		if strings.Contains(e, "crossed book") {
			found = true
		}
	}
	if !found {
		t.Errorf("report errors %v missing crossed book rejection", report.Errors)
	}
	if st := f.orch.GetState(); st.TradesExecuted != 0 {
		t.Errorf("trades executed = %d, want 0", st.TradesExecuted)
	}
}

func TestRunCyclePanickingMarketSourceDegrades(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	f.market.panicMsg = "quote decode blew up"

	report := runCycles(t, f.orch, 1)[0]

	found := false
	for _, e := range report.Errors {
		if strings.Contains(e, "collaborator panic: quote decode blew up") {
			found = true
		}
	}
	if !found {
		t.Errorf("report errors %v missing recovered panic", report.Errors)
	}
	st := f.orch.GetState()
	if st.CycleCount != 1 {
		t.Errorf("cycle count = %d, want 1", st.CycleCount)
	}

	// A later cycle with a healthy source recovers cleanly.
	f.market.mu.Lock()
	f.market.panicMsg = ""
	f.market.mu.Unlock()
	if rep := runCycles(t, f.orch, 1)[0]; rep.Predict.OpportunitiesFound == 0 {
		t.Error("healthy cycle after a panicking one found no opportunities")
	}
}

func TestActiveOpportunitiesCapped(t *testing.T) {
	f := newFixture(t, Config{
		CryptoWatchlist: []string{"BTC", "ETH", "SOL", "DOGE", "ADA", "XRP", "DOT"},
	}, 25)

	runCycles(t, f.orch, 1)

	st := f.orch.GetState()
	if st.OpportunitiesDetected != 7 {
		t.Errorf("opportunities detected = %d, want 7", st.OpportunitiesDetected)
	}
	if len(st.ActiveOpportunities) != maxActiveOpportunities {
		t.Errorf("active opportunities = %d, want %d", len(st.ActiveOpportunities), maxActiveOpportunities)
	}
}

func TestRecentTradesCapped(t *testing.T) {
	f := newFixture(t, Config{}, 5)

	runCycles(t, f.orch, maxRecentTrades+3)

	st := f.orch.GetState()
	if st.TradesExecuted != maxRecentTrades+3 {
		t.Fatalf("trades executed = %d, want %d", st.TradesExecuted, maxRecentTrades+3)
	}
	if len(st.RecentTrades) != maxRecentTrades {
		t.Errorf("recent trades = %d, want %d", len(st.RecentTrades), maxRecentTrades)
	}
	if st.TotalPnL != float64(maxRecentTrades+3)*5 {
		t.Errorf("total pnl = %v, want %v", st.TotalPnL, float64(maxRecentTrades+3)*5)
	}
}

func TestCycleHistoryCapped(t *testing.T) {
	f := newFixture(t, Config{}, 25)

	runCycles(t, f.orch, historyCap+5)

	history := f.orch.GetCycleHistory(0)
	if len(history) != historyCap {
		t.Fatalf("history length = %d, want %d", len(history), historyCap)
	}
	if history[0].Cycle != 6 {
		t.Errorf("oldest retained cycle = %d, want 6", history[0].Cycle)
	}
	if history[len(history)-1].Cycle != historyCap+5 {
		t.Errorf("newest cycle = %d, want %d", history[len(history)-1].Cycle, historyCap+5)
	}

	last3 := f.orch.GetCycleHistory(3)
	if len(last3) != 3 || last3[0].Cycle != historyCap+3 {
		t.Errorf("last 3 = %v cycles starting %d, want 3 starting %d", len(last3), last3[0].Cycle, historyCap+3)
	}
}

func TestConcurrentCyclesSerialized(t *testing.T) {
	f := newFixture(t, Config{}, 25)

	var wg sync.WaitGroup
	const n = 8
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.RunCycle(context.Background()); err != nil {
				t.Errorf("cycle failed: %v", err)
			}
		}()
	}
	wg.Wait()

	st := f.orch.GetState()
	if st.CycleCount != n {
		t.Fatalf("cycle count = %d, want %d", st.CycleCount, n)
	}
	history := f.orch.GetCycleHistory(0)
	seen := map[int]bool{}
	for _, r := range history {
		if seen[r.Cycle] {
			t.Errorf("cycle %d reported twice", r.Cycle)
		}
		seen[r.Cycle] = true
	}
}

func TestRunCycleCancelledLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.orch.RunCycle(ctx); err == nil {
		t.Fatal("expected an error from a cancelled cycle")
	}
	st := f.orch.GetState()
	if st.CycleCount != 0 {
		t.Errorf("cycle count = %d, want 0 after cancelled cycle", st.CycleCount)
	}
	if f.orch.history.len() != 0 {
		t.Errorf("history length = %d, want 0", f.orch.history.len())
	}
}

type lifecycleMarket struct {
	fakeMarket
	initErr   error
	healthErr error
	shutdowns int
}

func (m *lifecycleMarket) Name() string { return "marketdata" }

func (m *lifecycleMarket) Initialize(ctx context.Context) error  { return m.initErr }
func (m *lifecycleMarket) HealthCheck(ctx context.Context) error { return m.healthErr }
func (m *lifecycleMarket) Shutdown(ctx context.Context) error {
	m.shutdowns++
	return nil
}

func TestInitializeRecordsDegradation(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	lm := &lifecycleMarket{
		fakeMarket: fakeMarket{quotes: f.market.quotes},
		initErr:    errors.New("api key rejected"),
	}
	f.orch.collab.Market = lm

	results := f.orch.Initialize(context.Background())

	if results["marketdata"].Status != "degraded" {
		t.Errorf("marketdata status = %s, want degraded", results["marketdata"].Status)
	}
	st := f.orch.GetState()
	if st.IntegrationStatus["marketdata"].Error != "api key rejected" {
		t.Errorf("stored error = %q", st.IntegrationStatus["marketdata"].Error)
	}

	// Cycles still run against the degraded collaborator.
	runCycles(t, f.orch, 1)
}

func TestGetIntegrationHealth(t *testing.T) {
	f := newFixture(t, Config{}, 25)
	lm := &lifecycleMarket{
		fakeMarket: fakeMarket{quotes: f.market.quotes},
		healthErr:  errors.New("connection reset"),
	}
	f.orch.collab.Market = lm

	health := f.orch.GetIntegrationHealth(context.Background())

	if health["marketdata"].Status != "error" {
		t.Errorf("marketdata health = %s, want error", health["marketdata"].Status)
	}
	if health["marketdata"].Error != "connection reset" {
		t.Errorf("health error = %q", health["marketdata"].Error)
	}
}
