// Package agent implements the autonomous arbitrage agent: the five-phase
// cycle engine (Ingest, Analyze, Predict, Execute, Learn), the single mutable
// agent state, the bounded cycle history, and the loop controller.
package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"arbagent/internal/logger"
	"arbagent/internal/models"
	"arbagent/internal/router"
	"arbagent/internal/scorer"
)

const (
	historyCap       = 50
	chartTimeframe   = "4h"
	indicatorStream  = "economic_indicators"
	correlationEvent = "market_move"
)

// Config controls cycle behavior. Zero values fall back to the defaults the
// reference deployment runs with.
type Config struct {
	CryptoWatchlist []string
	StockWatchlist  []string
	SentimentTopic  string
	NewsCategory    string
	SpreadThreshold float64 // percent; candidates need a wider spread
	PatternSymbols  int     // how many crypto symbols get a chart read
	LookbackDays    int
	CallTimeout     time.Duration
	Seed            int64
}

func (c *Config) applyDefaults() {
	if len(c.CryptoWatchlist) == 0 {
		c.CryptoWatchlist = []string{"BTC", "ETH", "SOL", "DOGE"}
	}
	if len(c.StockWatchlist) == 0 {
		c.StockWatchlist = []string{"AAPL", "TSLA", "NVDA", "SPY", "DJT"}
	}
	if c.SentimentTopic == "" {
		c.SentimentTopic = "crypto market momentum"
	}
	if c.NewsCategory == "" {
		c.NewsCategory = "crypto"
	}
	if c.SpreadThreshold == 0 {
		c.SpreadThreshold = 0.05
	}
	if c.PatternSymbols == 0 {
		c.PatternSymbols = 2
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 30
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Second
	}
}

// Orchestrator is the cycle engine. It owns the agent state and history and
// is the only writer of both. RunCycle is serialized by an internal mutex:
// a trigger arriving while a cycle is in flight blocks until that cycle
// finishes, so scheduled and on-demand cycles never interleave.
type Orchestrator struct {
	cfg       Config
	collab    Collaborators
	estimator PnLEstimator

	state   *stateHolder
	history *reportHistory

	runMu sync.Mutex // serializes RunCycle

	rngMu sync.Mutex
	rng   *rand.Rand // simulated trade quantities

	ctxMu    sync.Mutex
	agentCtx map[string]any // rolling context handed to the scorer
}

// New creates an orchestrator. estimator nil uses the seeded reference
// estimator.
func New(cfg Config, collab Collaborators, estimator PnLEstimator) *Orchestrator {
	cfg.applyDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if estimator == nil {
		estimator = NewSimEstimator(seed + 1)
	}
	return &Orchestrator{
		cfg:       cfg,
		collab:    collab,
		estimator: estimator,
		state:     newStateHolder(),
		history:   newReportHistory(historyCap),
		rng:       rand.New(rand.NewSource(seed)),
		agentCtx:  map[string]any{},
	}
}

// Initialize runs every collaborator's lifecycle initializer and records a
// per-collaborator status. Failures degrade the collaborator, never abort.
func (o *Orchestrator) Initialize(ctx context.Context) map[string]IntegrationStatus {
	results := make(map[string]IntegrationStatus)
	for name, in := range o.collab.integrations() {
		st := IntegrationStatus{Status: "ok", CheckedAt: time.Now()}
		if err := in.Initialize(ctx); err != nil {
			st.Status = "degraded"
			st.Error = err.Error()
			logger.Warn("integration %s degraded: %v", name, err)
		} else {
			logger.Info("integration %s ready", name)
		}
		results[name] = st
		o.state.setIntegrationStatus(name, st)
	}
	return results
}

// Shutdown runs every collaborator's lifecycle shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for name, in := range o.collab.integrations() {
		if err := in.Shutdown(ctx); err != nil {
			logger.Warn("integration %s shutdown: %v", name, err)
		}
	}
}

// GetState returns a snapshot of the agent state.
func (o *Orchestrator) GetState() State {
	return o.state.snapshot()
}

// GetCycleHistory returns the last limit cycle reports in chronological
// order; limit <= 0 returns everything retained.
func (o *Orchestrator) GetCycleHistory(limit int) []models.CycleReport {
	return o.history.recent(limit)
}

// GetIntegrationHealth probes every collaborator and returns the results.
// The stored per-collaborator status is refreshed as a side effect.
func (o *Orchestrator) GetIntegrationHealth(ctx context.Context) map[string]IntegrationStatus {
	health := make(map[string]IntegrationStatus)
	for name, in := range o.collab.integrations() {
		st := IntegrationStatus{Status: "ok", CheckedAt: time.Now()}
		if err := in.HealthCheck(ctx); err != nil {
			st.Status = "error"
			st.Error = err.Error()
		}
		health[name] = st
		o.state.setIntegrationStatus(name, st)
	}
	return health
}

// call invokes one collaborator operation under the per-call timeout. A
// panicking collaborator is recovered here and reported as its failure, so
// it degrades the cycle like any other error even when the call runs on an
// ingest goroutine.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) error) (err error) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collaborator panic: %v", r)
		}
	}()
	return fn(cctx)
}

// degradations collects collaborator failures during one cycle.
type degradations struct {
	mu   sync.Mutex
	errs []string
}

func (d *degradations) note(collaborator string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, fmt.Sprintf("%s: %v", collaborator, err))
	logger.Warn("collaborator %s failed, continuing degraded: %v", collaborator, err)
}

func (d *degradations) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.errs...)
}

// ingestResult is the full output of the ingest phase.
type ingestResult struct {
	cryptoQuotes map[string]models.MarketQuote
	stockQuotes  map[string]models.MarketQuote
	indicators   []models.IndicatorRecord
	sentiment    models.SentimentReading
	news         []models.NewsItem
	portfolio    models.PortfolioSnapshot
}

// RunCycle executes exactly one pass of the five-phase pipeline and commits
// its outcome to the agent state. The cycle counter only advances on commit;
// a cancelled cycle leaves the state untouched.
func (o *Orchestrator) RunCycle(ctx context.Context) (models.CycleReport, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	start := time.Now()
	cycleNum := o.state.cycleCount() + 1
	report := models.CycleReport{Cycle: cycleNum, StartedAt: start}
	deg := &degradations{}

	logger.Info("cycle #%d starting", cycleNum)

	ingested, err := o.ingest(ctx, &report, deg)
	if err != nil {
		return report, fmt.Errorf("cycle %d ingest: %w", cycleNum, err)
	}
	patterns, correlations, err := o.analyze(ctx, &report, deg, ingested)
	if err != nil {
		return report, fmt.Errorf("cycle %d analyze: %w", cycleNum, err)
	}
	opportunities, decision, err := o.predict(ctx, &report, deg, ingested, patterns, correlations)
	if err != nil {
		return report, fmt.Errorf("cycle %d predict: %w", cycleNum, err)
	}
	trade := o.execute(ctx, &report, deg, opportunities, decision)
	pnl := o.learn(ctx, &report, deg, cycleNum, trade)

	completed := time.Now()
	report.CompletedAt = completed
	report.Duration = completed.Sub(start)
	report.Errors = deg.list()

	o.state.commit(cycleOutcome{
		completedAt:   completed,
		opportunities: opportunities,
		trade:         trade,
		pnl:           pnl,
		errs:          report.Errors,
	})
	o.history.append(report)
	o.updateContext(cycleNum, opportunities)

	logger.Info("cycle #%d complete in %v: %d opportunities, traded=%v, pnl=%+.2f",
		cycleNum, report.Duration, len(opportunities), trade != nil, pnl)
	return report, nil
}

// ingest pulls every upstream signal. The fetches are independent and run
// concurrently; any single failure degrades that signal and the phase
// continues.
func (o *Orchestrator) ingest(ctx context.Context, report *models.CycleReport, deg *degradations) (*ingestResult, error) {
	res := &ingestResult{
		cryptoQuotes: make(map[string]models.MarketQuote),
		stockQuotes:  make(map[string]models.MarketQuote),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, symbol := range o.cfg.CryptoWatchlist {
		symbol := symbol
		g.Go(func() error {
			err := o.call(gctx, func(cctx context.Context) error {
				q, err := o.collab.Market.Quote(cctx, symbol, models.AssetCrypto)
				if err != nil {
					return err
				}
				if err := q.Validate(); err != nil {
					return err
				}
				mu.Lock()
				res.cryptoQuotes[symbol] = q
				mu.Unlock()
				return nil
			})
			if err != nil {
				deg.note("marketdata."+symbol, err)
			}
			return nil
		})
	}
	for _, symbol := range o.cfg.StockWatchlist {
		symbol := symbol
		g.Go(func() error {
			err := o.call(gctx, func(cctx context.Context) error {
				q, err := o.collab.Market.Quote(cctx, symbol, models.AssetStock)
				if err != nil {
					return err
				}
				if err := q.Validate(); err != nil {
					return err
				}
				mu.Lock()
				res.stockQuotes[symbol] = q
				mu.Unlock()
				return nil
			})
			if err != nil {
				deg.note("marketdata."+symbol, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := o.call(gctx, func(cctx context.Context) error {
			recs, err := o.collab.Indicators.LatestIndicators(cctx, indicatorStream)
			if err != nil {
				return err
			}
			mu.Lock()
			res.indicators = recs
			mu.Unlock()
			return nil
		})
		if err != nil {
			deg.note("indicators", err)
		}
		return nil
	})
	g.Go(func() error {
		err := o.call(gctx, func(cctx context.Context) error {
			reading, err := o.collab.Sentiment.Sentiment(cctx, o.cfg.SentimentTopic)
			if err != nil {
				return err
			}
			mu.Lock()
			res.sentiment = reading
			mu.Unlock()
			return nil
		})
		if err != nil {
			// Downstream scoring falls back to a neutral 0.0 reading.
			deg.note("sentiment", err)
		}
		return nil
	})
	g.Go(func() error {
		err := o.call(gctx, func(cctx context.Context) error {
			news, err := o.collab.Sentiment.TrendingNews(cctx, o.cfg.NewsCategory)
			if err != nil {
				return err
			}
			mu.Lock()
			res.news = news
			mu.Unlock()
			return nil
		})
		if err != nil {
			deg.note("sentiment.news", err)
		}
		return nil
	})
	g.Go(func() error {
		err := o.call(gctx, func(cctx context.Context) error {
			pf, err := o.collab.Market.Portfolio(cctx)
			if err != nil {
				return err
			}
			mu.Lock()
			res.portfolio = pf
			mu.Unlock()
			return nil
		})
		if err != nil {
			deg.note("marketdata.portfolio", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Ingest = models.IngestSummary{
		CryptoQuotes:   len(res.cryptoQuotes),
		StockQuotes:    len(res.stockQuotes),
		Indicators:     len(res.indicators),
		TrendingNews:   len(res.news),
		SentimentScore: res.sentiment.Score,
	}
	logger.Debug("ingest: %d crypto, %d stock quotes, sentiment %.2f, %d news",
		len(res.cryptoQuotes), len(res.stockQuotes), res.sentiment.Score, len(res.news))
	return res, nil
}

// analyze requests chart reads for a bounded slice of the crypto watchlist,
// looks up historical correlations for the reference symbol, and persists
// every ingested crypto quote into the correlation store.
func (o *Orchestrator) analyze(ctx context.Context, report *models.CycleReport, deg *degradations, in *ingestResult) ([]models.VisualPattern, []models.CorrelationEntry, error) {
	var patterns []models.VisualPattern
	n := o.cfg.PatternSymbols
	if n > len(o.cfg.CryptoWatchlist) {
		n = len(o.cfg.CryptoWatchlist)
	}
	for _, symbol := range o.cfg.CryptoWatchlist[:n] {
		err := o.call(ctx, func(cctx context.Context) error {
			p, err := o.collab.Vision.AnalyzeChart(cctx, symbol, chartTimeframe)
			if err != nil {
				return err
			}
			patterns = append(patterns, p)
			route := o.collab.Router.RouteData("visual_pattern")
			logger.Debug("pattern %s on %s routed to %s", p.PatternType, symbol, route.Destination)
			return nil
		})
		if err != nil {
			deg.note("vision."+symbol, err)
		}
	}

	var correlations []models.CorrelationEntry
	refSymbol := o.cfg.CryptoWatchlist[0]
	err := o.call(ctx, func(cctx context.Context) error {
		entries, err := o.collab.Graph.FindCorrelations(cctx, correlationEvent, refSymbol, o.cfg.LookbackDays)
		if err != nil {
			return err
		}
		correlations = entries
		return nil
	})
	if err != nil {
		deg.note("graphstore.correlations", err)
	}

	stored := 0
	for _, symbol := range o.cfg.CryptoWatchlist {
		q, ok := in.cryptoQuotes[symbol]
		if !ok {
			continue
		}
		err := o.call(ctx, func(cctx context.Context) error {
			_, err := o.collab.Graph.StoreEvent(cctx, "price_snapshot", q)
			return err
		})
		if err != nil {
			deg.note("graphstore.store", err)
			continue
		}
		stored++
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	report.Analyze = models.AnalyzeSummary{
		PatternsDetected:  len(patterns),
		CorrelationsFound: len(correlations),
		EventsStored:      stored,
	}
	logger.Debug("analyze: %d patterns, %d correlations, %d events stored",
		len(patterns), len(correlations), stored)
	return patterns, correlations, nil
}

// predict scores every crypto symbol with a two-sided book and a spread over
// the threshold, ranks the candidates, and routes the decision.
func (o *Orchestrator) predict(ctx context.Context, report *models.CycleReport, deg *degradations, in *ingestResult, patterns []models.VisualPattern, correlations []models.CorrelationEntry) ([]models.ArbitrageOpportunity, models.Decision, error) {
	correlationLabels := make([]string, 0, len(correlations))
	for _, c := range correlations {
		correlationLabels = append(correlationLabels, c.Event)
	}

	var opportunities []models.ArbitrageOpportunity
	for _, symbol := range o.cfg.CryptoWatchlist {
		q, ok := in.cryptoQuotes[symbol]
		if !ok || !q.HasSpread() {
			continue
		}
		spreadPct := q.SpreadPct()
		if spreadPct <= o.cfg.SpreadThreshold {
			continue
		}

		score := 0.0
		err := o.call(ctx, func(cctx context.Context) error {
			s, err := o.collab.Scorer.Predict(cctx, scorer.Features{
				SpreadPct:      spreadPct,
				SentimentScore: in.sentiment.Score,
				Correlations:   correlations,
				Patterns:       patterns,
			}, o.contextSnapshot())
			if err != nil {
				return err
			}
			score = s
			return nil
		})
		if err != nil {
			deg.note("scorer."+symbol, err)
		}
		score = math.Max(0, math.Min(1, score))

		opp := models.ArbitrageOpportunity{
			ID:             models.NewOpportunityID(),
			BuyAsset:       symbol + "/Exchange-A",
			SellAsset:      symbol + "/Exchange-B",
			BuyPrice:       q.Bid,
			SellPrice:      q.Ask,
			SpreadPct:      spreadPct,
			PredictedScore: score,
			SentimentScore: in.sentiment.Score,
			VisualPatterns: patterns,
			Correlations:   correlationLabels,
			Timestamp:      time.Now(),
			Status:         models.OpportunityDetected,
		}
		if err := opp.Validate(); err != nil {
			deg.note("predict."+symbol, err)
			continue
		}
		opportunities = append(opportunities, opp)
	}

	// Rank by score; ties keep discovery order.
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].PredictedScore > opportunities[j].PredictedScore
	})

	decision := models.SkipDecision("No opportunities")
	if len(opportunities) > 0 {
		top := opportunities[0]
		err := o.call(ctx, func(cctx context.Context) error {
			d, err := o.collab.Router.Decide(cctx, router.Context{
				PredictedScore: top.PredictedScore,
				Opportunities:  len(opportunities),
			})
			if err != nil {
				return err
			}
			decision = d
			return nil
		})
		if err != nil {
			deg.note("router", err)
			decision = models.SkipDecision("Router unavailable")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, models.Decision{}, err
	}

	topScore := 0.0
	if len(opportunities) > 0 {
		topScore = opportunities[0].PredictedScore
	}
	report.Predict = models.PredictSummary{
		OpportunitiesFound: len(opportunities),
		TopScore:           topScore,
		Decision:           decision,
	}
	logger.Debug("predict: %d opportunities, top %.4f, decision %s", len(opportunities), topScore, decision.Action)
	return opportunities, decision, nil
}

// execute produces at most one simulated trade and at most one alert.
func (o *Orchestrator) execute(ctx context.Context, report *models.CycleReport, deg *degradations, opportunities []models.ArbitrageOpportunity, decision models.Decision) *models.TradeResult {
	report.Execute = models.ExecuteSummary{}
	if len(opportunities) == 0 || !decision.ShouldExecute() {
		logger.Debug("execute: no trade this cycle (action=%s)", decision.Action)
		return nil
	}

	top := opportunities[0]
	trade := &models.TradeResult{
		OpportunityID: top.ID,
		Action:        models.ActionBuy,
		Asset:         assetSymbol(top.BuyAsset),
		Quantity:      o.simulatedQuantity(),
		Price:         top.BuyPrice,
		Simulated:     true,
		ExecutedAt:    time.Now(),
		Notes:         fmt.Sprintf("Score: %.4f | %s", top.PredictedScore, decision.Reason),
	}
	report.Execute.Traded = true
	report.Execute.Trade = trade
	logger.Info("simulated trade: %s %.4f %s @ %.2f", trade.Action, trade.Quantity, trade.Asset, trade.Price)

	if decision.Action == models.DecideExecuteAndAlert || top.Anomaly() {
		msg := fmt.Sprintf("ANOMALY DETECTED: %s spread %.2f%% with score %.4f",
			top.BuyAsset, top.SpreadPct, top.PredictedScore)
		err := o.call(ctx, func(cctx context.Context) error {
			_, err := o.collab.Alerter.SendAlert(cctx, msg, "critical", top.ID)
			return err
		})
		if err != nil {
			deg.note("alerter", err)
		} else {
			report.Execute.Alerted = true
		}
	}
	return trade
}

// learn runs only when a trade occurred: log it, derive its P&L, and feed
// the outcome back into the correlation store.
func (o *Orchestrator) learn(ctx context.Context, report *models.CycleReport, deg *degradations, cycleNum int, trade *models.TradeResult) float64 {
	report.Learn = models.LearnSummary{TotalPnL: o.state.totalPnL()}
	if trade == nil {
		return 0
	}

	// Simulated trades come back without a broker order id. Assign the
	// cycle-derived id before logging so the trade log, the P&L records,
	// and the graph outcomes all share one key.
	if trade.OrderID == "" {
		trade.OrderID = fmt.Sprintf("sim-%d", cycleNum)
	}
	tradeID := trade.OrderID

	if err := o.call(ctx, func(cctx context.Context) error {
		return o.collab.Ledger.LogTrade(cctx, *trade)
	}); err != nil {
		deg.note("ledger.trade", err)
	}

	pnl := o.estimator.Estimate(*trade)
	notional := trade.Price * trade.Quantity
	rec := models.PnLRecord{
		TradeID:       tradeID,
		OpportunityID: trade.OpportunityID,
		EntryPrice:    trade.Price,
		ExitPrice:     trade.Price * (1 + pnl/notional),
		Quantity:      trade.Quantity,
		PnL:           pnl,
		PnLPct:        math.Round(pnl/notional*100*100) / 100,
		Asset:         trade.Asset,
		RecordedAt:    time.Now(),
	}
	if err := o.call(ctx, func(cctx context.Context) error {
		return o.collab.Ledger.RecordPnL(cctx, rec)
	}); err != nil {
		deg.note("ledger.pnl", err)
	}

	if err := o.call(ctx, func(cctx context.Context) error {
		return o.collab.Graph.RecordTradeOutcome(cctx, tradeID, pnl, pnl > 0)
	}); err != nil {
		deg.note("graphstore.outcome", err)
	}

	report.Learn = models.LearnSummary{
		PnLUpdated: true,
		CyclePnL:   pnl,
		TotalPnL:   o.state.totalPnL() + pnl,
	}
	logger.Info("learn: pnl %+.2f, running total %+.2f", pnl, report.Learn.TotalPnL)
	return pnl
}

// simulatedQuantity draws the bounded pseudo-random trade size [0.01, 0.1].
func (o *Orchestrator) simulatedQuantity() float64 {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	q := 0.01 + o.rng.Float64()*0.09
	return math.Round(q*10000) / 10000
}

func (o *Orchestrator) contextSnapshot() map[string]any {
	o.ctxMu.Lock()
	defer o.ctxMu.Unlock()
	out := make(map[string]any, len(o.agentCtx))
	for k, v := range o.agentCtx {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) updateContext(cycleNum int, opportunities []models.ArbitrageOpportunity) {
	topScore := 0.0
	if len(opportunities) > 0 {
		topScore = opportunities[0].PredictedScore
	}
	o.ctxMu.Lock()
	defer o.ctxMu.Unlock()
	o.agentCtx["cycle"] = cycleNum
	o.agentCtx["last_opportunities"] = len(opportunities)
	o.agentCtx["top_score"] = topScore
}

// assetSymbol strips the exchange suffix from a "SYM/Exchange" label.
func assetSymbol(buyAsset string) string {
	for i := 0; i < len(buyAsset); i++ {
		if buyAsset[i] == '/' {
			return buyAsset[:i]
		}
	}
	return buyAsset
}
