// Package server exposes the HTTP control surface. Handlers are a thin
// shell over the agent: they read snapshots, trigger cycles, and start or
// stop the loop. No trading logic lives here.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"arbagent/internal/agent"
	"arbagent/internal/graphstore"
	"arbagent/internal/ledger"
	"arbagent/internal/logger"
	"arbagent/internal/models"
	"arbagent/internal/scorer"
)

// CycleRunner is the agent surface the handlers read and trigger.
type CycleRunner interface {
	GetState() agent.State
	GetCycleHistory(limit int) []models.CycleReport
	GetIntegrationHealth(ctx context.Context) map[string]agent.IntegrationStatus
	RunCycle(ctx context.Context) (models.CycleReport, error)
}

// LoopControl starts and stops the background loop.
type LoopControl interface {
	Start()
	Stop()
	Running() bool
}

// QuoteSource serves on-demand quotes and the portfolio snapshot.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string, class models.AssetClass) (models.MarketQuote, error)
	Portfolio(ctx context.Context) (models.PortfolioSnapshot, error)
}

// PnLReader serves the accounting surface.
type PnLReader interface {
	GetSummary(ctx context.Context) (ledger.Summary, error)
	RecentPnL(ctx context.Context, limit int) ([]models.PnLRecord, error)
}

// GraphReader serves correlation store statistics.
type GraphReader interface {
	GetStats(ctx context.Context) (graphstore.Stats, error)
}

// ModelReader serves prediction model metadata.
type ModelReader interface {
	GetStatus() scorer.Status
}

// AlertReader serves the retained alert history.
type AlertReader interface {
	History(limit int) []models.AlertRecord
}

// Deps wires the handlers to their backends.
type Deps struct {
	Agent  CycleRunner
	Loop   LoopControl
	Market QuoteSource
	Ledger PnLReader
	Graph  GraphReader
	Model  ModelReader
	Alerts AlertReader
}

// Server is the HTTP control surface.
type Server struct {
	deps   Deps
	engine *gin.Engine
}

// New builds the server and registers all routes.
func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{deps: deps, engine: engine}

	engine.GET("/health", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	engine.GET("/integrations", s.handleIntegrations)
	engine.GET("/portfolio", s.handlePortfolio)
	engine.GET("/quotes/:class/:symbol", s.handleQuote)
	engine.GET("/cycles", s.handleCycles)
	engine.GET("/pnl", s.handlePnL)
	engine.GET("/graph/stats", s.handleGraphStats)
	engine.GET("/model/status", s.handleModelStatus)
	engine.GET("/alerts", s.handleAlerts)

	engine.POST("/agent/start", s.handleStart)
	engine.POST("/agent/stop", s.handleStop)
	engine.POST("/agent/cycle", s.handleCycle)

	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	logger.Info("http server listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.deps.Loop.Running(),
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Agent.GetState())
}

func (s *Server) handleIntegrations(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Agent.GetIntegrationHealth(c.Request.Context()))
}

func (s *Server) handlePortfolio(c *gin.Context) {
	pf, err := s.deps.Market.Portfolio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pf)
}

func (s *Server) handleQuote(c *gin.Context) {
	class := models.AssetClass(c.Param("class"))
	if class != models.AssetStock && class != models.AssetCrypto {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset class must be stock or crypto"})
		return
	}
	q, err := s.deps.Market.Quote(c.Request.Context(), c.Param("symbol"), class)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleCycles(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": s.deps.Agent.GetCycleHistory(limit)})
}

func (s *Server) handlePnL(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	summary, err := s.deps.Ledger.GetSummary(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	recent, err := s.deps.Ledger.RecentPnL(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "recent": recent})
}

func (s *Server) handleGraphStats(c *gin.Context) {
	stats, err := s.deps.Graph.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Model.GetStatus())
}

func (s *Server) handleAlerts(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": s.deps.Alerts.History(limit)})
}

func (s *Server) handleStart(c *gin.Context) {
	s.deps.Loop.Start()
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.deps.Loop.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleCycle(c *gin.Context) {
	report, err := s.deps.Agent.RunCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// queryInt parses an optional non-negative integer query parameter. When the
// parameter is present but malformed it writes a 400 and reports !ok.
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
