package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbagent/internal/agent"
	"arbagent/internal/alerting"
	"arbagent/internal/config"
	"arbagent/internal/graphstore"
	"arbagent/internal/indicators"
	"arbagent/internal/ledger"
	"arbagent/internal/logger"
	"arbagent/internal/marketdata"
	"arbagent/internal/router"
	"arbagent/internal/scorer"
	"arbagent/internal/sentiment"
	"arbagent/internal/server"
	"arbagent/internal/vision"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	graph, err := graphstore.New(cfg.Storage.MaxEvents, cfg.Storage.GraphDBPath)
	if err != nil {
		logger.Fatal("Failed to open graph store: %v", err)
	}
	defer func() {
		if err := graph.Close(); err != nil {
			logger.Error("Failed to close graph store: %v", err)
		}
	}()

	book, err := ledger.New(cfg.Storage.LedgerDBPath)
	if err != nil {
		logger.Fatal("Failed to open ledger: %v", err)
	}
	defer func() {
		if err := book.Close(); err != nil {
			logger.Error("Failed to close ledger: %v", err)
		}
	}()

	var alerter agent.Alerter
	var alertHistory server.AlertReader
	if cfg.Telegram.Enabled {
		tg, err := alerting.NewTelegramAlerter(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Telegram.PerMinute,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram alerter: %v", err)
		}
		logger.Info("Telegram alerter initialized")
		alerter, alertHistory = tg, tg
	} else {
		logger.Debug("Telegram alerting disabled, keeping alerts in memory")
		mem := alerting.NewMemoryAlerter()
		alerter, alertHistory = mem, mem
	}

	market := marketdata.NewSource(cfg.Agent.Seed)
	model := scorer.NewModel(cfg.Agent.Seed)

	orch := agent.New(agent.Config{
		CryptoWatchlist: cfg.Agent.CryptoWatchlist,
		StockWatchlist:  cfg.Agent.StockWatchlist,
		SentimentTopic:  cfg.Agent.SentimentTopic,
		NewsCategory:    cfg.Agent.NewsCategory,
		SpreadThreshold: cfg.Agent.SpreadThreshold,
		PatternSymbols:  cfg.Agent.PatternSymbols,
		LookbackDays:    cfg.Agent.LookbackDays,
		CallTimeout:     cfg.Agent.CallTimeout,
		Seed:            cfg.Agent.Seed,
	}, agent.Collaborators{
		Market:     market,
		Sentiment:  sentiment.NewSource(cfg.Agent.Seed),
		Indicators: indicators.NewFeed(),
		Vision:     vision.NewAnalyzer(cfg.Agent.Seed),
		Graph:      graph,
		Scorer:     model,
		Router:     router.New(),
		Alerter:    alerter,
		Ledger:     book,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.Initialize(ctx)

	loop := agent.NewLoop(orch, cfg.Agent.CycleInterval, cfg.Agent.FailureBackoff)
	loop.Start()

	srv := server.New(server.Deps{
		Agent:  orch,
		Loop:   loop,
		Market: market,
		Ledger: book,
		Graph:  graph,
		Model:  model,
		Alerts: alertHistory,
	})
	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Handler()}

	go func() {
		logger.Info("HTTP server listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, cleaning up...")
	case <-ctx.Done():
	}

	loop.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown: %v", err)
	}
	orch.Shutdown(shutdownCtx)
	logger.Info("Service stopped")
}
