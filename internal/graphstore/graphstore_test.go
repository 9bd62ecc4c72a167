package graphstore

import (
	"context"
	"testing"
	"time"

	"arbagent/internal/models"
)

func newTestStore(t *testing.T, maxEvents int) *Store {
	t.Helper()
	s, err := New(maxEvents, ":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return s
}

func btcQuote() models.MarketQuote {
	return models.MarketQuote{
		Symbol: "BTC", AssetClass: models.AssetCrypto,
		Price: 97250, Bid: 97152.75, Ask: 97347.25,
		Source: "sim", Timestamp: time.Now(),
	}
}

func TestStoreEventAndStats(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	id, err := s.StoreEvent(ctx, "price_snapshot", btcQuote())
	if err != nil {
		t.Fatalf("store event: %v", err)
	}
	if id == "" {
		t.Fatal("event id must not be empty")
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Events != 1 {
		t.Errorf("events = %d, want 1", stats.Events)
	}
	if stats.WinRate != 0.5 {
		t.Errorf("win rate with no outcomes = %v, want neutral 0.5", stats.WinRate)
	}
}

func TestStoreEventEvictsOldest(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.StoreEvent(ctx, "price_snapshot", btcQuote()); err != nil {
			t.Fatalf("store event %d: %v", i, err)
		}
		// Eviction orders by created_at, keep timestamps distinct.
		time.Sleep(time.Millisecond)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Events != 3 {
		t.Errorf("events after eviction = %d, want 3", stats.Events)
	}
}

func TestFindCorrelationsSeedsWhenEmpty(t *testing.T) {
	s := newTestStore(t, 100)

	entries, err := s.FindCorrelations(context.Background(), "market_move", "BTC", 30)
	if err != nil {
		t.Fatalf("find correlations: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("seed correlations = %d, want 3", len(entries))
	}
	if entries[0].Event != "fed_rate_decision" || entries[0].Symbol != "BTC" {
		t.Errorf("first seed = %+v", entries[0])
	}
}

func TestFindCorrelationsUsesStoredEvents(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	if _, err := s.StoreEvent(ctx, "market_move", btcQuote()); err != nil {
		t.Fatalf("store event: %v", err)
	}
	if _, err := s.StoreEvent(ctx, "market_move", models.MarketQuote{Symbol: "ETH"}); err != nil {
		t.Fatalf("store event: %v", err)
	}

	entries, err := s.FindCorrelations(ctx, "market_move", "BTC", 30)
	if err != nil {
		t.Fatalf("find correlations: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("correlations = %d, want 1 stored BTC event", len(entries))
	}
	if entries[0].Strength != 0.5 {
		t.Errorf("strength without outcomes = %v, want 0.5", entries[0].Strength)
	}

	if err := s.RecordTradeOutcome(ctx, "sim-1", 25, true); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := s.RecordTradeOutcome(ctx, "sim-2", -10, false); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	entries, err = s.FindCorrelations(ctx, "market_move", "BTC", 30)
	if err != nil {
		t.Fatalf("find correlations: %v", err)
	}
	if entries[0].Strength != 0.5 {
		t.Errorf("strength with 1/2 wins = %v, want 0.5", entries[0].Strength)
	}

	if err := s.RecordTradeOutcome(ctx, "sim-3", 40, true); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	entries, err = s.FindCorrelations(ctx, "market_move", "BTC", 30)
	if err != nil {
		t.Fatalf("find correlations: %v", err)
	}
	want := 2.0 / 3.0
	if diff := entries[0].Strength - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("strength with 2/3 wins = %v, want %v", entries[0].Strength, want)
	}
}

func TestRecordTradeOutcomeReplaces(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	if err := s.RecordTradeOutcome(ctx, "sim-1", -5, false); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := s.RecordTradeOutcome(ctx, "sim-1", 30, true); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Outcomes != 1 {
		t.Errorf("outcomes = %d, want 1 after replace", stats.Outcomes)
	}
	if stats.WinRate != 1.0 {
		t.Errorf("win rate = %v, want 1.0", stats.WinRate)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t, 10)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check: %v", err)
	}
}
