// Package ledger provides SQLite-backed accounting for executed trades and
// their realized P&L.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"arbagent/internal/models"

	_ "modernc.org/sqlite"
)

// Ledger wraps a SQLite database recording trades and P&L.
type Ledger struct {
	db *sql.DB
}

// New opens or creates the ledger database at dbPath.
// An empty dbPath defaults to $TMPDIR/arbagent/ledger.db.
func New(dbPath string) (*Ledger, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "arbagent", "ledger.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			order_id       TEXT PRIMARY KEY,
			opportunity_id TEXT NOT NULL,
			action         TEXT NOT NULL,
			asset          TEXT NOT NULL,
			quantity       TEXT NOT NULL,
			price          TEXT NOT NULL,
			simulated      INTEGER NOT NULL,
			notes          TEXT,
			executed_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pnl (
			trade_id       TEXT PRIMARY KEY,
			opportunity_id TEXT NOT NULL,
			asset          TEXT NOT NULL,
			entry_price    TEXT NOT NULL,
			exit_price     TEXT NOT NULL,
			quantity       TEXT NOT NULL,
			pnl            TEXT NOT NULL,
			pnl_pct        TEXT NOT NULL,
			recorded_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pnl_recorded_at ON pnl(recorded_at)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Name implements the integration lifecycle contract.
func (l *Ledger) Name() string { return "ledger" }

// Initialize verifies the database connection.
func (l *Ledger) Initialize(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// HealthCheck reports whether the database is reachable.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Shutdown closes the ledger.
func (l *Ledger) Shutdown(ctx context.Context) error {
	return l.Close()
}

// Monetary columns are stored as decimal strings rather than REAL so that
// accounting totals do not accumulate float error.
func dec(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// LogTrade records one executed trade.
func (l *Ledger) LogTrade(ctx context.Context, trade models.TradeResult) error {
	orderID := trade.OrderID
	if orderID == "" {
		orderID = trade.OpportunityID
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
			(order_id, opportunity_id, action, asset, quantity, price, simulated, notes, executed_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		orderID, trade.OpportunityID, string(trade.Action), trade.Asset,
		dec(trade.Quantity), dec(trade.Price), boolToInt(trade.Simulated),
		trade.Notes, trade.ExecutedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// RecordPnL records the realized P&L of one completed trade.
func (l *Ledger) RecordPnL(ctx context.Context, rec models.PnLRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pnl
			(trade_id, opportunity_id, asset, entry_price, exit_price, quantity, pnl, pnl_pct, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.TradeID, rec.OpportunityID, rec.Asset,
		dec(rec.EntryPrice), dec(rec.ExitPrice), dec(rec.Quantity),
		dec(rec.PnL), dec(rec.PnLPct), rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record pnl: %w", err)
	}
	return nil
}

// Summary aggregates the ledger for the status surface.
type Summary struct {
	Trades   int     `json:"trades"`
	Records  int     `json:"records"`
	TotalPnL float64 `json:"total_pnl"`
	WinRate  float64 `json:"win_rate"`
}

// GetSummary returns trade counts, the exact cumulative P&L, and the share of
// profitable records.
func (l *Ledger) GetSummary(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&sum.Trades); err != nil {
		return sum, fmt.Errorf("failed to count trades: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT pnl FROM pnl`)
	if err != nil {
		return sum, fmt.Errorf("failed to query pnl: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	wins := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return sum, fmt.Errorf("failed to scan pnl: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return sum, fmt.Errorf("corrupt pnl value %q: %w", raw, err)
		}
		total = total.Add(d)
		if d.IsPositive() {
			wins++
		}
		sum.Records++
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}

	sum.TotalPnL, _ = total.Float64()
	if sum.Records > 0 {
		sum.WinRate = float64(wins) / float64(sum.Records)
	}
	return sum, nil
}

// RecentPnL returns the most recent P&L records, newest first.
func (l *Ledger) RecentPnL(ctx context.Context, limit int) ([]models.PnLRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT trade_id, opportunity_id, asset, entry_price, exit_price, quantity, pnl, pnl_pct, recorded_at
		FROM pnl ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pnl records: %w", err)
	}
	defer rows.Close()

	var recs []models.PnLRecord
	for rows.Next() {
		var rec models.PnLRecord
		var entry, exit, qty, pnl, pct string
		var recordedAtNano int64
		if err := rows.Scan(&rec.TradeID, &rec.OpportunityID, &rec.Asset,
			&entry, &exit, &qty, &pnl, &pct, &recordedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan pnl record: %w", err)
		}
		rec.EntryPrice = parseDec(entry)
		rec.ExitPrice = parseDec(exit)
		rec.Quantity = parseDec(qty)
		rec.PnL = parseDec(pnl)
		rec.PnLPct = parseDec(pct)
		rec.RecordedAt = time.Unix(0, recordedAtNano)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func parseDec(raw string) float64 {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
