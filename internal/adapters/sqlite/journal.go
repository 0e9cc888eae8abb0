// Package sqlite persists the trade journal in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_price REAL NOT NULL,
	stop_loss REAL NOT NULL DEFAULT 0,
	target REAL NOT NULL DEFAULT 0,
	exit_price REAL DEFAULT NULL,
	pnl REAL DEFAULT NULL,
	status TEXT NOT NULL DEFAULT 'OPEN',
	entry_time TIMESTAMP NOT NULL,
	exit_time TIMESTAMP DEFAULT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_strategy_status ON trades(symbol, strategy, status);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
`

// Config holds the configuration for the SQLite journal.
type Config struct {
	DBPath string       // Path to the SQLite database file
	Logger ports.Logger // Logger for journal operations
}

// Journal implements ports.TradeJournal backed by SQLite.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// NewJournal opens (creating if necessary) the journal database at cfg.DBPath.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("%w: database path is required", ports.ErrConfigurationError)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn between the engine and the report commands.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	cfg.Logger.Debug(context.Background(), "trade journal opened", map[string]interface{}{"path": cfg.DBPath})

	return &Journal{db: db, logger: cfg.Logger}, nil
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOpen inserts a newly opened trade and sets trade.ID from the row id.
func (j *Journal) RecordOpen(ctx context.Context, trade *domain.Trade) (int64, error) {
	if trade == nil {
		return 0, fmt.Errorf("%w: trade is nil", ports.ErrInvalidRequest)
	}

	query := `
		INSERT INTO trades (symbol, strategy, quantity, entry_price, stop_loss, target, status, entry_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := j.db.ExecContext(ctx, query,
		trade.Symbol,
		trade.Strategy,
		trade.Quantity,
		trade.EntryPrice,
		trade.StopLoss,
		trade.Target,
		string(domain.TradeOpen),
		trade.EntryTime,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record trade open: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get trade id: %w", err)
	}
	trade.ID = id
	trade.Status = domain.TradeOpen

	j.logger.Debug(ctx, "trade recorded", map[string]interface{}{
		"id":       id,
		"symbol":   trade.Symbol,
		"strategy": trade.Strategy,
	})

	return id, nil
}

// RecordClose marks the open trade for (symbol, strategy) as closed.
func (j *Journal) RecordClose(ctx context.Context, symbol, strategy string, exitPrice, pnl float64, exitTime time.Time) error {
	query := `
		UPDATE trades
		SET exit_price = ?, pnl = ?, status = ?, exit_time = ?
		WHERE symbol = ? AND strategy = ? AND status = ?`

	res, err := j.db.ExecContext(ctx, query,
		exitPrice,
		pnl,
		string(domain.TradeClosed),
		exitTime,
		symbol,
		strategy,
		string(domain.TradeOpen),
	)
	if err != nil {
		return fmt.Errorf("failed to record trade close: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no open trade for %s/%s: %w", symbol, strategy, ports.ErrNotFound)
	}

	j.logger.Debug(ctx, "trade closed", map[string]interface{}{
		"symbol":   symbol,
		"strategy": strategy,
		"pnl":      pnl,
	})

	return nil
}

// OpenTrades returns all trades still marked open, oldest first.
func (j *Journal) OpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	query := `
		SELECT id, symbol, strategy, quantity, entry_price, stop_loss, target, exit_price, pnl, status, entry_time, exit_time
		FROM trades
		WHERE status = ?
		ORDER BY entry_time ASC`

	rows, err := j.db.QueryContext(ctx, query, string(domain.TradeOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// TradesBetween returns trades entered in [from, to), newest first.
func (j *Journal) TradesBetween(ctx context.Context, from, to time.Time) ([]*domain.Trade, error) {
	query := `
		SELECT id, symbol, strategy, quantity, entry_price, stop_loss, target, exit_price, pnl, status, entry_time, exit_time
		FROM trades
		WHERE entry_time >= ? AND entry_time < ?
		ORDER BY entry_time DESC`

	rows, err := j.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// RealizedPnL sums the booked profit and loss across all closed trades.
func (j *Journal) RealizedPnL(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	query := `SELECT SUM(pnl) FROM trades WHERE status = ?`
	if err := j.db.QueryRowContext(ctx, query, string(domain.TradeClosed)).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}

// scanner abstracts sql.Row and sql.Rows for scanTrade.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	var t domain.Trade
	var exitPrice, pnl sql.NullFloat64
	var exitTime sql.NullTime
	var status string

	err := s.Scan(
		&t.ID,
		&t.Symbol,
		&t.Strategy,
		&t.Quantity,
		&t.EntryPrice,
		&t.StopLoss,
		&t.Target,
		&exitPrice,
		&pnl,
		&status,
		&t.EntryTime,
		&exitTime,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TradeStatus(status)
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	if pnl.Valid {
		t.PnL = &pnl.Float64
	}
	if exitTime.Valid {
		ts := exitTime.Time
		t.ExitTime = &ts
	}

	return &t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}
