package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewJournal(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	return j
}

func sampleTrade(symbol, strategy string, entry time.Time) *domain.Trade {
	return &domain.Trade{
		Symbol:     symbol,
		Strategy:   strategy,
		Quantity:   50,
		EntryPrice: 412.5,
		StopLoss:   404.25,
		Target:     424.9,
		EntryTime:  entry,
	}
}

func TestNewJournal(t *testing.T) {
	t.Run("requires logger", func(t *testing.T) {
		_, err := NewJournal(Config{DBPath: filepath.Join(t.TempDir(), "j.db")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})

	t.Run("requires path", func(t *testing.T) {
		_, err := NewJournal(Config{Logger: &mockLogger{}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
		j, err := NewJournal(Config{DBPath: dbPath, Logger: &mockLogger{}})
		require.NoError(t, err)
		defer j.Close()
	})
}

func TestRecordOpenAssignsID(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	trade := sampleTrade("TATAMOTORS-EQ", "ema_crossover", time.Now().UTC())
	id, err := j.RecordOpen(ctx, trade)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, trade.ID)
	assert.Equal(t, domain.TradeOpen, trade.Status)
	assert.True(t, trade.IsOpen())

	second := sampleTrade("INFY-EQ", "rsi_reversal", time.Now().UTC())
	id2, err := j.RecordOpen(ctx, second)
	require.NoError(t, err)
	assert.Greater(t, id2, id)

	_, err = j.RecordOpen(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestRecordCloseRoundTrip(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	entry := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	trade := sampleTrade("TATAMOTORS-EQ", "ema_crossover", entry)
	_, err := j.RecordOpen(ctx, trade)
	require.NoError(t, err)

	exit := entry.Add(2 * time.Hour)
	err = j.RecordClose(ctx, "TATAMOTORS-EQ", "ema_crossover", 420.0, 375.0, exit)
	require.NoError(t, err)

	open, err := j.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	trades, err := j.TradesBetween(ctx, entry.Add(-time.Hour), entry.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	got := trades[0]
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, domain.TradeClosed, got.Status)
	require.NotNil(t, got.ExitPrice)
	assert.InDelta(t, 420.0, *got.ExitPrice, 1e-9)
	require.NotNil(t, got.PnL)
	assert.InDelta(t, 375.0, *got.PnL, 1e-9)
	require.NotNil(t, got.ExitTime)
	assert.True(t, got.ExitTime.Equal(exit))
}

func TestRecordCloseWithoutOpenTrade(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	err := j.RecordClose(ctx, "TATAMOTORS-EQ", "ema_crossover", 420.0, 375.0, time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRecordCloseTwice(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	trade := sampleTrade("TATAMOTORS-EQ", "ema_crossover", time.Now().UTC())
	_, err := j.RecordOpen(ctx, trade)
	require.NoError(t, err)

	exit := time.Now().UTC()
	require.NoError(t, j.RecordClose(ctx, "TATAMOTORS-EQ", "ema_crossover", 420.0, 375.0, exit))

	err = j.RecordClose(ctx, "TATAMOTORS-EQ", "ema_crossover", 421.0, 425.0, exit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRecordCloseMatchesSymbolAndStrategy(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := j.RecordOpen(ctx, sampleTrade("TATAMOTORS-EQ", "ema_crossover", now))
	require.NoError(t, err)
	_, err = j.RecordOpen(ctx, sampleTrade("TATAMOTORS-EQ", "rsi_reversal", now))
	require.NoError(t, err)

	require.NoError(t, j.RecordClose(ctx, "TATAMOTORS-EQ", "rsi_reversal", 418.0, 275.0, now.Add(time.Hour)))

	open, err := j.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ema_crossover", open[0].Strategy)
	assert.True(t, open[0].IsOpen())
}

func TestOpenTradesOrdering(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	_, err := j.RecordOpen(ctx, sampleTrade("INFY-EQ", "ema_crossover", base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = j.RecordOpen(ctx, sampleTrade("TATAMOTORS-EQ", "ema_crossover", base))
	require.NoError(t, err)

	open, err := j.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "TATAMOTORS-EQ", open[0].Symbol)
	assert.Equal(t, "INFY-EQ", open[1].Symbol)
}

func TestTradesBetween(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		trade := sampleTrade("TATAMOTORS-EQ", "ema_crossover", base.AddDate(0, 0, i))
		trade.Strategy = trade.Strategy + string(rune('a'+i))
		_, err := j.RecordOpen(ctx, trade)
		require.NoError(t, err)
	}

	// Half-open range: day 0 excluded by from, day 3 excluded by to.
	trades, err := j.TradesBetween(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Newest first.
	assert.True(t, trades[0].EntryTime.After(trades[1].EntryTime))
}

func TestRealizedPnL(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	total, err := j.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	now := time.Now().UTC()
	_, err = j.RecordOpen(ctx, sampleTrade("TATAMOTORS-EQ", "ema_crossover", now))
	require.NoError(t, err)
	_, err = j.RecordOpen(ctx, sampleTrade("INFY-EQ", "ema_crossover", now))
	require.NoError(t, err)

	require.NoError(t, j.RecordClose(ctx, "TATAMOTORS-EQ", "ema_crossover", 420.0, 375.0, now.Add(time.Hour)))
	require.NoError(t, j.RecordClose(ctx, "INFY-EQ", "ema_crossover", 410.0, -125.0, now.Add(time.Hour)))

	total, err = j.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, total, 1e-9)

	// Open trades do not contribute.
	_, err = j.RecordOpen(ctx, sampleTrade("SBIN-EQ", "rsi_reversal", now))
	require.NoError(t, err)

	total, err = j.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, total, 1e-9)
}
