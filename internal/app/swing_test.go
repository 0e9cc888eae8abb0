package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/watchlist"
)

var swingBase = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func dayCandle(i int, close float64) domain.Candle {
	return domain.Candle{
		Time:   swingBase.AddDate(0, 0, i),
		Open:   close,
		High:   close + 2,
		Low:    close - 2,
		Close:  close,
		Volume: 1000,
	}
}

// crossoverUpDaily declines from 100 to 80 and then jumps to 200, so the
// fast EMA crosses above the slow one exactly on the final bar.
func crossoverUpDaily() []domain.Candle {
	var out []domain.Candle
	for i := 0; i <= 20; i++ {
		out = append(out, dayCandle(i, 100-float64(i)))
	}
	return append(out, dayCandle(21, 200))
}

// crossoverDownDaily rises from 80 to 100 and then crashes to 40, crossing
// down on the final bar.
func crossoverDownDaily() []domain.Candle {
	var out []domain.Candle
	for i := 0; i <= 20; i++ {
		out = append(out, dayCandle(i, 80+float64(i)))
	}
	return append(out, dayCandle(21, 40))
}

// steadyRising trends up the whole way; any crossover is long past.
func steadyRising(n int) []domain.Candle {
	var out []domain.Candle
	for i := 0; i < n; i++ {
		out = append(out, dayCandle(i, 100+float64(i)))
	}
	return out
}

func steadyFalling(n int) []domain.Candle {
	var out []domain.Candle
	for i := 0; i < n; i++ {
		out = append(out, dayCandle(i, 130-float64(i)))
	}
	return out
}

var testInstrument = watchlist.Instrument{Symbol: "INFY-EQ", Token: "1594", Sector: "IT"}

func newSwingFixture(t *testing.T) (*SwingEngine, *stubHistory, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	sizer, err := risk.NewPositionSizer(risk.SizerConfig{Logger: logger})
	require.NoError(t, err)

	history := &stubHistory{data: map[string][]domain.Candle{}}
	engine, err := NewSwingEngine(SwingConfig{
		History:    history,
		Sizer:      sizer,
		Logger:     logger,
		FastPeriod: 3,
		SlowPeriod: 5,
	})
	require.NoError(t, err)
	return engine, history, logger
}

func TestNewSwingEngine(t *testing.T) {
	logger := &mockLogger{}
	sizer, err := risk.NewPositionSizer(risk.SizerConfig{Logger: logger})
	require.NoError(t, err)
	history := &stubHistory{}

	tests := []struct {
		name string
		cfg  SwingConfig
	}{
		{"missing history", SwingConfig{Sizer: sizer, Logger: logger}},
		{"missing sizer", SwingConfig{History: history, Logger: logger}},
		{"missing logger", SwingConfig{History: history, Sizer: sizer}},
		{"fast not below slow", SwingConfig{History: history, Sizer: sizer, Logger: logger, FastPeriod: 21, SlowPeriod: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewSwingEngine(tt.cfg)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			assert.Nil(t, engine)
		})
	}
}

func TestSwingEngineEvaluateEntry(t *testing.T) {
	ctx := context.Background()
	engine, history, _ := newSwingFixture(t)
	history.data["1594/day"] = crossoverUpDaily()
	history.data["1594/week"] = steadyRising(26)

	dec, err := engine.Evaluate(ctx, testInstrument, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalBuy, dec.Action)
	assert.Equal(t, testInstrument, dec.Instrument)
	assert.Equal(t, 200.0, dec.Price)
	assert.GreaterOrEqual(t, dec.Quantity, 1.0)
	assert.Greater(t, dec.StopLoss, 0.0)
	assert.Less(t, dec.StopLoss, dec.Price)
}

func TestSwingEngineEvaluateExit(t *testing.T) {
	ctx := context.Background()
	engine, history, _ := newSwingFixture(t)
	history.data["1594/day"] = crossoverDownDaily()
	held := &domain.SwingPosition{Token: "1594", Symbol: "INFY-EQ", Quantity: 15, EntryPrice: 90}

	dec, err := engine.Evaluate(ctx, testInstrument, held)
	require.NoError(t, err)

	assert.Equal(t, domain.SignalSell, dec.Action)
	assert.Equal(t, 40.0, dec.Price)
	assert.Equal(t, 15.0, dec.Quantity)
}

func TestSwingEngineEvaluateHolds(t *testing.T) {
	ctx := context.Background()
	held := &domain.SwingPosition{Token: "1594", Quantity: 15, EntryPrice: 90}

	tests := []struct {
		name   string
		daily  []domain.Candle
		weekly []domain.Candle
		held   *domain.SwingPosition
	}{
		{"no fresh cross while flat", steadyRising(22), steadyRising(26), nil},
		{"no fresh cross while held", steadyRising(22), nil, held},
		{"fresh buy cross while held", crossoverUpDaily(), nil, held},
		{"short daily history", steadyRising(4), nil, nil},
		{"weekly trend down blocks entry", crossoverUpDaily(), steadyFalling(26), nil},
		{"short weekly history blocks entry", crossoverUpDaily(), steadyRising(3), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, history, _ := newSwingFixture(t)
			history.data["1594/day"] = tt.daily
			history.data["1594/week"] = tt.weekly

			dec, err := engine.Evaluate(ctx, testInstrument, tt.held)
			require.NoError(t, err)
			assert.Equal(t, domain.SignalHold, dec.Action)
		})
	}
}

func TestSwingEngineEvaluateHistoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("daily history error", func(t *testing.T) {
		engine, history, _ := newSwingFixture(t)
		history.err = errors.New("session expired")

		_, err := engine.Evaluate(ctx, testInstrument, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daily history for INFY-EQ")
	})

	t.Run("weekly fetched only on entry setup", func(t *testing.T) {
		engine, history, _ := newSwingFixture(t)
		history.data["1594/day"] = steadyRising(22)

		_, err := engine.Evaluate(ctx, testInstrument, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"1594/day"}, history.calls)
	})
}

func newPortfolioFixture(t *testing.T, instruments []watchlist.Instrument, maxOpen int) (*PortfolioSwingEngine, *stubHistory, *stubBroker, *SwingPositionStore, *memJournal, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	history := &stubHistory{data: map[string][]domain.Candle{}}

	sizer, err := risk.NewPositionSizer(risk.SizerConfig{Logger: logger})
	require.NoError(t, err)
	engine, err := NewSwingEngine(SwingConfig{
		History:    history,
		Sizer:      sizer,
		Logger:     logger,
		FastPeriod: 3,
		SlowPeriod: 5,
	})
	require.NoError(t, err)

	portfolio, err := risk.NewPortfolioManager(risk.PortfolioConfig{Logger: logger, MaxOpenPositions: maxOpen})
	require.NoError(t, err)

	store := NewSwingPositionStore()
	broker := &stubBroker{}
	journal := &memJournal{}

	scanner, err := NewPortfolioSwingEngine(PortfolioSwingConfig{
		Watchlist: &watchlist.Watchlist{Instruments: instruments},
		Engine:    engine,
		Exposure:  risk.NewExposureController(portfolio),
		Store:     store,
		Broker:    broker,
		Logger:    logger,
		Journal:   journal,
		Workers:   2,
		Now:       func() time.Time { return engineNow },
	})
	require.NoError(t, err)
	return scanner, history, broker, store, journal, logger
}

func TestNewPortfolioSwingEngine(t *testing.T) {
	_, err := NewPortfolioSwingEngine(PortfolioSwingConfig{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestPortfolioSwingScanOpensPosition(t *testing.T) {
	ctx := context.Background()
	quiet := watchlist.Instrument{Symbol: "TATAMOTORS-EQ", Token: "11536", Sector: "AUTO"}
	scanner, history, broker, store, journal, _ := newPortfolioFixture(t, []watchlist.Instrument{testInstrument, quiet}, 0)

	history.data["1594/day"] = crossoverUpDaily()
	history.data["1594/week"] = steadyRising(26)
	history.data["11536/day"] = steadyRising(22)

	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Entered)
	assert.Zero(t, report.Exited)
	assert.Zero(t, report.Rejected)
	assert.Zero(t, report.Failed)

	reqs := broker.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.Buy, reqs[0].Side)
	assert.Equal(t, "INFY-EQ", reqs[0].Symbol)
	assert.Equal(t, "NSE", reqs[0].Exchange)
	assert.Equal(t, "C", reqs[0].Product, "swing orders go out as delivery")

	pos, ok := store.Get("1594")
	require.True(t, ok)
	assert.Equal(t, 200.0, pos.EntryPrice)
	assert.Equal(t, "IT", pos.Sector)
	assert.GreaterOrEqual(t, pos.Quantity, 1.0)

	require.Len(t, journal.opens, 1)
	assert.Equal(t, SwingStrategyName, journal.opens[0].Strategy)
	assert.Equal(t, "INFY-EQ", journal.opens[0].Symbol)
}

func TestPortfolioSwingScanExitsBeforeEntries(t *testing.T) {
	ctx := context.Background()
	exiting := watchlist.Instrument{Symbol: "TATAMOTORS-EQ", Token: "11536", Sector: "AUTO"}
	scanner, history, broker, store, journal, _ := newPortfolioFixture(t, []watchlist.Instrument{testInstrument, exiting}, 0)

	history.data["1594/day"] = crossoverUpDaily()
	history.data["1594/week"] = steadyRising(26)
	history.data["11536/day"] = crossoverDownDaily()
	store.Set(domain.SwingPosition{Token: "11536", Symbol: "TATAMOTORS-EQ", Sector: "AUTO", Quantity: 15, EntryPrice: 90})

	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Entered)
	assert.Equal(t, 1, report.Exited)

	reqs := broker.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.Sell, reqs[0].Side, "exits run before entries")
	assert.Equal(t, "TATAMOTORS-EQ", reqs[0].Symbol)
	assert.Equal(t, domain.Buy, reqs[1].Side)

	_, ok := store.Get("11536")
	assert.False(t, ok)
	_, ok = store.Get("1594")
	assert.True(t, ok)

	require.Len(t, journal.closes, 1)
	assert.Equal(t, "TATAMOTORS-EQ", journal.closes[0].symbol)
	assert.Equal(t, 40.0, journal.closes[0].exitPrice)
	assert.Equal(t, (40.0-90.0)*15, journal.closes[0].pnl)
}

func TestPortfolioSwingScanExposureCapRejects(t *testing.T) {
	ctx := context.Background()
	scanner, history, broker, store, journal, _ := newPortfolioFixture(t, []watchlist.Instrument{testInstrument}, 1)

	history.data["1594/day"] = crossoverUpDaily()
	history.data["1594/week"] = steadyRising(26)
	store.Set(domain.SwingPosition{Token: "999", Symbol: "SBIN-EQ", Sector: "BANK", Quantity: 10, EntryPrice: 100})

	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Rejected)
	assert.Zero(t, report.Entered)
	assert.Empty(t, broker.recorded())
	assert.Empty(t, journal.opens)
	_, ok := store.Get("1594")
	assert.False(t, ok)
}

func TestPortfolioSwingScanBrokerRejection(t *testing.T) {
	ctx := context.Background()
	scanner, history, broker, store, journal, logger := newPortfolioFixture(t, []watchlist.Instrument{testInstrument}, 0)

	history.data["1594/day"] = crossoverUpDaily()
	history.data["1594/week"] = steadyRising(26)
	broker.responses = []stubResponse{
		{res: &ports.OrderResult{Status: "Not_Ok", Message: "RED:Order rejected"}},
	}

	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Entered)
	assert.Zero(t, report.Rejected)
	_, ok := store.Get("1594")
	assert.False(t, ok, "rejected order must not create a position")
	assert.Empty(t, journal.opens)
	assert.Contains(t, logger.errorMsgs, "swing entry order failed")
}

func TestPortfolioSwingScanCountsFailures(t *testing.T) {
	ctx := context.Background()
	scanner, history, broker, _, _, logger := newPortfolioFixture(t, []watchlist.Instrument{testInstrument}, 0)
	history.err = errors.New("session expired")

	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, broker.recorded())
	assert.Contains(t, logger.warnMsgs, "instrument evaluation failed")
}

func TestPortfolioSwingScanFailedExitKeepsPosition(t *testing.T) {
	ctx := context.Background()
	exiting := watchlist.Instrument{Symbol: "TATAMOTORS-EQ", Token: "11536", Sector: "AUTO"}
	scanner, history, broker, store, journal, _ := newPortfolioFixture(t, []watchlist.Instrument{exiting}, 0)

	history.data["11536/day"] = crossoverDownDaily()
	store.Set(domain.SwingPosition{Token: "11536", Symbol: "TATAMOTORS-EQ", Quantity: 15, EntryPrice: 90})
	broker.responses = []stubResponse{{err: errors.New("dial tcp: refused")}}

	report, err := scanner.Scan(ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Exited)
	_, ok := store.Get("11536")
	assert.True(t, ok, "position stays tracked until the exit order succeeds")
	assert.Empty(t, journal.closes)
}
