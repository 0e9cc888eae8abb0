package backtesting

import (
	"context"
	"testing"
	"time"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// scriptedStrategy emits a fixed signal per candle index, recording the
// candle times it sees.
type scriptedStrategy struct {
	name    string
	signals map[int]domain.SignalType
	state   domain.StrategyState
	calls   int
	times   []time.Time
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) State() domain.StrategyState { return s.state }

func (s *scriptedStrategy) OnCandle(ctx context.Context, candle domain.Candle) *domain.Signal {
	idx := s.calls
	s.calls++
	s.times = append(s.times, candle.Time)

	typ, ok := s.signals[idx]
	if !ok {
		return nil
	}
	switch typ {
	case domain.SignalBuy:
		s.state = domain.StateLong
	case domain.SignalSell:
		s.state = domain.StateFlat
	}
	return &domain.Signal{Type: typ, State: s.state, Strategy: s.name, Candle: candle}
}

func newTestRisk(t *testing.T) *risk.Manager {
	t.Helper()
	m, err := risk.New(risk.Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	return m
}

func testCandles(prices ...float64) []domain.Candle {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	candles := make([]domain.Candle, len(prices))
	for i, p := range prices {
		candles[i] = domain.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: p, High: p, Low: p, Close: p,
		}
	}
	return candles
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	candles := testCandles(100)
	strat := &scriptedStrategy{name: "s"}

	_, err := Run(ctx, nil, newTestRisk(t), candles, Config{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = Run(ctx, strat, nil, candles, Config{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = Run(ctx, strat, newTestRisk(t), nil, Config{})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestRunSingleRoundTrip(t *testing.T) {
	strat := &scriptedStrategy{
		name: "ema_crossover",
		signals: map[int]domain.SignalType{
			1: domain.SignalBuy,
			3: domain.SignalSell,
		},
	}
	candles := testCandles(99, 100, 101, 103, 102)

	res, err := Run(context.Background(), strat, newTestRisk(t), candles, Config{
		Symbol:       "TATAMOTORS-EQ",
		InitialFunds: 100000,
	})
	require.NoError(t, err)

	// Default sizing: (100000*1%)/(100*2%) = 500 units, exit +3 points.
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Zero(t, res.LosingTrades)
	assert.InDelta(t, 1.0, res.WinRate, 1e-9)
	assert.InDelta(t, 1500.0, res.TotalProfit, 1e-9)
	assert.InDelta(t, 101500.0, res.FinalBalance, 1e-9)
	assert.InDelta(t, 0.015, res.ReturnOnInvestment, 1e-9)
	assert.Zero(t, res.MaxDrawdown)
	assert.Nil(t, res.Open)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, "TATAMOTORS-EQ", trade.Symbol)
	assert.Equal(t, "ema_crossover", trade.Strategy)
	assert.Equal(t, domain.TradeClosed, trade.Status)
	assert.InDelta(t, 500.0, trade.Quantity, 1e-9)
	assert.InDelta(t, 100.0, trade.EntryPrice, 1e-9)
	require.NotNil(t, trade.ExitPrice)
	assert.InDelta(t, 103.0, *trade.ExitPrice, 1e-9)
	require.NotNil(t, trade.PnL)
	assert.InDelta(t, 1500.0, *trade.PnL, 1e-9)
	require.NotNil(t, trade.ExitTime)
}

func TestRunLosingTradeUpdatesDrawdown(t *testing.T) {
	strat := &scriptedStrategy{
		name: "ema_crossover",
		signals: map[int]domain.SignalType{
			0: domain.SignalBuy,
			1: domain.SignalSell,
		},
	}
	candles := testCandles(100, 98)

	res, err := Run(context.Background(), strat, newTestRisk(t), candles, Config{InitialFunds: 100000})
	require.NoError(t, err)

	assert.Equal(t, 1, res.LosingTrades)
	assert.InDelta(t, -1000.0, res.TotalProfit, 1e-9)
	assert.InDelta(t, -1000.0, res.AverageLoss, 1e-9)
	assert.InDelta(t, 0.01, res.MaxDrawdown, 1e-9)
	assert.InDelta(t, 99000.0, res.FinalBalance, 1e-9)
	assert.Zero(t, res.WinRate)
}

func TestRunLeavesOpenPosition(t *testing.T) {
	strat := &scriptedStrategy{
		name:    "breakout",
		signals: map[int]domain.SignalType{0: domain.SignalBuy},
	}

	res, err := Run(context.Background(), strat, newTestRisk(t), testCandles(100, 101, 102), Config{InitialFunds: 100000})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalTrades)
	assert.Empty(t, res.Trades)
	require.NotNil(t, res.Open)
	assert.Equal(t, domain.TradeOpen, res.Open.Status)
	assert.Nil(t, res.Open.PnL)
	assert.Zero(t, res.TotalProfit)
}

func TestRunCountsRejections(t *testing.T) {
	strat := &scriptedStrategy{
		name: "ema_crossover",
		signals: map[int]domain.SignalType{
			0: domain.SignalSell, // nothing to sell yet
			1: domain.SignalBuy,
			2: domain.SignalBuy, // already long
		},
	}

	res, err := Run(context.Background(), strat, newTestRisk(t), testCandles(100, 100, 101), Config{InitialFunds: 100000})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.Rejections[risk.ReasonNoPosition])
	assert.Equal(t, 1, res.Rejections[risk.ReasonAlreadyInPosition])
}

func TestRunSortsCandles(t *testing.T) {
	strat := &scriptedStrategy{name: "s"}
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	candles := []domain.Candle{
		{Time: base.Add(2 * time.Minute), Close: 102, Open: 102, High: 102, Low: 102},
		{Time: base, Close: 100, Open: 100, High: 100, Low: 100},
		{Time: base.Add(time.Minute), Close: 101, Open: 101, High: 101, Low: 101},
	}

	_, err := Run(context.Background(), strat, newTestRisk(t), candles, Config{InitialFunds: 100000})
	require.NoError(t, err)

	require.Len(t, strat.times, 3)
	assert.True(t, strat.times[0].Before(strat.times[1]))
	assert.True(t, strat.times[1].Before(strat.times[2]))

	// Caller's slice is not reordered.
	assert.True(t, candles[0].Time.After(candles[1].Time))
}

func TestSharpeRatio(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
		want    float64
	}{
		{name: "steady gains", returns: []float64{0.1, 0.2, 0.15}, want: 3.0},
		{name: "steady losses", returns: []float64{-0.1, -0.2, -0.15}, want: -3.0},
		{name: "mixed", returns: []float64{-0.1, 0.2, 0.0}, want: 0.2182},
		{name: "single return", returns: []float64{0.1}, want: 0},
		{name: "empty", returns: nil, want: 0},
		{name: "zero variance", returns: []float64{0.1, 0.1, 0.1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, sharpeRatio(tt.returns), 1e-4)
		})
	}
}
