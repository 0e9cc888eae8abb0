package telemetry

import (
	"context"
	"testing"

	"algoTradeBot/internal/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(TicksTotal)
	TicksTotal.Inc()
	TicksTotal.Inc()
	assert.InDelta(t, before+2, testutil.ToFloat64(TicksTotal), 1e-9)

	beforeRejected := testutil.ToFloat64(TradesRejectedTotal.WithLabelValues("NO_POSITION"))
	TradesRejectedTotal.WithLabelValues("NO_POSITION").Inc()
	assert.InDelta(t, beforeRejected+1, testutil.ToFloat64(TradesRejectedTotal.WithLabelValues("NO_POSITION")), 1e-9)
}

func TestGaugesTrackState(t *testing.T) {
	FeedState.Set(2)
	assert.InDelta(t, 2, testutil.ToFloat64(FeedState), 1e-9)

	DailyLoss.Set(1250.5)
	assert.InDelta(t, 1250.5, testutil.ToFloat64(DailyLoss), 1e-9)
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(9090, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	s, err := NewServer(9090, &mockLogger{})
	require.NoError(t, err)

	// Stop without Start is a no-op.
	require.NoError(t, s.Stop(context.Background()))
}
