package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"algoTradeBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

	in := []domain.Candle{
		{Time: base, Open: 100, High: 102.5, Low: 99.75, Close: 101, Volume: 5200},
		{Time: base.Add(time.Minute), Open: 101, High: 101, Low: 100.25, Close: 100.5, Volume: 3100},
	}
	require.NoError(t, WriteCandlesToCSV(in, path))

	out, err := ReadCandlesFromCSV(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Time.Equal(base))
	assert.InDelta(t, 102.5, out[0].High, 1e-9)
	assert.InDelta(t, 100.5, out[1].Close, 1e-9)
	assert.InDelta(t, 3100, out[1].Volume, 1e-9)
}

func TestReadCandlesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteCandlesToCSV(nil, path))

	out, err := ReadCandlesFromCSV(path)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadCandlesBadRows(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{name: "bad time", body: "time,open,high,low,close,volume\nnot-a-time,1,2,0,1,10\n"},
		{name: "bad number", body: "time,open,high,low,close,volume\n2024-06-03T09:30:00Z,1,x,0,1,10\n"},
		{name: "short row", body: "time,open,high,low,close,volume\n2024-06-03T09:30:00Z,1,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := ReadCandlesFromCSV(path)
			require.Error(t, err)
		})
	}
}

func TestTickCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.csv")
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

	in := []domain.Tick{
		{Time: base, Token: "11536", LTP: 412.5},
		{Time: base.Add(time.Second), Token: "11536", LTP: 412.55},
		{Time: base.Add(2 * time.Second), Token: "1594", LTP: 1501.0},
	}
	require.NoError(t, WriteTicksToCSV(in, path))

	out, err := ReadTicksFromCSV(path)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "11536", out[0].Token)
	assert.InDelta(t, 412.55, out[1].LTP, 1e-9)
	assert.Equal(t, "1594", out[2].Token)
	assert.True(t, out[2].Time.Equal(base.Add(2*time.Second)))
}

func TestReadTicksMissingFile(t *testing.T) {
	_, err := ReadTicksFromCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
