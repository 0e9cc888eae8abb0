// Package utils holds small file helpers shared by the cmd tools.
package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"algoTradeBot/internal/domain"
)

// WriteCandlesToCSV writes candles with a header row. Times are RFC3339.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"time", "open", "high", "low", "close", "volume"})

	for _, c := range candles {
		writer.Write([]string{
			c.Time.Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadCandlesFromCSV reads a file written by WriteCandlesToCSV.
func ReadCandlesFromCSV(filename string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	candles := make([]domain.Candle, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s line %d: expected 6 columns, got %d", filename, i+2, len(row))
		}
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, i+2, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseCandleRow(row []string) (domain.Candle, error) {
	t, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("bad time: %w", err)
	}

	vals := make([]float64, 5)
	for i, s := range row[1:6] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("bad number %q: %w", s, err)
		}
		vals[i] = v
	}

	return domain.Candle{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// WriteTicksToCSV writes recorded ticks for later replay.
func WriteTicksToCSV(ticks []domain.Tick, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"time", "token", "ltp"})

	for _, tk := range ticks {
		writer.Write([]string{
			tk.Time.Format(time.RFC3339),
			tk.Token,
			strconv.FormatFloat(tk.LTP, 'f', -1, 64),
		})
	}
	return writer.Error()
}

// ReadTicksFromCSV reads a file written by WriteTicksToCSV.
func ReadTicksFromCSV(filename string) ([]domain.Tick, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	ticks := make([]domain.Tick, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 3 {
			return nil, fmt.Errorf("%s line %d: expected 3 columns, got %d", filename, i+2, len(row))
		}
		t, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad time: %w", filename, i+2, err)
		}
		ltp, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad ltp %q: %w", filename, i+2, row[2], err)
		}
		ticks = append(ticks, domain.Tick{Time: t, Token: row[1], LTP: ltp})
	}
	return ticks, nil
}
