// Package market turns the raw tick stream into fixed-interval candles.
package market

import (
	"context"
	"math"
	"sync"
	"time"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

const (
	defaultInterval   = time.Minute
	defaultHistoryCap = 500
)

// Config holds the aggregator settings.
type Config struct {
	Interval   time.Duration    // candle width (default: 1 minute)
	HistoryCap int              // finalized candles retained (default: 500)
	Logger     ports.Logger     // required
	Now        func() time.Time // clock override for tests (default: time.Now)
}

// Aggregator buckets ticks into candles of a fixed interval. A tick lands in
// the bucket its own timestamp falls in: a late tick finalizes the forming
// candle and reopens its own bucket, so feeds that replay out of order
// produce out-of-order history. A boundary timer finalizes the forming
// candle when the market goes quiet past the bucket end.
type Aggregator struct {
	interval   time.Duration
	historyCap int
	logger     ports.Logger
	now        func() time.Time

	mu       sync.Mutex
	current  *domain.Candle
	history  []domain.Candle
	handlers []func(domain.Candle)

	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates an aggregator with the given configuration.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		interval:   cfg.Interval,
		historyCap: cfg.HistoryCap,
		logger:     cfg.Logger,
		now:        cfg.Now,
		done:       make(chan struct{}),
	}, nil
}

// Subscribe registers a handler for finalized candles. Handlers run
// synchronously on the goroutine that finalized the candle, after the
// aggregator's lock is released.
func (a *Aggregator) Subscribe(fn func(domain.Candle)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, fn)
}

// AddTick folds a tick into the forming candle. Non-finite prices are
// dropped. A tick whose bucket differs from the forming candle's finalizes
// the forming candle and opens a new one at the tick's own bucket.
func (a *Aggregator) AddTick(price float64, ts time.Time) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		a.logger.Debug(context.Background(), "dropping malformed tick", map[string]interface{}{"price": price})
		return
	}

	bucket := ts.Truncate(a.interval)

	a.mu.Lock()
	var finalized *domain.Candle
	var handlers []func(domain.Candle)
	switch {
	case a.current == nil:
		a.openLocked(bucket, price)
	case bucket.Equal(a.current.Time):
		if price > a.current.High {
			a.current.High = price
		}
		if price < a.current.Low {
			a.current.Low = price
		}
		a.current.Close = price
	default:
		finalized = a.finalizeLocked()
		handlers = a.handlers
		a.openLocked(bucket, price)
	}
	a.mu.Unlock()

	if finalized != nil {
		a.emit(*finalized, handlers)
	}
}

// Start launches the boundary timer, which fires at the next wall-clock
// interval boundary and every interval after that, finalizing a forming
// candle whose bucket has passed.
func (a *Aggregator) Start(ctx context.Context) error {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if a.started {
		return ports.ErrDuplicateEntry
	}
	a.started = true

	a.wg.Add(1)
	go a.boundaryLoop(ctx)
	return nil
}

// Stop cancels the boundary timer and waits for it to exit. Safe to call
// more than once.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.wg.Wait()
}

// Candles returns a copy of the finalized history, oldest first.
func (a *Aggregator) Candles() []domain.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Candle, len(a.history))
	copy(out, a.history)
	return out
}

// CurrentCandle returns a copy of the forming candle, or nil when no tick
// has arrived since the last finalization.
func (a *Aggregator) CurrentCandle() *domain.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	c := *a.current
	return &c
}

func (a *Aggregator) boundaryLoop(ctx context.Context) {
	defer a.wg.Done()

	first := time.NewTimer(a.untilNextBoundary())
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-a.done:
		return
	case <-first.C:
		a.flushElapsed()
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.flushElapsed()
		}
	}
}

func (a *Aggregator) untilNextBoundary() time.Duration {
	now := a.now()
	next := now.Truncate(a.interval).Add(a.interval)
	return next.Sub(now)
}

// flushElapsed finalizes the forming candle if its bucket has ended.
func (a *Aggregator) flushElapsed() {
	now := a.now()

	a.mu.Lock()
	if a.current == nil || now.Before(a.current.Time.Add(a.interval)) {
		a.mu.Unlock()
		return
	}
	finalized := a.finalizeLocked()
	handlers := a.handlers
	a.mu.Unlock()

	a.emit(*finalized, handlers)
}

func (a *Aggregator) openLocked(bucket time.Time, price float64) {
	a.current = &domain.Candle{
		Time:  bucket,
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
}

// finalizeLocked moves the forming candle into history, enforcing the cap.
func (a *Aggregator) finalizeLocked() *domain.Candle {
	c := a.current
	a.current = nil
	a.history = append(a.history, *c)
	if len(a.history) > a.historyCap {
		a.history = a.history[len(a.history)-a.historyCap:]
	}
	return c
}

func (a *Aggregator) emit(c domain.Candle, handlers []func(domain.Candle)) {
	a.logger.Debug(context.Background(), "candle finalized", map[string]interface{}{
		"time":  c.Time,
		"open":  c.Open,
		"high":  c.High,
		"low":   c.Low,
		"close": c.Close,
	})
	for _, fn := range handlers {
		fn(c)
	}
}
