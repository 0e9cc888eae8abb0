// Package app wires the adapters and core services into runnable trading
// engines: the intraday tick-driven BotEngine and the daily swing engines.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/execution"
	"algoTradeBot/internal/market"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/telemetry"
)

// BotConfig holds the intraday engine's collaborators and settings.
type BotConfig struct {
	Symbol       string // journal symbol for recorded trades
	Token        string // instrument token used for warmup history
	WarmupMonths int    // months of daily candles replayed on start (default: 3)

	Logger     ports.Logger                // required
	Feed       ports.TickStream            // required
	Aggregator *market.Aggregator          // required
	Strategies []ports.Strategy            // required, at least one
	Risk       *risk.Manager               // required
	Executor   *execution.Executor         // required
	History    ports.HistoricalDataSource  // optional; nil starts cold
	Journal    ports.TradeJournal          // optional; nil skips persistence
	Metrics    *telemetry.Server           // optional
	Now        func() time.Time            // clock override for tests (default: time.Now)
}

// BotEngine runs the live intraday pipeline: ticks from the feed are
// aggregated into candles, every candle is offered to each strategy, and
// non-HOLD signals flow through the risk manager to the order executor.
// Fills and exits are journaled; journal failures never stop trading.
//
// The engine does not construct its collaborators. Feed callbacks are wired
// by the caller to OnTick, OnFeedState and OnFeedError, and the risk
// manager's circuit-breaker callback to OnCircuitBreaker.
type BotEngine struct {
	cfg    BotConfig
	logger ports.Logger
	now    func() time.Time

	failCh chan error

	mu        sync.Mutex
	started   bool
	haltedDay string
}

// NewBotEngine creates the intraday engine.
func NewBotEngine(cfg BotConfig) (*BotEngine, error) {
	if cfg.Logger == nil || cfg.Feed == nil || cfg.Aggregator == nil ||
		cfg.Risk == nil || cfg.Executor == nil || len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("%w: missing required dependencies", ports.ErrConfigurationError)
	}
	if cfg.WarmupMonths <= 0 {
		cfg.WarmupMonths = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BotEngine{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
		failCh: make(chan error, 1),
	}, nil
}

// Start runs the engine until ctx is canceled, a shutdown signal arrives or
// the feed fails terminally. It blocks for the lifetime of the bot.
func (e *BotEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ports.ErrDuplicateEntry
	}
	e.started = true
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			e.logger.Info(ctx, "received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	e.logger.Info(ctx, "starting trading engine", map[string]interface{}{
		"symbol":     e.cfg.Symbol,
		"strategies": len(e.cfg.Strategies),
	})

	// 1. Replay historical candles so the strategies start with warm
	// indicator state instead of waiting for live candles to accumulate.
	e.warmup(ctx)

	// 2. Candle subscription must be in place before the aggregator starts.
	e.cfg.Aggregator.Subscribe(e.onCandle)
	if err := e.cfg.Aggregator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start candle aggregator: %w", err)
	}

	// 3. Everything below runs until the first branch errors or ctx ends.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.cfg.Feed.Connect(gctx); err != nil {
			return fmt.Errorf("failed to connect tick feed: %w", err)
		}
		defer e.cfg.Feed.Disconnect()
		select {
		case <-gctx.Done():
			return nil
		case err := <-e.failCh:
			return err
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		e.cfg.Aggregator.Stop()
		return nil
	})

	if e.cfg.Metrics != nil {
		g.Go(func() error {
			e.cfg.Metrics.Start(gctx)
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			return e.cfg.Metrics.Stop(stopCtx)
		})
	}

	err := g.Wait()
	e.logger.Info(context.Background(), "trading engine stopped")
	return err
}

// warmup loads daily candles through the historical port and replays them
// into every strategy. Signals produced during replay are discarded; only
// indicator and position state matters here. Failures are not fatal, the
// engine just starts with cold strategies.
func (e *BotEngine) warmup(ctx context.Context) {
	if e.cfg.History == nil {
		e.logger.Warn(ctx, "no historical source configured, strategies start cold")
		return
	}

	candles, err := e.cfg.History.GetHistorical(ctx, e.cfg.Token, domain.IntervalDay, e.cfg.WarmupMonths)
	if err != nil {
		e.logger.Error(ctx, err, "failed to load warmup candles, strategies start cold", map[string]interface{}{
			"token":  e.cfg.Token,
			"months": e.cfg.WarmupMonths,
		})
		return
	}
	if len(candles) == 0 {
		e.logger.Warn(ctx, "no warmup candles returned, strategies start cold", map[string]interface{}{
			"token": e.cfg.Token,
		})
		return
	}

	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for _, candle := range sorted {
		for _, strat := range e.cfg.Strategies {
			strat.OnCandle(ctx, candle)
		}
	}

	e.logger.Info(ctx, "strategy warmup complete", map[string]interface{}{
		"candles": len(sorted),
		"from":    sorted[0].Time,
		"to":      sorted[len(sorted)-1].Time,
	})
}

// OnTick is the feed tick handler. Wire it to the feed's OnTick callback.
func (e *BotEngine) OnTick(tick domain.Tick) {
	telemetry.TicksTotal.Inc()
	if !tick.HasPrice() {
		return
	}
	e.cfg.Aggregator.AddTick(tick.LTP, tick.Time)
}

// OnFeedState is the feed state handler. Wire it to the feed's
// OnStateChange callback.
func (e *BotEngine) OnFeedState(state ports.FeedState) {
	telemetry.FeedState.Set(float64(state))
	if state == ports.FeedReconnecting {
		telemetry.FeedReconnectsTotal.Inc()
	}
	e.logger.Info(context.Background(), "feed state changed", map[string]interface{}{
		"state": state.String(),
	})
}

// OnFeedError is the feed error handler. Wire it to the feed's OnError
// callback. Exhausted reconnects shut the engine down; everything else is
// logged and survived.
func (e *BotEngine) OnFeedError(err error) {
	ctx := context.Background()
	if errors.Is(err, ports.ErrReconnectExhausted) {
		e.logger.Error(ctx, err, "tick feed failed terminally, stopping engine")
		select {
		case e.failCh <- err:
		default:
		}
		return
	}
	e.logger.Warn(ctx, "feed error", map[string]interface{}{"error": err.Error()})
}

// OnCircuitBreaker marks the day halted so no further entries are attempted
// until the next date rollover. Wire it to the risk manager's
// OnCircuitBreaker callback. Exits are never halted.
func (e *BotEngine) OnCircuitBreaker(day string, loss float64) {
	e.mu.Lock()
	e.haltedDay = day
	e.mu.Unlock()
	e.logger.Warn(context.Background(), "daily loss breaker tripped, entries halted for the day", map[string]interface{}{
		"day":       day,
		"dailyLoss": loss,
	})
}

// Halted reports whether entries are currently suppressed by the breaker.
func (e *BotEngine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.haltedDay != "" && e.haltedDay == e.now().Format("2006-01-02")
}

// onCandle runs the strategy pipeline for one closed candle. The aggregator
// invokes subscribers sequentially, so there is no concurrent candle
// processing to guard against.
func (e *BotEngine) onCandle(candle domain.Candle) {
	ctx := context.Background()
	telemetry.CandlesTotal.Inc()

	for _, strat := range e.cfg.Strategies {
		sig := strat.OnCandle(ctx, candle)
		if sig == nil {
			continue
		}
		telemetry.SignalsTotal.WithLabelValues(sig.Strategy, string(sig.Type)).Inc()
		if sig.Type == domain.SignalHold {
			continue
		}
		if sig.Type == domain.SignalBuy && e.Halted() {
			e.logger.Debug(ctx, "entry suppressed, daily loss breaker active", map[string]interface{}{
				"strategy": sig.Strategy,
			})
			continue
		}
		e.handleSignal(ctx, sig)
	}

	telemetry.DailyLoss.Set(e.cfg.Risk.DailyLoss())
}

// handleSignal takes one BUY or SELL signal through risk approval and order
// placement. An approved trade whose order then fails leaves the risk
// manager holding state the broker never got; that divergence is repaired
// here for entries and logged loudly for exits.
func (e *BotEngine) handleSignal(ctx context.Context, sig *domain.Signal) {
	op := "handleSignal"
	price := sig.Candle.Close

	approval := e.cfg.Risk.ApproveTrade(ctx, sig.Type, price, sig.Strategy)
	if !approval.Approved {
		telemetry.TradesRejectedTotal.WithLabelValues(approval.Reason).Inc()
		e.logger.Info(ctx, "trade rejected", map[string]interface{}{
			"op":       op,
			"strategy": sig.Strategy,
			"signal":   string(sig.Type),
			"reason":   approval.Reason,
		})
		return
	}
	telemetry.TradesApprovedTotal.Inc()

	side := domain.Buy
	if sig.Type == domain.SignalSell {
		side = domain.Sell
	}

	res, err := e.cfg.Executor.PlaceMarketOrder(ctx, side, approval.Quantity, price)
	if err != nil || !res.Success {
		reason := res.Reason
		if reason == "" {
			reason = "ERROR"
		}
		telemetry.OrdersFailedTotal.WithLabelValues(reason).Inc()
		if side == domain.Buy {
			// The approval opened a tracked position that no broker order
			// backs. Clear it so the strategy key is not stuck long.
			e.cfg.Risk.ClearPosition(ctx, sig.Strategy)
		}
		if err == nil {
			err = fmt.Errorf("order not placed: %s", reason)
		}
		e.logger.Error(ctx, err, "order failed after risk approval", map[string]interface{}{
			"op":       op,
			"strategy": sig.Strategy,
			"side":     string(side),
			"reason":   reason,
		})
		return
	}

	telemetry.OrdersPlacedTotal.WithLabelValues(string(side)).Inc()
	e.logger.Info(ctx, "order placed", map[string]interface{}{
		"op":       op,
		"strategy": sig.Strategy,
		"side":     string(side),
		"orderId":  res.OrderID,
		"quantity": approval.Quantity,
		"price":    price,
	})

	if side == domain.Buy {
		e.journalOpen(ctx, sig, approval, price)
	} else {
		e.journalClose(ctx, sig, approval, price)
	}
}

func (e *BotEngine) journalOpen(ctx context.Context, sig *domain.Signal, approval risk.Approval, price float64) {
	if e.cfg.Journal == nil {
		return
	}
	trade := &domain.Trade{
		Symbol:     e.cfg.Symbol,
		Strategy:   sig.Strategy,
		Quantity:   approval.Quantity,
		EntryPrice: price,
		StopLoss:   approval.StopLoss,
		Target:     approval.Target,
		Status:     domain.TradeOpen,
		EntryTime:  e.now(),
	}
	if _, err := e.cfg.Journal.RecordOpen(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "failed to journal trade open", map[string]interface{}{
			"strategy": sig.Strategy,
		})
	}
}

func (e *BotEngine) journalClose(ctx context.Context, sig *domain.Signal, approval risk.Approval, price float64) {
	if e.cfg.Journal == nil {
		return
	}
	err := e.cfg.Journal.RecordClose(ctx, e.cfg.Symbol, sig.Strategy, price, approval.RealizedPnL, e.now())
	if err != nil {
		e.logger.Error(ctx, err, "failed to journal trade close", map[string]interface{}{
			"strategy": sig.Strategy,
		})
	}
}
