package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/risk"
	"algoTradeBot/internal/strategy/indicators"
	"algoTradeBot/internal/strategy/strategies"
	"algoTradeBot/internal/telemetry"
	"algoTradeBot/internal/watchlist"
)

// SwingStrategyName is the strategy key swing trades are journaled under.
const SwingStrategyName = "swing_ema_crossover"

// SwingDecision is the outcome of evaluating one instrument: enter, exit
// or do nothing. Quantity and StopLoss are only set for BUY, Quantity for
// SELL is the held position size.
type SwingDecision struct {
	Action     domain.SignalType
	Instrument watchlist.Instrument
	Price      float64
	Quantity   float64
	StopLoss   float64
}

// SwingConfig holds the single-instrument swing evaluator settings.
type SwingConfig struct {
	History ports.HistoricalDataSource // required
	Sizer   *risk.PositionSizer        // required
	Logger  ports.Logger               // required

	FastPeriod          int // daily EMA pair (defaults: 9/21)
	SlowPeriod          int
	LookbackMonths      int // daily history window (default: 6)
	TrendLookbackMonths int // weekly history window for the trend filter (default: 12)
}

// SwingEngine evaluates one instrument on the daily timeframe. It replays
// daily candles into a throwaway EMA crossover and acts only on a fresh
// cross on the latest bar: BUY when the weekly crossover agrees the trend
// is up, SELL when a position is held. Short or empty history yields HOLD,
// never an error.
type SwingEngine struct {
	history ports.HistoricalDataSource
	sizer   *risk.PositionSizer
	logger  ports.Logger

	fastPeriod          int
	slowPeriod          int
	lookbackMonths      int
	trendLookbackMonths int
}

// NewSwingEngine creates the daily swing evaluator.
func NewSwingEngine(cfg SwingConfig) (*SwingEngine, error) {
	if cfg.History == nil || cfg.Sizer == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies", ports.ErrConfigurationError)
	}
	if cfg.FastPeriod == 0 {
		cfg.FastPeriod = 9
	}
	if cfg.SlowPeriod == 0 {
		cfg.SlowPeriod = 21
	}
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 || cfg.FastPeriod >= cfg.SlowPeriod {
		return nil, fmt.Errorf("%w: invalid EMA periods %d/%d", ports.ErrConfigurationError, cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.LookbackMonths <= 0 {
		cfg.LookbackMonths = 6
	}
	if cfg.TrendLookbackMonths <= 0 {
		cfg.TrendLookbackMonths = 12
	}
	return &SwingEngine{
		history:             cfg.History,
		sizer:               cfg.Sizer,
		logger:              cfg.Logger,
		fastPeriod:          cfg.FastPeriod,
		slowPeriod:          cfg.SlowPeriod,
		lookbackMonths:      cfg.LookbackMonths,
		trendLookbackMonths: cfg.TrendLookbackMonths,
	}, nil
}

func hold(inst watchlist.Instrument) SwingDecision {
	return SwingDecision{Action: domain.SignalHold, Instrument: inst}
}

// Evaluate decides what to do with one instrument. held is the currently
// open swing position for it, or nil when flat. Errors are reserved for
// data-source failures; thin history and absent signals come back as HOLD.
func (e *SwingEngine) Evaluate(ctx context.Context, inst watchlist.Instrument, held *domain.SwingPosition) (SwingDecision, error) {
	daily, err := e.history.GetHistorical(ctx, inst.Token, domain.IntervalDay, e.lookbackMonths)
	if err != nil {
		return SwingDecision{}, fmt.Errorf("daily history for %s: %w", inst.Symbol, err)
	}
	// A fresh crossover needs both the previous and current EMA pair.
	if len(daily) < e.slowPeriod+1 {
		e.logger.Debug(ctx, "insufficient daily history", map[string]interface{}{
			"symbol":  inst.Symbol,
			"candles": len(daily),
			"need":    e.slowPeriod + 1,
		})
		return hold(inst), nil
	}

	cross, lastClose, err := e.replayCross(ctx, daily)
	if err != nil {
		return SwingDecision{}, fmt.Errorf("daily crossover for %s: %w", inst.Symbol, err)
	}

	if held != nil {
		if cross == domain.SignalSell {
			return SwingDecision{
				Action:     domain.SignalSell,
				Instrument: inst,
				Price:      lastClose,
				Quantity:   held.Quantity,
			}, nil
		}
		return hold(inst), nil
	}

	if cross != domain.SignalBuy {
		return hold(inst), nil
	}

	bullish, err := e.weeklyTrendUp(ctx, inst)
	if err != nil {
		return SwingDecision{}, err
	}
	if !bullish {
		e.logger.Debug(ctx, "entry skipped, weekly trend not up", map[string]interface{}{
			"symbol": inst.Symbol,
		})
		return hold(inst), nil
	}

	quantity := e.sizer.Quantity(ctx, daily, lastClose)
	if quantity <= 0 {
		return hold(inst), nil
	}
	// The sizer risks one ATR per share, so the stop sits one ATR below.
	atr, err := indicators.ATR(daily, e.sizer.ATRPeriod())
	if err != nil {
		return hold(inst), nil
	}

	return SwingDecision{
		Action:     domain.SignalBuy,
		Instrument: inst,
		Price:      lastClose,
		Quantity:   quantity,
		StopLoss:   lastClose - atr,
	}, nil
}

// replayCross feeds the candles into a fresh EMA crossover, oldest first,
// and returns the crossover verdict for the final bar plus its close.
func (e *SwingEngine) replayCross(ctx context.Context, candles []domain.Candle) (domain.SignalType, float64, error) {
	buffer := len(candles) + 1
	if buffer < e.slowPeriod+1 {
		buffer = e.slowPeriod + 1
	}
	ema, err := strategies.NewEMACross(strategies.EMACrossConfig{
		FastPeriod: e.fastPeriod,
		SlowPeriod: e.slowPeriod,
		MaxBuffer:  buffer,
	}, e.logger)
	if err != nil {
		return "", 0, err
	}

	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for _, candle := range sorted {
		ema.OnCandle(ctx, candle)
	}

	cross, fresh := ema.FreshCrossover()
	if !fresh {
		cross = domain.SignalHold
	}
	return cross, sorted[len(sorted)-1].Close, nil
}

// weeklyTrendUp replays weekly candles into a second crossover and reports
// whether the fast EMA sits above the slow one. Too little weekly history
// counts as not-up.
func (e *SwingEngine) weeklyTrendUp(ctx context.Context, inst watchlist.Instrument) (bool, error) {
	weekly, err := e.history.GetHistorical(ctx, inst.Token, domain.IntervalWeek, e.trendLookbackMonths)
	if err != nil {
		return false, fmt.Errorf("weekly history for %s: %w", inst.Symbol, err)
	}
	if len(weekly) < e.slowPeriod {
		e.logger.Debug(ctx, "insufficient weekly history", map[string]interface{}{
			"symbol":  inst.Symbol,
			"candles": len(weekly),
			"need":    e.slowPeriod,
		})
		return false, nil
	}

	buffer := len(weekly) + 1
	if buffer < e.slowPeriod+1 {
		buffer = e.slowPeriod + 1
	}
	ema, err := strategies.NewEMACross(strategies.EMACrossConfig{
		FastPeriod: e.fastPeriod,
		SlowPeriod: e.slowPeriod,
		MaxBuffer:  buffer,
	}, e.logger)
	if err != nil {
		return false, err
	}

	sorted := make([]domain.Candle, len(weekly))
	copy(sorted, weekly)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	for _, candle := range sorted {
		ema.OnCandle(ctx, candle)
	}

	bullish, err := ema.IsBullish()
	if err != nil {
		return false, nil
	}
	return bullish, nil
}

// ScanReport summarizes one portfolio scan.
type ScanReport struct {
	Scanned  int // instruments evaluated
	Failed   int // evaluations that errored
	Entered  int // positions opened
	Exited   int // positions closed
	Rejected int // entries blocked by exposure caps
}

// PortfolioSwingConfig holds the watchlist scanner's collaborators.
type PortfolioSwingConfig struct {
	Watchlist *watchlist.Watchlist     // required
	Engine    *SwingEngine             // required
	Exposure  *risk.ExposureController // required
	Store     *SwingPositionStore      // required
	Broker    ports.OrderPlacer        // required
	Logger    ports.Logger             // required
	Journal   ports.TradeJournal       // optional; nil skips persistence

	Exchange string           // exchange segment (default: "NSE")
	Product  string           // broker product code (default: "C", delivery)
	Workers  int              // concurrent evaluations (default: 4)
	Limiter  *rate.Limiter    // order rate limit (default: 1/s, burst 1)
	Now      func() time.Time // clock override for tests (default: time.Now)
}

// PortfolioSwingEngine scans the watchlist once per invocation: every
// instrument is evaluated concurrently, then the resulting decisions are
// applied sequentially so the exposure checks always see the current book.
// Exits run before entries to free room under the caps.
type PortfolioSwingEngine struct {
	cfg    PortfolioSwingConfig
	logger ports.Logger
	now    func() time.Time
}

// NewPortfolioSwingEngine creates the watchlist scanner.
func NewPortfolioSwingEngine(cfg PortfolioSwingConfig) (*PortfolioSwingEngine, error) {
	if cfg.Watchlist == nil || cfg.Engine == nil || cfg.Exposure == nil ||
		cfg.Store == nil || cfg.Broker == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies", ports.ErrConfigurationError)
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if cfg.Product == "" {
		cfg.Product = "C"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PortfolioSwingEngine{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
	}, nil
}

// Scan evaluates the whole watchlist and applies the decisions. It returns
// an error only when the scan could not run at all; per-instrument
// failures are logged and counted in the report.
func (p *PortfolioSwingEngine) Scan(ctx context.Context) (ScanReport, error) {
	instruments := p.cfg.Watchlist.Instruments
	report := ScanReport{Scanned: len(instruments)}

	p.logger.Info(ctx, "portfolio scan started", map[string]interface{}{
		"instruments": len(instruments),
		"open":        p.cfg.Store.Count(),
	})

	var mu sync.Mutex
	var decisions []SwingDecision
	failed := 0

	pool := pond.New(p.cfg.Workers, len(instruments))
	for _, inst := range instruments {
		inst := inst
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			var held *domain.SwingPosition
			if pos, ok := p.cfg.Store.Get(inst.Token); ok {
				held = &pos
			}
			dec, err := p.cfg.Engine.Evaluate(ctx, inst, held)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				p.logger.Warn(ctx, "instrument evaluation failed", map[string]interface{}{
					"symbol": inst.Symbol,
					"error":  err.Error(),
				})
				return
			}
			if dec.Action != domain.SignalHold {
				decisions = append(decisions, dec)
			}
		})
	}
	pool.StopAndWait()
	report.Failed = failed

	if err := ctx.Err(); err != nil {
		return report, err
	}

	// Exits first, then entries against the freed-up book.
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Action == domain.SignalSell && decisions[j].Action != domain.SignalSell
	})

	for _, dec := range decisions {
		switch dec.Action {
		case domain.SignalSell:
			if p.exit(ctx, dec) {
				report.Exited++
			}
		case domain.SignalBuy:
			switch p.enter(ctx, dec) {
			case enterDone:
				report.Entered++
			case enterRejected:
				report.Rejected++
			}
		}
	}

	p.logger.Info(ctx, "portfolio scan finished", map[string]interface{}{
		"entered":  report.Entered,
		"exited":   report.Exited,
		"rejected": report.Rejected,
		"failed":   report.Failed,
	})
	return report, nil
}

type enterOutcome int

const (
	enterFailed enterOutcome = iota
	enterDone
	enterRejected
)

func (p *PortfolioSwingEngine) enter(ctx context.Context, dec SwingDecision) enterOutcome {
	inst := dec.Instrument
	approval := p.cfg.Exposure.Approve(ctx, p.cfg.Store.All(), inst.Token, inst.Symbol, inst.Sector, dec.Price, dec.Quantity)
	if !approval.Approved {
		telemetry.TradesRejectedTotal.WithLabelValues(approval.Reason).Inc()
		p.logger.Info(ctx, "entry rejected by exposure caps", map[string]interface{}{
			"symbol": inst.Symbol,
			"reason": approval.Reason,
		})
		return enterRejected
	}

	orderID, err := p.placeOrder(ctx, inst, domain.Buy, dec.Quantity)
	if err != nil {
		telemetry.OrdersFailedTotal.WithLabelValues("ERROR").Inc()
		p.logger.Error(ctx, err, "swing entry order failed", map[string]interface{}{
			"symbol": inst.Symbol,
		})
		return enterFailed
	}
	telemetry.OrdersPlacedTotal.WithLabelValues(string(domain.Buy)).Inc()

	p.cfg.Store.Set(domain.SwingPosition{
		Token:      inst.Token,
		Symbol:     inst.Symbol,
		Sector:     inst.Sector,
		Quantity:   dec.Quantity,
		EntryPrice: dec.Price,
		StopLoss:   dec.StopLoss,
		OpenedAt:   p.now(),
	})
	p.logger.Info(ctx, "swing position opened", map[string]interface{}{
		"symbol":   inst.Symbol,
		"orderId":  orderID,
		"quantity": dec.Quantity,
		"price":    dec.Price,
		"stopLoss": dec.StopLoss,
	})

	if p.cfg.Journal != nil {
		trade := &domain.Trade{
			Symbol:     inst.Symbol,
			Strategy:   SwingStrategyName,
			Quantity:   dec.Quantity,
			EntryPrice: dec.Price,
			StopLoss:   dec.StopLoss,
			Status:     domain.TradeOpen,
			EntryTime:  p.now(),
		}
		if _, err := p.cfg.Journal.RecordOpen(ctx, trade); err != nil {
			p.logger.Error(ctx, err, "failed to journal swing entry", map[string]interface{}{
				"symbol": inst.Symbol,
			})
		}
	}
	return enterDone
}

func (p *PortfolioSwingEngine) exit(ctx context.Context, dec SwingDecision) bool {
	inst := dec.Instrument
	held, ok := p.cfg.Store.Get(inst.Token)
	if !ok {
		return false
	}

	orderID, err := p.placeOrder(ctx, inst, domain.Sell, dec.Quantity)
	if err != nil {
		telemetry.OrdersFailedTotal.WithLabelValues("ERROR").Inc()
		p.logger.Error(ctx, err, "swing exit order failed, position kept", map[string]interface{}{
			"symbol": inst.Symbol,
		})
		return false
	}
	telemetry.OrdersPlacedTotal.WithLabelValues(string(domain.Sell)).Inc()

	p.cfg.Store.Remove(inst.Token)
	pnl := (dec.Price - held.EntryPrice) * held.Quantity
	p.logger.Info(ctx, "swing position closed", map[string]interface{}{
		"symbol":  inst.Symbol,
		"orderId": orderID,
		"price":   dec.Price,
		"pnl":     pnl,
	})

	if p.cfg.Journal != nil {
		if err := p.cfg.Journal.RecordClose(ctx, inst.Symbol, SwingStrategyName, dec.Price, pnl, p.now()); err != nil {
			p.logger.Error(ctx, err, "failed to journal swing exit", map[string]interface{}{
				"symbol": inst.Symbol,
			})
		}
	}
	return true
}

func (p *PortfolioSwingEngine) placeOrder(ctx context.Context, inst watchlist.Instrument, side domain.OrderSide, quantity float64) (string, error) {
	if err := p.cfg.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	res, err := p.cfg.Broker.PlaceOrder(ctx, ports.OrderRequest{
		Symbol:    inst.Symbol,
		Token:     inst.Token,
		Exchange:  p.cfg.Exchange,
		Side:      side,
		Quantity:  quantity,
		Product:   p.cfg.Product,
		Validity:  "DAY",
		ClientRef: uuid.NewString(),
	})
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("%w: %s", ports.ErrOrderRejected, res.Message)
	}
	return res.OrderID, nil
}
