// Package execution places market orders through an injected broker port
// under a single-flight guard, and tracks the broker-side position the
// fills create.
package execution

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

// Rejection reason codes carried in Result.Reason. Rejections are normal
// outcomes, returned without an error so callers can branch on policy.
const (
	ReasonInvalidQuantity   = "INVALID_QUANTITY"
	ReasonOrderInFlight     = "ORDER_IN_FLIGHT"
	ReasonAlreadyInPosition = "ALREADY_IN_POSITION"
	ReasonNoPosition        = "NO_POSITION"
	ReasonNoSymbol          = "SYMBOL_NOT_CONFIGURED"
	ReasonBrokerRejected    = "BROKER_REJECTED"
	ReasonMissingOrderID    = "MISSING_ORDER_ID"
)

// Result is the outcome of a placement attempt. Success implies OrderID
// is set; otherwise Reason names the rejection or failure.
type Result struct {
	Success bool
	OrderID string
	Reason  string
}

func rejected(reason string) Result {
	return Result{Reason: reason}
}

// Config holds the order executor settings.
type Config struct {
	Symbol   string // trading symbol (e.g. "TCS-EQ"); placements reject while empty
	Token    string // instrument token
	Exchange string // exchange segment (default: "NSE")
	Product  string // broker product code (default: "I")
	Validity string // order validity (default: "DAY")

	Broker  ports.OrderPlacer // required
	Logger  ports.Logger      // required
	Limiter *rate.Limiter     // placement rate limit (default: 1/s, burst 1)
	Now     func() time.Time  // clock override for tests (default: time.Now)

	// Execution event callbacks, all optional.
	OnOrderPlaced     func(side domain.OrderSide, orderID string, quantity, price float64)
	OnOrderFailed     func(side domain.OrderSide, reason string)
	OnPositionUpdated func(pos *domain.BrokerPosition)
}

// Executor places market orders one at a time. A second placement while
// one is pending is rejected, not queued. At most one LONG position is
// tracked; BUY opens it and SELL clears it.
type Executor struct {
	symbol   string
	token    string
	exchange string
	product  string
	validity string

	broker  ports.OrderPlacer
	logger  ports.Logger
	limiter *rate.Limiter
	now     func() time.Time

	onOrderPlaced     func(side domain.OrderSide, orderID string, quantity, price float64)
	onOrderFailed     func(side domain.OrderSide, reason string)
	onPositionUpdated func(pos *domain.BrokerPosition)

	mu       sync.Mutex
	inFlight bool
	position *domain.BrokerPosition
}

// New creates an order executor with the given configuration.
func New(cfg Config) (*Executor, error) {
	if cfg.Broker == nil || cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if cfg.Product == "" {
		cfg.Product = "I"
	}
	if cfg.Validity == "" {
		cfg.Validity = "DAY"
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		symbol:            cfg.Symbol,
		token:             cfg.Token,
		exchange:          cfg.Exchange,
		product:           cfg.Product,
		validity:          cfg.Validity,
		broker:            cfg.Broker,
		logger:            cfg.Logger,
		limiter:           cfg.Limiter,
		now:               cfg.Now,
		onOrderPlaced:     cfg.OnOrderPlaced,
		onOrderFailed:     cfg.OnOrderFailed,
		onPositionUpdated: cfg.OnPositionUpdated,
	}, nil
}

// PlaceMarketOrder places one market order. Guards run in fixed order and
// each produces a rejection without touching the broker: quantity, the
// single-flight flag, position state for the side, and symbol
// configuration. Transient broker failures are retried exactly once; a
// non-"Ok" response is a rejection, not an error. The error return is
// reserved for infrastructure failures that survived the retry.
func (e *Executor) PlaceMarketOrder(ctx context.Context, side domain.OrderSide, quantity, price float64) (Result, error) {
	e.mu.Lock()
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity <= 0 {
		e.mu.Unlock()
		return e.fail(ctx, side, ReasonInvalidQuantity), nil
	}
	if e.inFlight {
		e.mu.Unlock()
		return e.fail(ctx, side, ReasonOrderInFlight), nil
	}
	if side == domain.Buy && e.position != nil {
		e.mu.Unlock()
		return e.fail(ctx, side, ReasonAlreadyInPosition), nil
	}
	if side == domain.Sell && e.position == nil {
		e.mu.Unlock()
		return e.fail(ctx, side, ReasonNoPosition), nil
	}
	if e.symbol == "" {
		e.mu.Unlock()
		return e.fail(ctx, side, ReasonNoSymbol), nil
	}
	e.inFlight = true
	e.mu.Unlock()

	// every exit path below must release the single-flight flag
	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	req := ports.OrderRequest{
		Symbol:    e.symbol,
		Token:     e.token,
		Exchange:  e.exchange,
		Side:      side,
		Quantity:  quantity,
		Product:   e.product,
		Validity:  e.validity,
		ClientRef: uuid.NewString(),
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.notifyFailed(side, err.Error())
		return Result{}, err
	}

	res, err := e.broker.PlaceOrder(ctx, req)
	if err != nil && isTransient(err) && ctx.Err() == nil {
		e.logger.Warn(ctx, "transient placement failure, retrying once", map[string]interface{}{
			"symbol": e.symbol,
			"side":   string(side),
			"error":  err.Error(),
		})
		res, err = e.broker.PlaceOrder(ctx, req)
	}
	if err != nil {
		e.logger.Error(ctx, err, "order placement failed", map[string]interface{}{
			"symbol": e.symbol,
			"side":   string(side),
		})
		e.notifyFailed(side, err.Error())
		return Result{}, err
	}

	if !res.Ok() {
		e.logger.Warn(ctx, "order rejected by broker", map[string]interface{}{
			"symbol":  e.symbol,
			"side":    string(side),
			"status":  res.Status,
			"message": res.Message,
		})
		e.notifyFailed(side, res.Message)
		return rejected(ReasonBrokerRejected), nil
	}
	if res.OrderID == "" {
		e.logger.Error(ctx, ports.ErrOrderPlacementFailed, "broker response missing order id", map[string]interface{}{
			"symbol": e.symbol,
			"side":   string(side),
		})
		e.notifyFailed(side, ReasonMissingOrderID)
		return rejected(ReasonMissingOrderID), ports.ErrOrderPlacementFailed
	}

	e.applyFill(side, res.OrderID, quantity, price)

	e.logger.Info(ctx, "order placed", map[string]interface{}{
		"symbol":   e.symbol,
		"side":     string(side),
		"quantity": quantity,
		"price":    price,
		"orderId":  res.OrderID,
	})
	if e.onOrderPlaced != nil {
		e.onOrderPlaced(side, res.OrderID, quantity, price)
	}
	return Result{Success: true, OrderID: res.OrderID}, nil
}

// applyFill updates the tracked position for a successful placement.
func (e *Executor) applyFill(side domain.OrderSide, orderID string, quantity, price float64) {
	e.mu.Lock()
	if side == domain.Buy {
		e.position = &domain.BrokerPosition{
			Side:       domain.Buy,
			Quantity:   quantity,
			OrderID:    orderID,
			EntryPrice: price,
			OpenedAt:   e.now(),
		}
	} else {
		e.position = nil
	}
	pos := e.position
	e.mu.Unlock()

	if e.onPositionUpdated != nil {
		e.onPositionUpdated(pos)
	}
}

func (e *Executor) fail(ctx context.Context, side domain.OrderSide, reason string) Result {
	e.logger.Warn(ctx, "order rejected before broker call", map[string]interface{}{
		"symbol": e.symbol,
		"side":   string(side),
		"reason": reason,
	})
	e.notifyFailed(side, reason)
	return rejected(reason)
}

func (e *Executor) notifyFailed(side domain.OrderSide, reason string) {
	if e.onOrderFailed != nil {
		e.onOrderFailed(side, reason)
	}
}

// Position returns a copy of the tracked position, or nil when flat.
func (e *Executor) Position() *domain.BrokerPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position == nil {
		return nil
	}
	pos := *e.position
	return &pos
}

// InFlight reports whether a placement is currently pending.
func (e *Executor) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// isTransient classifies a placement error as worth the single retry:
// rate-limit and server-side HTTP statuses, the timeout/unavailability
// sentinels, or an error message that smells like a network blip.
func isTransient(err error) bool {
	var apiErr *ports.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, ports.ErrRateLimited) || errors.Is(err, ports.ErrTimeout) ||
		errors.Is(err, ports.ErrBrokerUnavailable) || errors.Is(err, ports.ErrConnectionFailed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "timed out", "network", "unavailable", "connection reset", "temporarily"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
