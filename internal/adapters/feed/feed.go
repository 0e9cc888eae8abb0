package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
	"algoTradeBot/internal/telemetry"
)

// Conn is the subset of *websocket.Conn the feed uses, injectable for
// tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a websocket connection to the feed endpoint.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConnectionFailed, err)
	}
	return conn, nil
}

// Config holds the market data feed settings.
type Config struct {
	URL          string
	AccountID    string   // broker account id for the auth frame
	SessionToken string   // session credential, required
	Tokens       []string // instrument tokens to subscribe, at least one

	BackoffMin        time.Duration // first reconnect delay (default: 2s)
	BackoffMax        time.Duration // reconnect delay cap (default: 60s)
	MaxReconnects     int           // attempt ceiling before giving up (default: 10)
	HeartbeatInterval time.Duration // keep-alive period (default: 30s)

	Logger ports.Logger     // required
	Dial   DialFunc         // connection factory (default: gorilla dialer)
	Now    func() time.Time // clock override for tests (default: time.Now)

	// Event callbacks, all optional. OnTick and OnError fire from the read
	// goroutine; they must not block.
	OnTick        func(tick domain.Tick)
	OnStateChange func(state ports.FeedState)
	OnError       func(err error)
}

// Feed is a reconnecting tick stream. Intent (open/closed) is tracked
// separately from the socket lifecycle: an unexpected close while intent
// is open triggers backoff reconnection, while Disconnect flips intent to
// closed so the same close is final.
type Feed struct {
	url          string
	accountID    string
	sessionToken string
	tokens       []string

	maxReconnects int
	heartbeat     time.Duration

	logger ports.Logger
	dial   DialFunc
	now    func() time.Time

	onTick        func(tick domain.Tick)
	onStateChange func(state ports.FeedState)
	onError       func(err error)

	backoff *backoff.Backoff

	mu        sync.Mutex
	intent    bool // true while the caller wants the feed open
	state     ports.FeedState
	conn      Conn
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastTicks map[string]domain.Tick
}

// New creates a market data feed with the given configuration.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 2 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 10
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = gorillaDial
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Feed{
		url:           cfg.URL,
		accountID:     cfg.AccountID,
		sessionToken:  cfg.SessionToken,
		tokens:        append([]string(nil), cfg.Tokens...),
		maxReconnects: cfg.MaxReconnects,
		heartbeat:     cfg.HeartbeatInterval,
		logger:        cfg.Logger,
		dial:          cfg.Dial,
		now:           cfg.Now,
		onTick:        cfg.OnTick,
		onStateChange: cfg.OnStateChange,
		onError:       cfg.OnError,
		backoff: &backoff.Backoff{
			Min:    cfg.BackoffMin,
			Max:    cfg.BackoffMax,
			Factor: 2,
		},
		state:     ports.FeedDisconnected,
		lastTicks: make(map[string]domain.Tick),
	}, nil
}

// Connect opens the feed: dials, sends the auth frame and the subscribe
// frame, then starts the read and heartbeat loops. It returns an error
// when credentials or subscriptions are missing or the first handshake
// fails; reconnection after that is handled internally. The context
// governs the feed's lifetime; cancelling it stops the loops just like
// Disconnect.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.intent {
		f.mu.Unlock()
		return nil
	}
	if f.sessionToken == "" {
		f.mu.Unlock()
		return fmt.Errorf("%w: missing session token", ports.ErrAuthenticationFailed)
	}
	if len(f.tokens) == 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: no subscription tokens", ports.ErrConfigurationError)
	}
	f.intent = true
	changed := f.setStateLocked(ports.FeedConnecting)
	f.mu.Unlock()
	f.notifyState(changed, ports.FeedConnecting)

	conn, err := f.dialAndHandshake(ctx)
	if err != nil {
		f.mu.Lock()
		f.intent = false
		changed = f.setStateLocked(ports.FeedDisconnected)
		f.mu.Unlock()
		f.notifyState(changed, ports.FeedDisconnected)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	if !f.intent {
		f.mu.Unlock()
		cancel()
		conn.Close()
		return fmt.Errorf("%w: feed closed during connect", ports.ErrContextCanceled)
	}
	f.conn = conn
	f.cancel = cancel
	f.backoff.Reset()
	changed = f.setStateLocked(ports.FeedConnected)
	f.mu.Unlock()
	f.notifyState(changed, ports.FeedConnected)

	f.logger.Info(ctx, "feed connected", map[string]interface{}{
		"url":    f.url,
		"tokens": len(f.tokens),
	})

	f.wg.Add(2)
	go f.readLoop(runCtx)
	go f.heartbeatLoop(runCtx)
	return nil
}

// Disconnect flips intent to closed, cancels the reconnect and heartbeat
// timers and closes the socket. Safe to call repeatedly; only the first
// call emits the DISCONNECTED state change.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	if !f.intent && f.state == ports.FeedDisconnected {
		f.mu.Unlock()
		return
	}
	f.intent = false
	cancel := f.cancel
	conn := f.conn
	f.cancel = nil
	f.conn = nil
	changed := f.setStateLocked(ports.FeedDisconnected)
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	f.wg.Wait()
	f.notifyState(changed, ports.FeedDisconnected)
	f.logger.Info(context.Background(), "feed disconnected", nil)
}

// State returns the current connection state.
func (f *Feed) State() ports.FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Snapshot returns the last tick seen per instrument token.
func (f *Feed) Snapshot() map[string]domain.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.Tick, len(f.lastTicks))
	for token, tick := range f.lastTicks {
		out[token] = tick
	}
	return out
}

func (f *Feed) dialAndHandshake(ctx context.Context) (Conn, error) {
	conn, err := f.dial(ctx, f.url)
	if err != nil {
		return nil, err
	}

	auth, err := EncodeFrame(MsgAuth, []byte(f.accountID+"|"+f.sessionToken))
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: auth frame: %v", ports.ErrAuthenticationFailed, err)
	}

	sub, err := EncodeFrame(MsgSubscribe, []byte(strings.Join(f.tokens, "#")))
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: subscribe frame: %v", ports.ErrConnectionFailed, err)
	}
	return conn, nil
}

// readLoop pumps messages off the socket and, when the socket dies while
// intent is open, runs the backoff reconnect cycle.
func (f *Feed) readLoop(ctx context.Context) {
	defer f.wg.Done()

	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err == nil {
			f.handleMessage(ctx, msg)
			continue
		}

		f.mu.Lock()
		wantOpen := f.intent
		f.mu.Unlock()
		if !wantOpen || ctx.Err() != nil {
			return
		}

		f.logger.Warn(ctx, "feed connection lost", map[string]interface{}{"error": err.Error()})
		if !f.reconnect(ctx) {
			return
		}
	}
}

// reconnect retries the dial/handshake with exponential backoff until it
// succeeds, the attempt ceiling is hit, or the feed is closed. Reports
// whether reading should resume.
func (f *Feed) reconnect(ctx context.Context) bool {
	f.mu.Lock()
	changed := f.setStateLocked(ports.FeedReconnecting)
	f.mu.Unlock()
	f.notifyState(changed, ports.FeedReconnecting)

	for {
		if int(f.backoff.Attempt()) >= f.maxReconnects {
			f.logger.Error(ctx, ports.ErrReconnectExhausted, "feed reconnect attempts exhausted", map[string]interface{}{
				"attempts": f.maxReconnects,
			})
			f.notifyError(ports.ErrReconnectExhausted)
			f.mu.Lock()
			f.intent = false
			f.conn = nil
			cancel := f.cancel
			f.cancel = nil
			changed = f.setStateLocked(ports.FeedDisconnected)
			f.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			f.notifyState(changed, ports.FeedDisconnected)
			return false
		}

		delay := f.backoff.Duration()
		f.logger.Info(ctx, "feed reconnecting", map[string]interface{}{
			"attempt": int(f.backoff.Attempt()),
			"delay":   delay.String(),
		})

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		f.mu.Lock()
		wantOpen := f.intent
		f.mu.Unlock()
		if !wantOpen {
			return false
		}

		conn, err := f.dialAndHandshake(ctx)
		if err != nil {
			f.logger.Warn(ctx, "feed reconnect attempt failed", map[string]interface{}{"error": err.Error()})
			continue
		}

		f.mu.Lock()
		if !f.intent {
			f.mu.Unlock()
			conn.Close()
			return false
		}
		f.conn = conn
		f.backoff.Reset()
		changed = f.setStateLocked(ports.FeedConnected)
		f.mu.Unlock()
		f.notifyState(changed, ports.FeedConnected)
		f.logger.Info(ctx, "feed reconnected", nil)
		return true
	}
}

// handleMessage decodes one websocket message. Bad frames are logged and
// dropped; the connection survives.
func (f *Feed) handleMessage(ctx context.Context, msg []byte) {
	frames, err := DecodeAll(msg)
	if err != nil {
		telemetry.MalformedFramesTotal.Inc()
		f.logger.Warn(ctx, "feed message parse failure", map[string]interface{}{
			"error": err.Error(),
			"bytes": len(msg),
		})
		f.notifyError(err)
	}
	for _, frame := range frames {
		if frame.Type != MsgTick {
			continue
		}
		ltp, err := TickLTP(frame.Payload)
		if err != nil {
			telemetry.MalformedFramesTotal.Inc()
			f.logger.Warn(ctx, "feed tick parse failure", map[string]interface{}{"error": err.Error()})
			f.notifyError(err)
			continue
		}
		token := TickToken(frame.Payload)
		if token == "" && len(f.tokens) == 1 {
			token = f.tokens[0]
		}
		tick := domain.Tick{Token: token, LTP: ltp, Time: f.now()}

		f.mu.Lock()
		f.lastTicks[token] = tick
		f.mu.Unlock()

		if f.onTick != nil {
			f.onTick(tick)
		}
	}
}

// heartbeatLoop sends a keep-alive frame on a fixed period while the feed
// is connected.
func (f *Feed) heartbeatLoop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.heartbeat)
	defer ticker.Stop()

	frame, err := EncodeFrame(MsgHeartbeat, nil)
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			connected := f.state == ports.FeedConnected
			f.mu.Unlock()
			if conn == nil || !connected {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				f.logger.Warn(ctx, "feed heartbeat failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// setStateLocked updates the state and reports whether it changed. The
// caller emits the change after releasing the lock.
func (f *Feed) setStateLocked(state ports.FeedState) bool {
	if f.state == state {
		return false
	}
	f.state = state
	return true
}

func (f *Feed) notifyState(changed bool, state ports.FeedState) {
	if changed && f.onStateChange != nil {
		f.onStateChange(state)
	}
}

func (f *Feed) notifyError(err error) {
	if f.onError != nil {
		f.onError(err)
	}
}
