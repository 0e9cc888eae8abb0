package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeConn is a scriptable Conn. Pushed messages are read in order;
// closing it makes reads and writes fail like a dropped socket.
type fakeConn struct {
	mu        sync.Mutex
	writes    [][]byte
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.incoming:
		return websocket.BinaryMessage, msg, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed network connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(msg []byte) {
	c.incoming <- msg
}

func (c *fakeConn) sentFrames(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var frames []Frame
	for _, w := range c.writes {
		fs, err := DecodeAll(w)
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	return frames
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// scriptDialer hands out scripted connections in order; an exhausted
// script fails the dial.
type scriptDialer struct {
	mu    sync.Mutex
	queue []dialResult
	calls int
}

func (d *scriptDialer) dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.queue) == 0 {
		return nil, errors.New("dial: connection refused")
	}
	r := d.queue[0]
	d.queue = d.queue[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *scriptDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recorder collects feed callbacks under a lock.
type recorder struct {
	mu     sync.Mutex
	states []ports.FeedState
	ticks  []domain.Tick
	errs   []error
}

func (r *recorder) onState(s ports.FeedState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) onTick(tk domain.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tk)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) stateCount(s ports.FeedState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, st := range r.states {
		if st == s {
			n++
		}
	}
	return n
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recorder) lastTick() domain.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks[len(r.ticks)-1]
}

func (r *recorder) hasError(target error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, err := range r.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (r *recorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newTestFeed(t *testing.T, dialer *scriptDialer, rec *recorder, mutate ...func(*Config)) *Feed {
	t.Helper()
	cfg := Config{
		URL:               "wss://feed.test/ws",
		AccountID:         "ACC1",
		SessionToken:      "sess-token",
		Tokens:            []string{"11536"},
		BackoffMin:        time.Millisecond,
		BackoffMax:        5 * time.Millisecond,
		MaxReconnects:     3,
		HeartbeatInterval: time.Hour,
		Logger:            &mockLogger{},
		Dial:              dialer.dial,
		OnTick:            rec.onTick,
		OnStateChange:     rec.onState,
		OnError:           rec.onError,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	f, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(f.Disconnect)
	return f
}

func TestNewFeed(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		_, err := New(Config{})
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})

	t.Run("defaults", func(t *testing.T) {
		f, err := New(Config{Logger: &mockLogger{}})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, f.backoff.Min)
		assert.Equal(t, 60*time.Second, f.backoff.Max)
		assert.Equal(t, 10, f.maxReconnects)
		assert.Equal(t, 30*time.Second, f.heartbeat)
		assert.Equal(t, ports.FeedDisconnected, f.State())
	})
}

func TestConnectValidation(t *testing.T) {
	t.Run("missing session token", func(t *testing.T) {
		rec := &recorder{}
		f := newTestFeed(t, &scriptDialer{}, rec, func(c *Config) { c.SessionToken = "" })
		err := f.Connect(context.Background())
		assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
	})

	t.Run("no subscription tokens", func(t *testing.T) {
		rec := &recorder{}
		f := newTestFeed(t, &scriptDialer{}, rec, func(c *Config) { c.Tokens = nil })
		err := f.Connect(context.Background())
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})
}

func TestConnectHandshake(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec, func(c *Config) {
		c.Tokens = []string{"11536", "2885"}
	})

	require.NoError(t, f.Connect(context.Background()))

	assert.Equal(t, ports.FeedConnected, f.State())
	frames := conn.sentFrames(t)
	require.Len(t, frames, 2)
	assert.Equal(t, MsgAuth, frames[0].Type)
	assert.Equal(t, "ACC1|sess-token", string(frames[0].Payload))
	assert.Equal(t, MsgSubscribe, frames[1].Type)
	assert.Equal(t, "11536#2885", string(frames[1].Payload))

	rec.mu.Lock()
	states := append([]ports.FeedState(nil), rec.states...)
	rec.mu.Unlock()
	assert.Equal(t, []ports.FeedState{ports.FeedConnecting, ports.FeedConnected}, states)
}

func TestConnectDialFailure(t *testing.T) {
	dialer := &scriptDialer{} // empty script, every dial fails
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec)

	err := f.Connect(context.Background())

	require.Error(t, err)
	assert.Equal(t, ports.FeedDisconnected, f.State())

	// a failed connect leaves the feed reusable
	conn := newFakeConn()
	dialer.mu.Lock()
	dialer.queue = []dialResult{{conn: conn}}
	dialer.mu.Unlock()
	require.NoError(t, f.Connect(context.Background()))
	assert.Equal(t, ports.FeedConnected, f.State())
}

func TestConnectTwiceIsNoop(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec)

	require.NoError(t, f.Connect(context.Background()))
	require.NoError(t, f.Connect(context.Background()))

	assert.Equal(t, 1, dialer.dialCount())
}

func TestTickDelivery(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec)
	require.NoError(t, f.Connect(context.Background()))

	msg, err := EncodeTick(101.5, "11536")
	require.NoError(t, err)
	conn.push(msg)

	require.Eventually(t, func() bool { return rec.tickCount() == 1 }, time.Second, 2*time.Millisecond)
	tick := rec.lastTick()
	assert.Equal(t, "11536", tick.Token)
	assert.Equal(t, 101.5, tick.LTP)

	snap := f.Snapshot()
	require.Contains(t, snap, "11536")
	assert.Equal(t, 101.5, snap["11536"].LTP)
}

func TestTickWithoutTokenUsesSingleSubscription(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec, func(c *Config) { c.Tokens = []string{"2885"} })
	require.NoError(t, f.Connect(context.Background()))

	msg, err := EncodeTick(99.25, "")
	require.NoError(t, err)
	conn.push(msg)

	require.Eventually(t, func() bool { return rec.tickCount() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, "2885", rec.lastTick().Token)
}

func TestMalformedFrameIsNonFatal(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec)
	require.NoError(t, f.Connect(context.Background()))

	conn.push([]byte{0xFF}) // truncated frame
	good, err := EncodeTick(101.5, "11536")
	require.NoError(t, err)
	conn.push(good)

	require.Eventually(t, func() bool { return rec.tickCount() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, ports.FeedConnected, f.State(), "one bad frame must not tear down the feed")
	assert.GreaterOrEqual(t, rec.errCount(), 1)
}

func TestReconnectOnUnexpectedClose(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn1}, {conn: conn2}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec)
	require.NoError(t, f.Connect(context.Background()))

	conn1.Close() // simulate an unexpected drop

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 2 && f.State() == ports.FeedConnected
	}, time.Second, 2*time.Millisecond)

	assert.GreaterOrEqual(t, rec.stateCount(ports.FeedReconnecting), 1)

	// the replacement socket got its own handshake and serves ticks
	frames := conn2.sentFrames(t)
	require.Len(t, frames, 2)
	assert.Equal(t, MsgAuth, frames[0].Type)

	msg, err := EncodeTick(102.75, "11536")
	require.NoError(t, err)
	conn2.push(msg)
	require.Eventually(t, func() bool { return rec.tickCount() == 1 }, time.Second, 2*time.Millisecond)
}

func TestReconnectResetsAttemptCounter(t *testing.T) {
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn(), newFakeConn()}
	dialer := &scriptDialer{}
	for _, c := range conns {
		dialer.queue = append(dialer.queue, dialResult{conn: c})
	}
	rec := &recorder{}
	// ceiling of 2: three successful recoveries only pass if each drop
	// starts counting from zero
	f := newTestFeed(t, dialer, rec, func(c *Config) { c.MaxReconnects = 2 })
	require.NoError(t, f.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		conns[i].Close()
		want := i + 2
		require.Eventually(t, func() bool {
			return dialer.dialCount() == want && f.State() == ports.FeedConnected
		}, time.Second, 2*time.Millisecond)
	}

	assert.False(t, rec.hasError(ports.ErrReconnectExhausted))
}

func TestReconnectExhausted(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec, func(c *Config) { c.MaxReconnects = 2 })
	require.NoError(t, f.Connect(context.Background()))

	conn.Close()

	require.Eventually(t, func() bool {
		return rec.hasError(ports.ErrReconnectExhausted)
	}, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.State() == ports.FeedDisconnected
	}, time.Second, 2*time.Millisecond)
	// initial dial plus two failed retries
	assert.Equal(t, 3, dialer.dialCount())
}

func TestDisconnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec)
	require.NoError(t, f.Connect(context.Background()))

	f.Disconnect()
	f.Disconnect()

	assert.Equal(t, ports.FeedDisconnected, f.State())
	assert.Equal(t, 1, rec.stateCount(ports.FeedDisconnected), "second disconnect must not re-emit")
}

func TestHeartbeat(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{queue: []dialResult{{conn: conn}}}
	rec := &recorder{}
	f := newTestFeed(t, dialer, rec, func(c *Config) {
		c.HeartbeatInterval = 5 * time.Millisecond
	})
	require.NoError(t, f.Connect(context.Background()))

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		for _, w := range conn.writes {
			frames, err := DecodeAll(w)
			if err != nil {
				continue
			}
			for _, frame := range frames {
				if frame.Type == MsgHeartbeat {
					return true
				}
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}
