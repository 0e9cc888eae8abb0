// Package brokerhttp implements the broker's session-token REST API:
// order placement and cancellation plus historical candle series, parsed
// from the broker's loosely-typed JSON.
package brokerhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"algoTradeBot/internal/domain"
	"algoTradeBot/internal/ports"
)

const (
	pathPlaceOrder  = "/PlaceOrder"
	pathCancelOrder = "/CancelOrder"
	pathSeries      = "/TPSeries"
)

// Config holds the broker client settings.
type Config struct {
	BaseURL      string // required
	AccountID    string // broker account id, used as uid and actid
	SessionToken string // per-day session credential

	Timeout         time.Duration // HTTP timeout (default: 10s)
	RetryBackoffMin time.Duration // historical retry backoff floor (default: 100ms)
	RetryBackoffMax time.Duration // historical retry backoff cap (default: 2s)
	MaxRetries      int           // historical retry attempts (default: 3)
	BreakerDelay    time.Duration // circuit breaker open duration (default: 10s)

	Logger     ports.Logger     // required
	HTTPClient *http.Client     // transport override for tests
	Now        func() time.Time // clock override for tests (default: time.Now)
}

// Client talks to the broker REST API. Historical reads go through a
// retry/circuit-breaker pipeline; order placement is a single attempt
// because the executor owns placement retry policy.
type Client struct {
	baseURL      string
	accountID    string
	sessionToken string
	logger       ports.Logger
	http         *http.Client
	now          func() time.Time
	pipeline     failsafe.Executor[*http.Response]
}

// New creates a broker client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil || cfg.BaseURL == "" {
		return nil, ports.ErrConfigurationError
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBackoffMin <= 0 {
		cfg.RetryBackoffMin = 100 * time.Millisecond
	}
	if cfg.RetryBackoffMax <= 0 {
		cfg.RetryBackoffMax = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == 429
		}).
		WithBackoff(cfg.RetryBackoffMin, cfg.RetryBackoffMax).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(cfg.BreakerDelay).
		Build()

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		accountID:    cfg.AccountID,
		sessionToken: cfg.SessionToken,
		logger:       cfg.Logger,
		http:         cfg.HTTPClient,
		now:          cfg.Now,
		pipeline:     failsafe.With[*http.Response](retryPolicy, breaker),
	}, nil
}

// PlaceOrder submits one market order. The broker's verdict comes back in
// OrderResult; the error return is reserved for transport failures.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	if c.sessionToken == "" {
		return nil, fmt.Errorf("%w: no session token", ports.ErrAuthenticationFailed)
	}

	payload := map[string]string{
		"uid":         c.accountID,
		"actid":       c.accountID,
		"exch":        req.Exchange,
		"tsym":        req.Symbol,
		"qty":         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"prc":         "0",
		"prctyp":      "MKT",
		"prd":         req.Product,
		"trantype":    tranType(req.Side),
		"ret":         req.Validity,
		"ordersource": "API",
		"remarks":     req.ClientRef,
	}
	body, err := c.postForm(ctx, pathPlaceOrder, payload)
	if err != nil {
		return nil, err
	}
	return parseOrderResult(body)
}

// CancelOrder cancels a previously placed order by its broker order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*ports.OrderResult, error) {
	if c.sessionToken == "" {
		return nil, fmt.Errorf("%w: no session token", ports.ErrAuthenticationFailed)
	}

	payload := map[string]string{
		"uid":        c.accountID,
		"norenordno": orderID,
	}
	body, err := c.postForm(ctx, pathCancelOrder, payload)
	if err != nil {
		return nil, err
	}
	return parseOrderResult(body)
}

// GetHistorical fetches candles for the token over the trailing lookback
// window, ascending by time. An empty series is a valid result. Transient
// upstream failures are retried behind the circuit breaker.
func (c *Client) GetHistorical(ctx context.Context, token string, interval domain.Interval, lookbackMonths int) ([]domain.Candle, error) {
	if !interval.IsValid() {
		return nil, fmt.Errorf("%w: %q", ports.ErrInvalidInterval, interval)
	}
	if c.sessionToken == "" {
		return nil, fmt.Errorf("%w: no session token", ports.ErrAuthenticationFailed)
	}
	if lookbackMonths <= 0 {
		lookbackMonths = 1
	}

	to := c.now()
	from := to.AddDate(0, -lookbackMonths, 0)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathSeries, nil)
	if err != nil {
		return nil, fmt.Errorf("build historical request: %w", err)
	}
	q := req.URL.Query()
	q.Set("uid", c.accountID)
	q.Set("token", token)
	q.Set("intrv", apiInterval(interval))
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("jKey", c.sessionToken)
	req.URL.RawQuery = q.Encode()

	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read historical response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ports.APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return c.parseCandles(ctx, body)
}

// parseCandles decodes the broker's candle array. Rows the broker
// malformed are skipped with a log, never fatal. A stat/emsg object in
// place of an array means rejection, except the "no data" answer which is
// an empty series.
func (c *Client) parseCandles(ctx context.Context, body []byte) ([]domain.Candle, error) {
	js, err := simplejson.NewJson(body)
	if err != nil {
		return nil, fmt.Errorf("parse historical response: %w", err)
	}

	rows, arrErr := js.Array()
	if arrErr != nil {
		stat := js.Get("stat").MustString()
		emsg := js.Get("emsg").MustString()
		if strings.Contains(strings.ToLower(emsg), "no data") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: stat=%s emsg=%s", ports.ErrInvalidRequest, stat, emsg)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i := range rows {
		row := js.GetIndex(i)
		candle, err := parseCandleRow(row)
		if err != nil {
			c.logger.Warn(ctx, "skipping malformed candle row", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	return candles, nil
}

func parseCandleRow(row *simplejson.Json) (domain.Candle, error) {
	epoch, err := strconv.ParseInt(row.Get("time").MustString(), 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("time: %w", err)
	}
	open, err := strconv.ParseFloat(row.Get("into").MustString(), 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(row.Get("inth").MustString(), 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(row.Get("intl").MustString(), 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(row.Get("intc").MustString(), 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("close: %w", err)
	}
	volume, _ := strconv.ParseFloat(row.Get("v").MustString("0"), 64)

	return domain.Candle{
		Time:   time.Unix(epoch, 0).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// postForm sends the broker's jData/jKey form encoding and returns the
// raw response body. HTTP-level failures map to APIError.
func (c *Client) postForm(ctx context.Context, path string, payload map[string]string) ([]byte, error) {
	jData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}
	form := url.Values{
		"jData": {string(jData)},
		"jKey":  {c.sessionToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ports.APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// parseOrderResult decodes the broker's stat/nOrdNo/emsg answer.
func parseOrderResult(body []byte) (*ports.OrderResult, error) {
	js, err := simplejson.NewJson(body)
	if err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	orderID := js.Get("nOrdNo").MustString()
	if orderID == "" {
		orderID = js.Get("orderId").MustString()
	}
	return &ports.OrderResult{
		Status:  js.Get("stat").MustString(),
		OrderID: orderID,
		Message: js.Get("emsg").MustString(),
	}, nil
}

func tranType(side domain.OrderSide) string {
	if side == domain.Sell {
		return "S"
	}
	return "B"
}

func apiInterval(interval domain.Interval) string {
	switch interval {
	case domain.IntervalWeek:
		return "W"
	case domain.IntervalMonth:
		return "M"
	default:
		return "D"
	}
}
