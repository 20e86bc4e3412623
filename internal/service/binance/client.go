package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	xhttp "OBScan/pkg/http"
	applogger "OBScan/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("binance: circuit open")

const (
	tickerPath = "/fapi/v1/ticker/24hr"
	klinesPath = "/fapi/v1/klines"
	quoteAsset = "USDT"
)

// Client is a USDT-M futures REST client. Every call goes through a circuit
// breaker; the underlying HTTP client handles rate limiting and retries.
type Client struct {
	baseURL string
	http    *xhttp.Client
	breaker *gobreaker.CircuitBreaker
	log     *applogger.Logger

	breakerThreshold uint32
	breakerTimeout   time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *xhttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBreaker trips after threshold consecutive failures and stays open for
// timeout before probing again.
func WithBreaker(threshold uint32, timeout time.Duration) Option {
	return func(cl *Client) {
		if threshold > 0 {
			cl.breakerThreshold = threshold
		}
		if timeout > 0 {
			cl.breakerTimeout = timeout
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// New builds a client for baseURL (e.g. https://fapi.binance.com).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		log:              applogger.Nop(),
		breakerThreshold: 5,
		breakerTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-rest",
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerThreshold
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about upstream health
			var se *xhttp.StatusError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})
	return c
}

var _ drepo.MarketData = (*Client)(nil)

func (c *Client) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         c.baseURL + path,
			QueryParams: query,
		}, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

type tickerEntry struct {
	Symbol       string  `json:"symbol"`
	LastPrice    string  `json:"lastPrice"`
	QuoteVolume  string  `json:"quoteVolume"`
	ContractType *string `json:"contractType"`
}

// TopVolumeInstruments returns USDT perpetuals ranked by 24h quote volume,
// highest first, truncated to limit. Entries that fail to parse are skipped.
func (c *Client) TopVolumeInstruments(ctx context.Context, limit int) ([]models.Instrument, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, tickerPath, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch 24hr ticker: %w", err)
	}

	out := make([]models.Instrument, 0, len(raw))
	for _, r := range raw {
		var t tickerEntry
		if err := json.Unmarshal(r, &t); err != nil {
			c.log.Debug("skip ticker entry", applogger.Error(err))
			continue
		}
		if !strings.HasSuffix(t.Symbol, quoteAsset) {
			continue
		}
		if t.ContractType != nil && *t.ContractType != "PERPETUAL" {
			continue
		}
		price, err1 := strconv.ParseFloat(t.LastPrice, 64)
		vol, err2 := strconv.ParseFloat(t.QuoteVolume, 64)
		if err := errors.Join(err1, err2); err != nil {
			c.log.Debug("skip ticker entry", applogger.String("symbol", t.Symbol), applogger.Error(err))
			continue
		}
		out = append(out, models.Instrument{
			ID:           t.Symbol,
			Name:         strings.TrimSuffix(t.Symbol, quoteAsset),
			CurrentPrice: price,
			Volume:       FormatVolume(vol),
			QuoteVolume:  vol,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].QuoteVolume > out[j].QuoteVolume })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Candles returns up to limit klines for symbol, oldest first.
func (c *Client) Candles(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Candle, error) {
	q := map[string][]string{
		"symbol":   {symbol},
		"interval": {string(tf)},
	}
	if limit > 0 {
		q["limit"] = []string{strconv.Itoa(limit)}
	}

	var rows [][]json.RawMessage
	if err := c.get(ctx, klinesPath, q, &rows); err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, tf, err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline %d of %s: %w", i, symbol, err)
		}
		candles = append(candles, k)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...]. Binance
// quotes prices as strings; plain numbers are accepted too.
func parseKline(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	var vals [6]float64
	for i := 0; i < 6; i++ {
		v, err := number(row[i])
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return models.Candle{
		OpenTime: int64(vals[0]),
		Open:     vals[1],
		High:     vals[2],
		Low:      vals[3],
		Close:    vals[4],
		Volume:   vals[5],
	}, nil
}

func number(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// IsNotFound reports a rejected symbol or interval.
func IsNotFound(err error) bool {
	var se *xhttp.StatusError
	return errors.As(err, &se) && (se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusNotFound)
}
