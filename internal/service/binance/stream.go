package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	applogger "OBScan/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a KlineStream over the Binance futures websocket.
type Stream struct {
	websocketURL   string
	symbols        []string
	interval       string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	mu        sync.Mutex // guards conn writes and state
	conn      *websocket.Conn
	connected bool
	nextID    int
}

// NewStream subscribes symbols to kline updates at interval.
func NewStream(websocketURL string, symbols []string, interval string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) drepo.KlineStream {
	if l == nil {
		l = applogger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		websocketURL:   strings.TrimRight(websocketURL, "/"),
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            l,
	}
}

// Connect establishes the websocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.websocketURL+"/ws", nil)
	if err != nil {
		return fmt.Errorf("binance ws connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.log.Info("binance ws connected", applogger.String("url", s.websocketURL))
	return nil
}

// StreamNames returns the kline stream names for the configured symbols.
func (s *Stream) StreamNames() []string {
	out := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		out = append(out, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), s.interval))
	}
	return out
}

type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Subscribe sends one SUBSCRIBE request for all configured symbols.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.connected {
		return fmt.Errorf("binance ws not connected")
	}
	s.nextID++
	req := wsRequest{Method: "SUBSCRIBE", Params: s.StreamNames(), ID: s.nextID}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("binance ws subscribed", applogger.Strings("streams", req.Params))
	return nil
}

// Binance mixes upper and lower case keys; encoding/json matches keys case
// insensitively unless an exact tag exists, so every key gets its own field.
type wsKline struct {
	StartTime   int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	FirstTrade  int64  `json:"f"`
	LastTrade   int64  `json:"L"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	Trades      int64  `json:"n"`
	Closed      bool   `json:"x"`
	QuoteVolume string `json:"q"`
	TakerBase   string `json:"V"`
	TakerQuote  string `json:"Q"`
	Ignore      string `json:"B"`
}

type wsEvent struct {
	Event     string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

// combined streams wrap the payload
type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Read streams kline events and errors. Events are dropped when the consumer
// falls behind.
func (s *Stream) Read(ctx context.Context) (<-chan models.KlineEvent, <-chan error) {
	events := make(chan models.KlineEvent, 256)
	errs := make(chan error, 1)

	pingCtx, stopPing := context.WithCancel(ctx)
	go s.pingLoop(pingCtx)

	go func() {
		defer stopPing()
		defer close(events)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}

			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("binance ws conn nil")
				return
			}

			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("binance ws read: %w", err)
				return
			}

			ev, ok := decodeKline(b)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			default:
				s.log.Warn("kline event dropped", applogger.String("symbol", ev.Symbol))
			}
		}
	}()

	return events, errs
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			s.mu.Unlock()
		}
	}
}

// decodeKline accepts raw and combined-stream frames; anything that is not a
// well-formed kline event is ignored.
func decodeKline(b []byte) (models.KlineEvent, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(b, &env); err == nil && len(env.Data) > 0 {
		b = env.Data
	}

	var ev wsEvent
	if err := json.Unmarshal(b, &ev); err != nil || ev.Event != "kline" {
		return models.KlineEvent{}, false
	}

	k := ev.Kline
	var vals [5]float64
	for i, raw := range [...]string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.KlineEvent{}, false
		}
		vals[i] = v
	}

	symbol := k.Symbol
	if symbol == "" {
		symbol = ev.Symbol
	}
	return models.KlineEvent{
		Symbol:   symbol,
		Interval: k.Interval,
		Closed:   k.Closed,
		Candle: models.Candle{
			OpenTime: k.StartTime,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		},
	}, true
}

// Reconnect closes, waits reconnectDelay and reconnects.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}

	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
