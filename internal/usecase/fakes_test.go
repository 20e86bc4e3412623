package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
)

type fakeMarket struct {
	instruments []models.Instrument
	candles     map[string][]models.Candle
	failSymbols map[string]bool
	listErr     error

	mu    sync.Mutex
	calls []string
}

func (f *fakeMarket) TopVolumeInstruments(_ context.Context, limit int) ([]models.Instrument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit < len(f.instruments) {
		return f.instruments[:limit], nil
	}
	return f.instruments, nil
}

func (f *fakeMarket) Candles(_ context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol+"@"+string(tf))
	f.mu.Unlock()
	if f.failSymbols[symbol] {
		return nil, errors.New("upstream unavailable")
	}
	return f.candles[symbol], nil
}

type nopMetrics struct {
	mu    sync.Mutex
	scans int
	sent  int
	errs  []string
}

func (m *nopMetrics) RecordScan(string, int, time.Duration) {
	m.mu.Lock()
	m.scans++
	m.mu.Unlock()
}
func (m *nopMetrics) RecordDetection(string, models.ZoneType) {}
func (m *nopMetrics) RecordMessageSent(string, string) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errs = append(m.errs, kind)
	m.mu.Unlock()
}
func (m *nopMetrics) RecordLastPrice(string, float64) {}
func (m *nopMetrics) RecordLatency(string, float64)   {}

type recordingSink struct {
	mu  sync.Mutex
	got []string
}

func (s *recordingSink) Process(_ context.Context, r *models.DetectionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r.ID)
	return nil
}

func (s *recordingSink) ProcessBatch(ctx context.Context, rs []*models.DetectionResult) error {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := s.Process(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.got...)
	sort.Strings(out)
	return out
}

type fakePublisher struct {
	published []*models.DetectionResult
	batches   int
	err       error
	closed    bool
}

func (p *fakePublisher) Publish(_ context.Context, r *models.DetectionResult) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, r)
	return nil
}

func (p *fakePublisher) PublishBatch(_ context.Context, rs []*models.DetectionResult) error {
	if p.err != nil {
		return p.err
	}
	p.batches++
	p.published = append(p.published, rs...)
	return nil
}

func (p *fakePublisher) Close() error { p.closed = true; return nil }

type fakeStorage struct {
	mu     sync.Mutex
	stored []*models.DetectionResult
	err    error

	query struct {
		symbol   string
		from, to time.Time
		limit    int
	}
}

func (s *fakeStorage) Init(context.Context) error { return nil }

func (s *fakeStorage) Store(_ context.Context, r *models.DetectionResult) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.stored = append(s.stored, r)
	s.mu.Unlock()
	return nil
}

func (s *fakeStorage) StoreBatch(ctx context.Context, rs []*models.DetectionResult) error {
	for _, r := range rs {
		if err := s.Store(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStorage) Query(_ context.Context, symbol string, from, to time.Time, limit int) ([]*models.DetectionResult, error) {
	s.query.symbol, s.query.from, s.query.to, s.query.limit = symbol, from, to, limit
	if s.err != nil {
		return nil, s.err
	}
	return s.stored, nil
}

func (s *fakeStorage) Health(context.Context) error { return nil }
func (s *fakeStorage) Close() error                 { return nil }

func found(id string) *models.DetectionResult {
	p := 90.0
	return &models.DetectionResult{
		Instrument: models.Instrument{ID: id},
		ZoneType:   models.ZoneBullish,
		ZonePrice:  &p,
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Timeframe:  "4h",
	}
}

func none(id string) *models.DetectionResult {
	return &models.DetectionResult{Instrument: models.Instrument{ID: id}, ZoneType: models.ZoneNone, Timeframe: "4h"}
}

func bullishCandles() []models.Candle {
	return []models.Candle{
		{OpenTime: 1000, Open: 98, High: 101, Low: 96, Close: 99, Volume: 500},
		{OpenTime: 2000, Open: 96, High: 97, Low: 93, Close: 94, Volume: 600},
		{OpenTime: 3000, Open: 100, High: 102, Low: 90, Close: 95, Volume: 1000},
		{OpenTime: 4000, Open: 99, High: 110, Low: 98.5, Close: 109, Volume: 800},
		{OpenTime: 5000, Open: 109, High: 112, Low: 105, Close: 111, Volume: 700},
	}
}
