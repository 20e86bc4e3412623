package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	"OBScan/internal/services/detector"
	applogger "OBScan/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidLimit     = errors.New("limit must be positive")
)

// ScanParams describes one scan run.
type ScanParams struct {
	Timeframe   drepo.Timeframe
	Limit       int // instruments, by descending quote volume
	CandleLimit int // candles fetched per instrument
	Config      detector.Config
}

// ResultSink receives the detections a scan produces: one batch per scan,
// single results for rescans.
type ResultSink interface {
	Process(ctx context.Context, r *models.DetectionResult) error
	ProcessBatch(ctx context.Context, rs []*models.DetectionResult) error
}

// Scanner lists the most traded instruments, fetches their candles and runs
// the detector on each, with bounded concurrency.
type Scanner struct {
	market  drepo.MarketData
	cache   drepo.ResultCache
	sink    ResultSink
	metrics drepo.Metrics
	det     *detector.Detector
	log     *applogger.Logger
	workers int
	now     func() time.Time
}

type ScannerOption func(*Scanner)

func WithScannerWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithScannerLogger(l *applogger.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

func NewScanner(market drepo.MarketData, cache drepo.ResultCache, sink ResultSink, metrics drepo.Metrics, det *detector.Detector, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		market:  market,
		cache:   cache,
		sink:    sink,
		metrics: metrics,
		det:     det,
		log:     applogger.Nop(),
		workers: 8,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one full pass. Per-instrument failures are collected in the
// report; only failing to list instruments aborts the run.
func (s *Scanner) Scan(ctx context.Context, p ScanParams) (*models.ScanReport, error) {
	if !drepo.IsValidTimeframe(p.Timeframe) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeframe, p.Timeframe)
	}
	if p.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if p.CandleLimit < detector.WindowSize {
		p.CandleLimit = 200
	}

	report := &models.ScanReport{
		RunID:     uuid.NewString(),
		Timeframe: string(p.Timeframe),
		StartedAt: s.now(),
	}
	log := s.log.With(applogger.String("run_id", report.RunID), applogger.String("timeframe", report.Timeframe))

	instruments, err := s.market.TopVolumeInstruments(ctx, p.Limit)
	if err != nil {
		s.metrics.RecordError("instruments")
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	results := make([]*models.DetectionResult, len(instruments))
	var (
		mu   sync.Mutex
		errs = make(map[string]string)
	)

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, inst := range instruments {
		i, inst := i, inst
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r, err := s.scanOne(ctx, inst, p.Timeframe, p.CandleLimit, p.Config)
			if err != nil {
				mu.Lock()
				errs[inst.ID] = err.Error()
				mu.Unlock()
				log.Warn("instrument scan failed", applogger.String("symbol", inst.ID), applogger.Error(err))
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	report.Results = make([]models.DetectionResult, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		report.Results = append(report.Results, *r)
		if r.Found() {
			report.Detected++
		}
	}
	report.Scanned = len(report.Results)
	if s.sink != nil {
		if err := s.sink.ProcessBatch(ctx, results); err != nil {
			log.Error("forward detections failed", applogger.Error(err))
		}
	}
	if len(errs) > 0 {
		report.Errors = errs
	}
	report.FinishedAt = s.now()

	s.metrics.RecordScan(report.Timeframe, report.Scanned, report.Duration())
	log.Info("scan finished",
		applogger.Int("instruments", len(instruments)),
		applogger.Int("scanned", report.Scanned),
		applogger.Int("detected", report.Detected),
		applogger.Int("failed", len(errs)),
		applogger.Duration("took", report.Duration()),
	)
	return report, nil
}

// RescanSymbol re-runs detection for a single instrument.
func (s *Scanner) RescanSymbol(ctx context.Context, inst models.Instrument, tf drepo.Timeframe, candleLimit int, cfg detector.Config) (models.DetectionResult, error) {
	if !drepo.IsValidTimeframe(tf) {
		return models.DetectionResult{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, tf)
	}
	if candleLimit < detector.WindowSize {
		candleLimit = 200
	}
	r, err := s.scanOne(ctx, inst, tf, candleLimit, cfg)
	if err != nil {
		return models.DetectionResult{}, err
	}
	if s.sink != nil {
		if err := s.sink.Process(ctx, r); err != nil {
			s.log.Error("forward detection failed", applogger.String("symbol", inst.ID), applogger.Error(err))
		}
	}
	return *r, nil
}

func (s *Scanner) scanOne(ctx context.Context, inst models.Instrument, tf drepo.Timeframe, candleLimit int, cfg detector.Config) (*models.DetectionResult, error) {
	start := time.Now()
	candles, err := s.market.Candles(ctx, inst.ID, tf, candleLimit)
	if err != nil {
		s.metrics.RecordError("candles")
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	s.metrics.RecordLatency("candles", time.Since(start).Seconds())

	r := s.det.Detect(inst, candles, string(tf), cfg)
	s.metrics.RecordDetection(r.Timeframe, r.ZoneType)
	s.metrics.RecordLastPrice(inst.ID, inst.CurrentPrice)

	if s.cache != nil {
		if err := s.cache.Put(ctx, r); err != nil {
			s.metrics.RecordError("cache")
			s.log.Warn("cache result failed", applogger.String("symbol", inst.ID), applogger.Error(err))
		}
	}
	return &r, nil
}
