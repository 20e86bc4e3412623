package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"OBScan/internal/domain/models"
	applogger "OBScan/pkg/logger"
)

var ErrScanInProgress = errors.New("a scheduled scan is already running")

type scanRunner interface {
	Scan(ctx context.Context, p ScanParams) (*models.ScanReport, error)
}

// ScanScheduler runs the background scan at a fixed rate. A tick that finds
// the previous run still going is skipped.
type ScanScheduler struct {
	scanner    scanRunner
	params     ScanParams
	interval   time.Duration
	runOnStart bool
	timeout    time.Duration
	log        *applogger.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *models.ScanReport

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanScheduler builds a scheduler; an interval of zero disables the
// periodic loop but RunOnce still works.
func NewScanScheduler(scanner scanRunner, params ScanParams, interval time.Duration, runOnStart bool, l *applogger.Logger) *ScanScheduler {
	if l == nil {
		l = applogger.Nop()
	}
	timeout := interval
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &ScanScheduler{
		scanner:    scanner,
		params:     params,
		interval:   interval,
		runOnStart: runOnStart,
		timeout:    timeout,
		log:        l.With(applogger.String("component", "scheduler")),
	}
}

// Start launches the loop in the background.
func (s *ScanScheduler) Start(ctx context.Context) {
	if s.interval <= 0 && !s.runOnStart {
		s.log.Info("scheduled scan disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.runOnStart {
			s.tick(ctx)
		}
		if s.interval <= 0 {
			return
		}
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	s.log.Info("scheduled scan started",
		applogger.Duration("interval", s.interval),
		applogger.Int("limit", s.params.Limit),
		applogger.String("timeframe", string(s.params.Timeframe)),
	)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *ScanScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *ScanScheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrScanInProgress) {
			s.log.Warn("scheduled scan skipped, previous run still active")
			return
		}
		if ctx.Err() == nil {
			s.log.Error("scheduled scan failed", applogger.Error(err))
		}
	}
}

// RunOnce runs one scheduled scan now unless one is already running.
func (s *ScanScheduler) RunOnce(ctx context.Context) (*models.ScanReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.scanner.Scan(ctx, s.params)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, nil
}

// Last returns the most recent completed scheduled report, if any.
func (s *ScanScheduler) Last() (*models.ScanReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}
