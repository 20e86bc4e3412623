package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OBScan/internal/domain/models"
	domrepo "OBScan/internal/domain/repository"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

var ErrInvalidKline = errors.New("invalid kline event")

// Rescanner reacts to a closed kline.
type Rescanner interface {
	Rescan(ctx context.Context, ev models.KlineEvent) error
}

// RescanPipeline sits between the kline stream and the rescanner. It drops
// malformed, unclosed and duplicate events, throttles per symbol, and keeps
// events whose rescan failed in a bounded retry buffer.
type RescanPipeline struct {
	next    Rescanner
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	retryCh chan models.KlineEvent

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastOpen map[string]int64
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type PipelineOption func(*RescanPipeline)

// WithMaxRPS caps accepted events per symbol per second.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RescanPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many failed events wait for a retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *RescanPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewRescanPipeline(next Rescanner, metrics domrepo.Metrics, opts ...PipelineOption) *RescanPipeline {
	p := &RescanPipeline{
		next:     next,
		metrics:  metrics,
		maxRPS:   5,
		bufSize:  256,
		limiters: make(map[string]*rate.Limiter),
		lastOpen: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retryCh = make(chan models.KlineEvent, p.bufSize)
	return p
}

// Start launches the retry loop.
func (p *RescanPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.retryLoop(ctx)
}

// Stop ends the retry loop; buffered events are discarded.
func (p *RescanPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// Buffered is the number of events waiting for a retry.
func (p *RescanPipeline) Buffered() int { return len(p.retryCh) }

// Process filters ev and forwards it. A downstream failure buffers the event
// and is returned to the caller.
func (p *RescanPipeline) Process(ctx context.Context, ev models.KlineEvent) error {
	start := time.Now()
	if err := validateKline(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !ev.Closed {
		return nil
	}
	if !p.accept(ev, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.next.Rescan(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_rescan")
		select {
		case p.retryCh <- ev:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_rescan", time.Since(start).Seconds())
	return nil
}

func (p *RescanPipeline) retryLoop(ctx context.Context) {
	defer p.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case ev := <-p.retryCh:
			if err := p.next.Rescan(ctx, ev); err != nil {
				p.metrics.RecordError("pipeline_retry")
				select {
				case <-time.After(b.NextBackOff()):
				case <-ctx.Done():
					return
				case <-p.stopCh:
					return
				}
				select {
				case p.retryCh <- ev:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			b.Reset()
		}
	}
}

// accept applies duplicate suppression and the per-symbol rate limit.
func (p *RescanPipeline) accept(ev models.KlineEvent, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := ev.Symbol + "@" + ev.Interval
	if last, ok := p.lastOpen[key]; ok && ev.Candle.OpenTime <= last {
		return false
	}
	lim, ok := p.limiters[ev.Symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.maxRPS), p.maxRPS)
		p.limiters[ev.Symbol] = lim
	}
	if !lim.AllowN(now, 1) {
		return false
	}
	p.lastOpen[key] = ev.Candle.OpenTime
	return true
}

func validateKline(ev models.KlineEvent) error {
	c := ev.Candle
	switch {
	case ev.Symbol == "":
		return fmt.Errorf("%w: symbol empty", ErrInvalidKline)
	case c.OpenTime <= 0:
		return fmt.Errorf("%w: open time", ErrInvalidKline)
	case c.Open <= 0 || c.Close <= 0 || c.Low <= 0:
		return fmt.Errorf("%w: non-positive price", ErrInvalidKline)
	case c.High < c.Low || c.Volume < 0:
		return fmt.Errorf("%w: high below low or negative volume", ErrInvalidKline)
	}
	return nil
}
