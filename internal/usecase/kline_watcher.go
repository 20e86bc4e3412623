package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	"OBScan/internal/services/detector"
	applogger "OBScan/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// KlineProcessor is what the watcher feeds; RescanPipeline in production.
type KlineProcessor interface {
	Start(ctx context.Context)
	Stop()
	Process(ctx context.Context, ev models.KlineEvent) error
}

// KlineWatcher keeps a kline subscription alive and hands every event to the
// processor.
type KlineWatcher struct {
	stream  drepo.KlineStream
	proc    KlineProcessor
	metrics drepo.Metrics
	log     *applogger.Logger

	maxReconnect time.Duration
	wg           sync.WaitGroup
}

func NewKlineWatcher(stream drepo.KlineStream, proc KlineProcessor, metrics drepo.Metrics, l *applogger.Logger) *KlineWatcher {
	if l == nil {
		l = applogger.Nop()
	}
	return &KlineWatcher{
		stream:       stream,
		proc:         proc,
		metrics:      metrics,
		log:          l.With(applogger.String("component", "kline_watcher")),
		maxReconnect: time.Minute,
	}
}

func (w *KlineWatcher) IsConnected() bool { return w.stream.IsConnected() }

// Start connects, subscribes and consumes in the background until ctx ends.
func (w *KlineWatcher) Start(ctx context.Context) error {
	if err := w.stream.Connect(ctx); err != nil {
		return err
	}
	if err := w.stream.Subscribe(ctx); err != nil {
		return err
	}
	w.proc.Start(ctx)

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *KlineWatcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		events, errs := w.stream.Read(ctx)
		err := w.consume(ctx, events, errs)
		if ctx.Err() != nil {
			return
		}
		w.metrics.RecordError("stream")
		w.log.Warn("kline stream interrupted, reconnecting", applogger.Error(err))

		if err := w.reconnect(ctx); err != nil {
			if ctx.Err() == nil {
				w.log.Error("kline stream reconnect gave up", applogger.Error(err))
			}
			return
		}
	}
}

// consume returns when the stream fails or its channels close.
func (w *KlineWatcher) consume(ctx context.Context, events <-chan models.KlineEvent, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return err
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("kline stream closed")
			}
			w.metrics.RecordLastPrice(ev.Symbol, ev.Candle.Close)
			if err := w.proc.Process(ctx, ev); err != nil {
				w.log.Debug("kline event not processed", applogger.String("symbol", ev.Symbol), applogger.Error(err))
			}
		}
	}
}

func (w *KlineWatcher) reconnect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = w.maxReconnect

	return backoff.Retry(func() error {
		return w.stream.Reconnect(ctx)
	}, backoff.WithContext(b, ctx))
}

// Shutdown stops the processor, closes the stream and waits for the reader.
func (w *KlineWatcher) Shutdown(ctx context.Context) error {
	w.proc.Stop()
	err := w.stream.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// SymbolRescanner turns a closed kline into a single-instrument rescan. The
// cached snapshot supplies name and volume; the kline close is the current
// price.
type SymbolRescanner struct {
	scanner     *Scanner
	cache       drepo.ResultCache
	timeframe   drepo.Timeframe
	candleLimit int
	cfg         detector.Config
}

func NewSymbolRescanner(scanner *Scanner, cache drepo.ResultCache, tf drepo.Timeframe, candleLimit int, cfg detector.Config) *SymbolRescanner {
	return &SymbolRescanner{scanner: scanner, cache: cache, timeframe: tf, candleLimit: candleLimit, cfg: cfg}
}

func (r *SymbolRescanner) Rescan(ctx context.Context, ev models.KlineEvent) error {
	inst := models.Instrument{ID: ev.Symbol, Name: strings.TrimSuffix(ev.Symbol, "USDT")}
	if r.cache != nil {
		if prev, ok, err := r.cache.Get(ctx, ev.Symbol); err == nil && ok {
			inst = prev.Instrument
		}
	}
	inst.CurrentPrice = ev.Candle.Close

	tf := r.timeframe
	if t := drepo.Timeframe(ev.Interval); drepo.IsValidTimeframe(t) {
		tf = t
	}
	_, err := r.scanner.RescanSymbol(ctx, inst, tf, r.candleLimit, r.cfg)
	return err
}
