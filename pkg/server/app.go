package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"OBScan/internal/usecase"
	"OBScan/pkg/config"
	xhttp "OBScan/pkg/http"
	pkgkafka "OBScan/pkg/kafka"
	applogger "OBScan/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	scheduler  *usecase.ScanScheduler
	watcher    *usecase.KlineWatcher
	consumer   *pkgkafka.Consumer
	proc       *usecase.DetectionProcessor
}

// New creates a new App. watcher and consumer are optional.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	scheduler *usecase.ScanScheduler,
	watcher *usecase.KlineWatcher,
	consumer *pkgkafka.Consumer,
	proc *usecase.DetectionProcessor,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        l,
		httpServer: httpServer,
		scheduler:  scheduler,
		watcher:    watcher,
		consumer:   consumer,
		proc:       proc,
	}
}

// Run starts every component and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		shutdownErr := a.shutdown()
		return errors.Join(err, shutdownErr)
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topic))
	}

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
		a.log.Info("kline watcher started",
			applogger.Strings("symbols", a.cfg.Stream.Symbols),
			applogger.String("interval", a.cfg.Stream.Interval),
		)
	}

	a.scheduler.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	a.log.Info("obscan started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
	)
	return nil
}

// shutdown stops producers of work first, then the sinks they feed.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.scheduler.Stop()

	if a.watcher != nil {
		if err := a.watcher.Shutdown(ctx); err != nil {
			a.log.Warn("kline watcher stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// flush aggregated logs while the producer is still open
	a.log.RemoveCollector()

	if a.proc != nil {
		a.proc.Close()
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
