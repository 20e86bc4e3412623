package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"OBScan/internal/domain/repository"
	"OBScan/internal/handler/api"
	mid "OBScan/internal/middleware"
	internalrepo "OBScan/internal/repository"
	"OBScan/internal/service/auth"
	"OBScan/internal/service/binance"
	icache "OBScan/internal/service/cache"
	apimetrics "OBScan/internal/service/metrics"
	"OBScan/internal/service/ratelimit"
	"OBScan/internal/services/detector"
	"OBScan/internal/usecase"
	pkgch "OBScan/pkg/clickhouse"
	"OBScan/pkg/config"
	xhttp "OBScan/pkg/http"
	pkgkafka "OBScan/pkg/kafka"
	applogger "OBScan/pkg/logger"
	"OBScan/pkg/metrics"
	"OBScan/pkg/server"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segmentio/kafka-go"
)

const (
	detectionsTable = "detections"
	initTimeout     = 10 * time.Second
)

// ProvideKafkaProducer creates a Kafka producer. Without brokers there is
// nothing to produce to and nil is returned.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. Error logs are aggregated and
// shipped to logging.collector_topic when a producer is available.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Logging.CollectorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.FlushInterval,
			CountThreshold: cfg.Logging.FlushThreshold,
			Topic:          cfg.Logging.CollectorTopic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates the Prometheus recorder and registers the API
// collectors.
func ProvideMetrics() repository.Metrics {
	apimetrics.Register()
	return metrics.New(nil)
}

// ProvideBinanceClient creates the futures REST client.
func ProvideBinanceClient(cfg *config.Config, l *applogger.Logger) *binance.Client {
	hc := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Binance.Timeout),
		xhttp.WithRateLimit(cfg.Binance.RequestsPerSec, cfg.Binance.Burst),
		xhttp.WithRetry(cfg.Binance.RetryMaxElapsed),
	)
	return binance.New(cfg.Binance.BaseURL,
		binance.WithHTTPClient(hc),
		binance.WithBreaker(cfg.Binance.BreakerThreshold, cfg.Binance.BreakerTimeout),
		binance.WithLogger(l.With(applogger.String("component", "binance"))),
	)
}

// ProvideBytesCache returns Redis when enabled, the in-process TTL cache
// otherwise.
func ProvideBytesCache(cfg *config.Config, l *applogger.Logger) (icache.BytesCache, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return icache.NewTTLCache(), func() {}, nil
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	l.Info("redis cache ready", applogger.String("addr", cfg.Cache.Redis.Addr))
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideResultCache(store icache.BytesCache, cfg *config.Config) repository.ResultCache {
	return icache.NewResultCache(store, cfg.Cache.TTL)
}

// ProvideClickHouseClient connects to ClickHouse when enabled; nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.DetectionSchema(cfg.ClickHouse.Database, detectionsTable)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideDetectionStorage returns the ClickHouse history store, or nil when
// ClickHouse is disabled.
func ProvideDetectionStorage(client *pkgch.Client, cfg *config.Config) repository.Storage {
	if client == nil {
		return nil
	}
	return internalrepo.NewClickHouseDetectionStore(client.DB(), cfg.ClickHouse.Database, detectionsTable)
}

// ProvideDetectionPublisher returns the Kafka publisher, or nil without a
// producer.
func ProvideDetectionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDetectionPublisher(producer, cfg.Kafka.Topic)
}

func ProvideDetectionProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) (*usecase.DetectionProcessor, error) {
	switch cfg.Backend.Type {
	case usecase.BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("kafka backend needs kafka.brokers")
		}
	case usecase.BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("clickhouse backend needs clickhouse.enabled")
		}
	}
	return usecase.NewDetectionProcessor(pub, store, m, cfg.Backend.Type), nil
}

func ProvideDetector() *detector.Detector {
	return detector.New()
}

func ProvideScanner(
	market repository.MarketData,
	results repository.ResultCache,
	proc *usecase.DetectionProcessor,
	m repository.Metrics,
	det *detector.Detector,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Scanner {
	return usecase.NewScanner(market, results, proc, m, det,
		usecase.WithScannerWorkers(cfg.Scan.Workers),
		usecase.WithScannerLogger(l),
	)
}

// DetectorConfig maps configured thresholds onto the detector.
func DetectorConfig(p config.DetectorParams) detector.Config {
	return detector.Config{
		ImpulsiveMinBodyRatio:   p.MinBodyRatio,
		ImpulsiveMinPriceChange: p.MinPriceChange,
		SignificantVolumeFactor: p.VolumeFactor,
		RequireBOS:              p.RequireBOS,
		RequireC3ClosePastC2:    p.RequireC3ClosePastC2,
		RequireFVG:              p.RequireFVG,
		MinFvgDepthRatio:        p.MinFvgDepthRatio,
		RequireUnmitigated:      p.RequireUnmitigated,
	}
}

func ProvideScanScheduler(scanner *usecase.Scanner, cfg *config.Config, l *applogger.Logger) *usecase.ScanScheduler {
	params := usecase.ScanParams{
		Timeframe:   repository.Timeframe(cfg.Scan.DefaultTimeframe),
		Limit:       cfg.Scan.ScheduledLimit,
		CandleLimit: cfg.Scan.CandleLimit,
		Config:      DetectorConfig(cfg.Scan.Scheduled),
	}
	return usecase.NewScanScheduler(scanner, params, cfg.Scan.ScheduleInterval, cfg.Scan.RunOnStart, l)
}

// ProvideKlineWatcher builds the live rescan chain: websocket stream, rescan
// pipeline and symbol rescanner. Nil when stream.enabled is false.
func ProvideKlineWatcher(
	cfg *config.Config,
	scanner *usecase.Scanner,
	results repository.ResultCache,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.KlineWatcher {
	if !cfg.Stream.Enabled {
		return nil
	}
	stream := binance.NewStream(
		cfg.Binance.WebSocketURL,
		cfg.Stream.Symbols,
		cfg.Stream.Interval,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		l.With(applogger.String("component", "binance_ws")),
	)
	rescanner := usecase.NewSymbolRescanner(
		scanner,
		results,
		repository.Timeframe(cfg.Stream.Interval),
		cfg.Scan.CandleLimit,
		DetectorConfig(cfg.Scan.Scheduled),
	)
	pipe := mid.NewRescanPipeline(rescanner, m,
		mid.WithMaxRPS(cfg.Stream.MaxRPS),
		mid.WithBufferSize(cfg.Stream.BufferSize),
	)
	return usecase.NewKlineWatcher(stream, pipe, m, l)
}

// ProvideKafkaDetectionsHandler is nil without a history store.
func ProvideKafkaDetectionsHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaDetectionsHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaDetectionsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideKafkaConsumer creates the history ingestion consumer when
// kafka.consumer.enabled is set.
func ProvideKafkaConsumer(cfg *config.Config, kh *usecase.KafkaDetectionsHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	if kh == nil {
		return nil, fmt.Errorf("kafka consumer needs clickhouse.enabled")
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			l.Warn("detection ingest failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	})
	consumer.RegisterHandler(kh)
	return consumer, nil
}

// ProvideUserRepository uses Postgres when postgres.dsn is set and an
// in-memory store otherwise.
func ProvideUserRepository(cfg *config.Config, l *applogger.Logger) (repository.UserRepository, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if cfg.Postgres.DSN == "" {
		l.Warn("postgres.dsn not set, accounts are kept in memory")
		repo := internalrepo.NewMemoryUserRepository()
		return repo, func() {}, repo.Init(ctx)
	}

	db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	repo := internalrepo.NewPostgresUserRepository(db, 5*time.Second)
	if err := repo.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("users schema: %w", err)
	}
	return repo, func() { _ = db.Close() }, nil
}

// ProvideTokenManager signs tokens with auth.jwt_secret. Outside production
// a missing secret is replaced by a random one, so tokens do not survive a
// restart.
func ProvideTokenManager(cfg *config.Config, l *applogger.Logger) (*auth.TokenManager, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" && cfg.Environment != "production" {
		secret = strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
		l.Warn("auth.jwt_secret not set, using an ephemeral secret")
	}
	tm, err := auth.NewTokenManager(secret, cfg.Auth.TokenTTL, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	return tm, nil
}

func ProvideAccountService(users repository.UserRepository, tokens *auth.TokenManager, cfg *config.Config, l *applogger.Logger) *usecase.AccountService {
	return usecase.NewAccountService(users, tokens, cfg.Auth.TrialDays, l)
}

func ProvideEntitlementPolicy(cfg *config.Config) usecase.EntitlementPolicy {
	return usecase.EntitlementPolicy{
		PremiumLimit:   cfg.Scan.PremiumLimit,
		TrialLimit:     cfg.Scan.TrialLimit,
		TrialTimeframe: repository.Timeframe(cfg.Scan.TrialTimeframe),
	}
}

// ProvideUserLimiter throttles on-demand scans per user.
func ProvideUserLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Scan.UserRatePerMin, cfg.Scan.UserRatePerMin, 30*time.Minute)
}

func ProvideHistoryUseCase(store repository.Storage) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(store)
}

// ProvideHandlers lists every route group served by the HTTP server.
func ProvideHandlers(
	l *applogger.Logger,
	accounts *usecase.AccountService,
	tokens *auth.TokenManager,
	policy usecase.EntitlementPolicy,
	scanner *usecase.Scanner,
	limiter *ratelimit.Limiter,
	results repository.ResultCache,
	history *usecase.HistoryUseCase,
	cfg *config.Config,
) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewAuthEchoHandler(l, accounts, tokens),
		api.NewAdminEchoHandler(l, accounts, tokens),
		api.NewScanEchoHandler(l, accounts, tokens, policy, scanner, limiter, results, history, cfg.Scan.CandleLimit),
	}
}

func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	scheduler *usecase.ScanScheduler,
	watcher *usecase.KlineWatcher,
	consumer *pkgkafka.Consumer,
	proc *usecase.DetectionProcessor,
) *server.App {
	return server.New(cfg, l, httpServer, scheduler, watcher, consumer, proc)
}
