package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	xutil "OBScan/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DetectorParams mirrors the tunable thresholds of the order block detector.
type DetectorParams struct {
	MinBodyRatio         float64 `yaml:"min_body_ratio"`
	MinPriceChange       float64 `yaml:"min_price_change"`
	VolumeFactor         float64 `yaml:"volume_factor"`
	RequireBOS           bool    `yaml:"require_bos"`
	RequireC3ClosePastC2 bool    `yaml:"require_c3_close_past_c2"`
	RequireFVG           bool    `yaml:"require_fvg"`
	MinFvgDepthRatio     float64 `yaml:"min_fvg_depth_ratio"`
	RequireUnmitigated   bool    `yaml:"require_unmitigated"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level          string        `yaml:"level" default:"info"`
		Format         string        `yaml:"format" default:"console"`
		Output         string        `yaml:"output" default:"stdout"`
		CollectorTopic string        `yaml:"collector_topic"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
		FlushThreshold int           `yaml:"flush_threshold" default:"100"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type" default:"none"`
	} `yaml:"backend"`
	Binance struct {
		BaseURL          string        `yaml:"base_url" default:"https://fapi.binance.com"`
		WebSocketURL     string        `yaml:"websocket_url" default:"wss://fstream.binance.com"`
		Timeout          time.Duration `yaml:"timeout" default:"10s"`
		RequestsPerSec   float64       `yaml:"requests_per_sec" default:"15"`
		Burst            int           `yaml:"burst" default:"5"`
		RetryMaxElapsed  time.Duration `yaml:"retry_max_elapsed" default:"20s"`
		BreakerTimeout   time.Duration `yaml:"breaker_timeout" default:"30s"`
		BreakerThreshold uint32        `yaml:"breaker_threshold" default:"5"`
	} `yaml:"binance"`
	Scan struct {
		Workers          int            `yaml:"workers" default:"8"`
		CandleLimit      int            `yaml:"candle_limit" default:"200"`
		PremiumLimit     int            `yaml:"premium_limit" default:"100"`
		TrialLimit       int            `yaml:"trial_limit" default:"20"`
		TrialTimeframe   string         `yaml:"trial_timeframe" default:"4h"`
		ScheduledLimit   int            `yaml:"scheduled_limit" default:"100"`
		DefaultTimeframe string         `yaml:"default_timeframe" default:"4h"`
		ScheduleInterval time.Duration  `yaml:"schedule_interval" default:"4h"`
		RunOnStart       bool           `yaml:"run_on_start"`
		UserRatePerMin   int            `yaml:"user_rate_per_min" default:"6"`
		Detector         DetectorParams `yaml:"detector"`
		Scheduled        DetectorParams `yaml:"scheduled_detector"`
	} `yaml:"scan"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		Symbols        []string      `yaml:"symbols"`
		Interval       string        `yaml:"interval" default:"4h"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxRPS         int           `yaml:"max_rps" default:"5"`
		BufferSize     int           `yaml:"buffer_size" default:"256"`
	} `yaml:"stream"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl" default:"8h"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"obscan:"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"obscan.detections"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"obscan-history"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"obscan.detections.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"obscan"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"postgres"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl" default:"24h"`
		TrialDays int           `yaml:"trial_days" default:"3"`
		Issuer    string        `yaml:"issuer" default:"obscan"`
	} `yaml:"auth"`
}

// Load reads and parses a YAML configuration file. Missing keys take their
// `default` tag values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.Scan.Detector = DefaultDetectorParams()
	c.Scan.Scheduled = ScheduledDetectorParams()

	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, reads an optional .env file and
// overrides selected fields from the environment.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Binance.BaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("STREAM_SYMBOLS"); v != "" {
		c.Stream.Symbols = xutil.UpperSymbols(strings.Split(v, ","))
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse", "none":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty with kafka backend")
	}
	if c.Backend.Type == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse.enabled must be true with clickhouse backend")
	}
	if c.Binance.BaseURL == "" {
		return fmt.Errorf("binance.base_url is required")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive")
	}
	if c.Scan.CandleLimit < 5 {
		return fmt.Errorf("scan.candle_limit must be at least 5")
	}
	if c.Stream.Enabled && len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols cannot be empty when stream is enabled")
	}
	if c.Postgres.DSN != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	return nil
}

// DefaultDetectorParams are the thresholds used by interactive scans.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		MinBodyRatio:         0.15,
		MinPriceChange:       0.0002,
		VolumeFactor:         0.5,
		RequireBOS:           true,
		RequireC3ClosePastC2: true,
		RequireFVG:           true,
		MinFvgDepthRatio:     0.0,
		RequireUnmitigated:   true,
	}
}

// ScheduledDetectorParams are the stricter thresholds of the background scan.
func ScheduledDetectorParams() DetectorParams {
	return DetectorParams{
		MinBodyRatio:         0.15,
		MinPriceChange:       0.0005,
		VolumeFactor:         0.6,
		RequireBOS:           true,
		RequireC3ClosePastC2: true,
		RequireFVG:           true,
		MinFvgDepthRatio:     0.05,
		RequireUnmitigated:   true,
	}
}
