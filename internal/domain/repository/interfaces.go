package repository

import (
	"context"
	"time"

	"OBScan/internal/domain/models"
)

// MarketData lists ranked instruments and their candle history.
type MarketData interface {
	TopVolumeInstruments(ctx context.Context, limit int) ([]models.Instrument, error)
	Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
}

// KlineStream delivers live candle updates.
type KlineStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.KlineEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ResultCache keeps the latest detection per instrument.
type ResultCache interface {
	Put(ctx context.Context, r models.DetectionResult) error
	Get(ctx context.Context, symbol string) (models.DetectionResult, bool, error)
	All(ctx context.Context) ([]models.DetectionResult, error)
}

// Publisher fans detections out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, r *models.DetectionResult) error
	PublishBatch(ctx context.Context, rs []*models.DetectionResult) error
	Close() error
}

// Storage persists detection history.
type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, r *models.DetectionResult) error
	StoreBatch(ctx context.Context, rs []*models.DetectionResult) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DetectionResult, error)
	Health(ctx context.Context) error
	Close() error
}

// UserRepository persists accounts.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]*models.User, error)
}

type Metrics interface {
	RecordScan(timeframe string, instruments int, d time.Duration)
	RecordDetection(timeframe string, zone models.ZoneType)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
