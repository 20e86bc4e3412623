package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	pkgkafka "OBScan/pkg/kafka"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func bullish(symbol string) *models.DetectionResult {
	return &models.DetectionResult{
		Instrument:     models.Instrument{ID: symbol, Name: "BTC", CurrentPrice: 64000, Volume: "12.5B"},
		ZoneType:       models.ZoneBullish,
		ZonePrice:      f(61000),
		ZoneOpen:       f(61500),
		ZoneHigh:       f(61800),
		ZoneLow:        f(61000),
		ZoneClose:      f(61200),
		ZoneRangeStart: f(61500),
		ZoneRangeEnd:   f(61000),
		Timestamp:      ts,
		Timeframe:      "4h",
		Details:        "Potential 4H order block",
		CandleTime:     1714550400000,
	}
}

func TestClickHouseDetectionStore_Store(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewClickHouseDetectionStore(db, "obscan", "obscan.detections")

	mock.ExpectExec("INSERT INTO obscan.detections").
		WithArgs(ts, "BTCUSDT", "BTC", "4h", "BullishOB",
			61000.0, 61500.0, 61800.0, 61000.0, 61200.0, 61500.0, 61000.0,
			64000.0, "12.5B", int64(1714550400000), "Potential 4H order block").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Store(context.Background(), bullish("BTCUSDT")))
	assert.Error(t, s.Store(context.Background(), &models.DetectionResult{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseDetectionStore_StoreBatchSkipsInvalid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewClickHouseDetectionStore(db, "obscan", "obscan.detections")

	none := &models.DetectionResult{
		Instrument: models.Instrument{ID: "ETHUSDT"},
		ZoneType:   models.ZoneNone,
		Timestamp:  ts,
	}
	mock.ExpectExec(regexp.QuoteMeta("VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?),(?, ?")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err = s.StoreBatch(context.Background(), []*models.DetectionResult{bullish("BTCUSDT"), nil, {}, none})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// nothing valid: no round-trip
	require.NoError(t, s.StoreBatch(context.Background(), []*models.DetectionResult{nil}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseDetectionStore_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewClickHouseDetectionStore(db, "obscan", "obscan.detections")

	cols := []string{"ts", "symbol", "name", "timeframe", "zone_type", "zone_price", "zone_open", "zone_high",
		"zone_low", "zone_close", "range_start", "range_end", "current_price", "volume", "candle_time", "details"}
	rows := sqlmock.NewRows(cols).
		AddRow(ts, "BTCUSDT", "BTC", "4h", "BullishOB", 61000.0, 61500.0, 61800.0, 61000.0, 61200.0, 61500.0, 61000.0,
			64000.0, "12.5B", int64(1714550400000), "found").
		AddRow(ts.Add(-4*time.Hour), "BTCUSDT", "BTC", "4h", "None", nil, nil, nil, nil, nil, nil, nil,
			63000.0, "11.0B", int64(0), "none")

	from, to := ts.Add(-24*time.Hour), ts
	mock.ExpectQuery("SELECT .* FROM obscan.detections FINAL WHERE symbol = \\?").
		WithArgs("BTCUSDT", from, to, 50).
		WillReturnRows(rows)

	got, err := s.Query(context.Background(), "BTCUSDT", from, to, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, models.ZoneBullish, got[0].ZoneType)
	require.NotNil(t, got[0].ZonePrice)
	assert.Equal(t, 61000.0, *got[0].ZonePrice)
	assert.Equal(t, 61500.0, *got[0].ZoneRangeStart)
	assert.Equal(t, "12.5B", got[0].Volume)

	assert.Equal(t, models.ZoneNone, got[1].ZoneType)
	assert.Nil(t, got[1].ZonePrice)
	assert.Nil(t, got[1].ZoneRangeEnd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseDetectionStore_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE IF NOT EXISTS obscan").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS obscan.detections").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewClickHouseDetectionStore(db, "obscan", "obscan.detections").Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeProducer struct {
	topic  string
	keys   []string
	values []interface{}
	closed bool
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic = topic
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func (p *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	for _, m := range msgs {
		p.keys = append(p.keys, string(m.Key))
		p.values = append(p.values, m.Value)
	}
	return nil
}

func (p *fakeProducer) Close() error { p.closed = true; return nil }

func TestKafkaDetectionPublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := NewKafkaDetectionPublisher(fp, "obscan.detections")

	require.NoError(t, p.Publish(context.Background(), bullish("BTCUSDT")))
	require.NoError(t, p.PublishBatch(context.Background(), []*models.DetectionResult{bullish("ETHUSDT"), nil, bullish("SOLUSDT")}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.NoError(t, p.Close())

	assert.Equal(t, "obscan.detections", fp.topic)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, fp.keys)
	assert.IsType(t, &models.DetectionResult{}, fp.values[0])
	assert.True(t, fp.closed)
}

func newPostgresMock(t *testing.T) (*PostgresUserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresUserRepository(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestPostgresUserRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newPostgresMock(t)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{ID: "1", Username: "alice", Email: "a@x.io", CreatedAt: ts})
	assert.ErrorIs(t, err, drepo.ErrUserExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepository_FindByUsername(t *testing.T) {
	repo, mock := newPostgresMock(t)

	end := ts.Add(72 * time.Hour)
	cols := []string{"id", "username", "email", "password_hash", "roles", "is_premium", "trial_start", "trial_end", "created_at"}
	mock.ExpectQuery("SELECT \\* FROM users WHERE username = \\$1").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("1", "alice", "a@x.io", "hash", "ROLE_USER,ROLE_TRIAL", false, ts, end, ts))

	u, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSet{models.RoleUser, models.RoleTrial}, u.Roles)
	require.NotNil(t, u.TrialEnd)
	assert.Equal(t, end, *u.TrialEnd)
	assert.True(t, u.TrialActive(ts))

	mock.ExpectQuery("SELECT \\* FROM users").WithArgs("bob").WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.FindByUsername(context.Background(), "bob")
	assert.ErrorIs(t, err, drepo.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserRepository_UpdateMissing(t *testing.T) {
	repo, mock := newPostgresMock(t)

	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), &models.User{Username: "ghost"})
	assert.ErrorIs(t, err, drepo.ErrUserNotFound)
}

func TestPostgresUserRepository_Exists(t *testing.T) {
	repo, mock := newPostgresMock(t)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("a@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.ExistsByEmail(context.Background(), "a@x.io")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(errors.New("conn reset"))
	_, err = repo.ExistsByUsername(context.Background(), "alice")
	assert.Error(t, err)
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	u := &models.User{ID: "1", Username: "alice", Email: "Alice@x.io", Roles: models.RoleSet{models.RoleUser}, CreatedAt: ts}
	require.NoError(t, repo.Create(ctx, u))
	assert.ErrorIs(t, repo.Create(ctx, u), drepo.ErrUserExists)
	assert.ErrorIs(t, repo.Create(ctx, &models.User{Username: "bob", Email: "alice@x.io"}), drepo.ErrUserExists)

	ok, _ := repo.ExistsByEmail(ctx, "alice@X.io")
	assert.True(t, ok)

	// callers cannot mutate stored state through returned pointers
	got, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	got.Roles[0] = models.RoleAdmin
	again, _ := repo.FindByUsername(ctx, "alice")
	assert.Equal(t, models.RoleUser, again.Roles[0])

	again.IsPremium = true
	require.NoError(t, repo.Update(ctx, again))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsPremium)

	assert.ErrorIs(t, repo.Update(ctx, &models.User{Username: "ghost"}), drepo.ErrUserNotFound)
	_, err = repo.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, drepo.ErrUserNotFound)
}
