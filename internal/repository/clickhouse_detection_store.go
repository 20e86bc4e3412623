package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"OBScan/internal/domain/models"
	"OBScan/internal/domain/repository"
)

const detectionColumns = "ts, symbol, name, timeframe, zone_type, zone_price, zone_open, zone_high, zone_low, zone_close, range_start, range_end, current_price, volume, candle_time, details"

// DetectionSchema returns the idempotent DDL for the detection history table.
func DetectionSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts            DateTime64(3),
	symbol        LowCardinality(String),
	name          String,
	timeframe     LowCardinality(String),
	zone_type     LowCardinality(String),
	zone_price    Nullable(Float64),
	zone_open     Nullable(Float64),
	zone_high     Nullable(Float64),
	zone_low      Nullable(Float64),
	zone_close    Nullable(Float64),
	range_start   Nullable(Float64),
	range_end     Nullable(Float64),
	current_price Float64,
	volume        String,
	candle_time   Int64,
	details       String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, timeframe, candle_time, zone_type)`, table),
	}
}

// ClickHouseDetectionStore keeps detection history in ClickHouse. Rows are
// deduplicated on (symbol, timeframe, candle_time, zone_type) at merge time,
// so re-detecting the same block on every scan does not grow the table.
type ClickHouseDetectionStore struct {
	db       *sql.DB
	database string
	table    string
}

// NewClickHouseDetectionStore creates the store; table is fully qualified.
func NewClickHouseDetectionStore(db *sql.DB, database, table string) *ClickHouseDetectionStore {
	return &ClickHouseDetectionStore{db: db, database: database, table: table}
}

var _ repository.Storage = (*ClickHouseDetectionStore)(nil)

func (s *ClickHouseDetectionStore) Init(ctx context.Context) error {
	for _, stmt := range DetectionSchema(s.database, s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init detections schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseDetectionStore) Store(ctx context.Context, r *models.DetectionResult) error {
	if !storable(r) {
		return fmt.Errorf("detection without symbol or timestamp")
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, detectionColumns, placeholders)
	_, err := s.db.ExecContext(ctx, q, detectionArgs(r)...)
	return err
}

// StoreBatch inserts in multi-row chunks; invalid entries are skipped.
func (s *ClickHouseDetectionStore) StoreBatch(ctx context.Context, rs []*models.DetectionResult) error {
	const chunkSize = 1000
	for start := 0; start < len(rs); start += chunkSize {
		end := min(start+chunkSize, len(rs))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*16)
		for _, r := range rs[start:end] {
			if !storable(r) {
				continue
			}
			values = append(values, placeholders)
			args = append(args, detectionArgs(r)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, detectionColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// Query returns the newest detections for symbol inside [from, to].
func (s *ClickHouseDetectionStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DetectionResult, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", detectionColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DetectionResult
	for rows.Next() {
		var (
			r    models.DetectionResult
			zone string
			nums [7]sql.NullFloat64
		)
		if err := rows.Scan(
			&r.Timestamp, &r.ID, &r.Name, &r.Timeframe, &zone,
			&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5], &nums[6],
			&r.CurrentPrice, &r.Volume, &r.CandleTime, &r.Details,
		); err != nil {
			return nil, err
		}
		r.ZoneType = models.ZoneType(zone)
		r.ZonePrice = fromNull(nums[0])
		r.ZoneOpen = fromNull(nums[1])
		r.ZoneHigh = fromNull(nums[2])
		r.ZoneLow = fromNull(nums[3])
		r.ZoneClose = fromNull(nums[4])
		r.ZoneRangeStart = fromNull(nums[5])
		r.ZoneRangeEnd = fromNull(nums[6])
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *ClickHouseDetectionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op: the pool belongs to the clickhouse client.
func (s *ClickHouseDetectionStore) Close() error {
	return nil
}

const placeholders = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

func storable(r *models.DetectionResult) bool {
	return r != nil && r.ID != "" && !r.Timestamp.IsZero()
}

func detectionArgs(r *models.DetectionResult) []interface{} {
	return []interface{}{
		r.Timestamp.UTC(),
		r.ID,
		r.Name,
		r.Timeframe,
		string(r.ZoneType),
		toNull(r.ZonePrice),
		toNull(r.ZoneOpen),
		toNull(r.ZoneHigh),
		toNull(r.ZoneLow),
		toNull(r.ZoneClose),
		toNull(r.ZoneRangeStart),
		toNull(r.ZoneRangeEnd),
		r.CurrentPrice,
		r.Volume,
		r.CandleTime,
		r.Details,
	}
}

// toNull binds a missing zone level as NULL.
func toNull(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
