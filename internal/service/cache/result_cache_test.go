package cache

import (
	"context"
	"testing"
	"time"

	"OBScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(id string, zone models.ZoneType, price float64) models.DetectionResult {
	r := models.DetectionResult{
		Instrument: models.Instrument{ID: id, Name: id[:3], CurrentPrice: 1},
		ZoneType:   zone,
		Timeframe:  "4h",
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if zone != models.ZoneNone {
		r.ZonePrice = &price
	}
	return r
}

func TestResultCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := NewResultCache(NewTTLCache(), time.Hour)

	require.NoError(t, c.Put(ctx, result("BTCUSDT", models.ZoneBullish, 90)))

	got, ok, err := c.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ZoneBullish, got.ZoneType)
	assert.Equal(t, 90.0, *got.ZonePrice)
	assert.Equal(t, "BTC", got.Name)

	_, ok, err = c.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResultCache_LatestWinsAndAllIsSorted(t *testing.T) {
	ctx := context.Background()
	c := NewResultCache(NewTTLCache(), 0)

	require.NoError(t, c.Put(ctx, result("SOLUSDT", models.ZoneNone, 0)))
	require.NoError(t, c.Put(ctx, result("BTCUSDT", models.ZoneBullish, 90)))
	require.NoError(t, c.Put(ctx, result("BTCUSDT", models.ZoneBearish, 110)))

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "BTCUSDT", all[0].ID)
	assert.Equal(t, models.ZoneBearish, all[0].ZoneType)
	assert.Equal(t, "SOLUSDT", all[1].ID)
}

func TestResultCache_ExpiredEntriesAreSkipped(t *testing.T) {
	ctx := context.Background()
	store := NewTTLCache()
	now := time.Now()
	store.now = func() time.Time { return now }
	c := NewResultCache(store, time.Minute)

	require.NoError(t, c.Put(ctx, result("BTCUSDT", models.ZoneBullish, 90)))
	now = now.Add(2 * time.Minute)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResultCache_RejectsEmptyID(t *testing.T) {
	c := NewResultCache(NewTTLCache(), time.Minute)
	assert.Error(t, c.Put(context.Background(), models.DetectionResult{}))
}

func TestTTLCache(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache()

	require.NoError(t, c.SetBytes(ctx, "k", []byte("v"), 0))
	b, ok, err := c.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	c.Set("not-bytes", 42, 0)
	_, ok, _ = c.GetBytes(ctx, "not-bytes")
	assert.False(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.GetBytes(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.SetAdd(ctx, "s", "b", "a", "b"))
	members, err := c.SetMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
}
