package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_Defaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStorage{}
	uc := NewHistoryUseCase(store)
	uc.now = func() time.Time { return now }

	rs, err := uc.GetHistory(context.Background(), HistoryParams{Symbol: " btcusdt "})
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)

	assert.Equal(t, "BTCUSDT", store.query.symbol)
	assert.Equal(t, now, store.query.to)
	assert.Equal(t, now.Add(-30*24*time.Hour), store.query.from)
	assert.Equal(t, DefaultHistoryLimit, store.query.limit)
}

func TestHistory_ClampsLimit(t *testing.T) {
	store := &fakeStorage{}
	uc := NewHistoryUseCase(store)

	_, err := uc.GetHistory(context.Background(), HistoryParams{Symbol: "ETHUSDT", Limit: 100000})
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, store.query.limit)
}

func TestHistory_Validation(t *testing.T) {
	uc := NewHistoryUseCase(&fakeStorage{})
	to := time.Now()

	_, err := uc.GetHistory(context.Background(), HistoryParams{Symbol: "BTCUSDT", From: to.Add(time.Hour), To: to})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = uc.GetHistory(context.Background(), HistoryParams{Symbol: "  "})
	assert.ErrorIs(t, err, ErrSymbolRequired)

	_, err = NewHistoryUseCase(nil).GetHistory(context.Background(), HistoryParams{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}
