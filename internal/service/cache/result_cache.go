package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
)

const (
	resultKeyPrefix = "result:"
	resultIndexKey  = "results:index"
)

// ResultCache keeps the latest DetectionResult per instrument as JSON on top
// of any BytesCache, with a set of known symbols for listing.
type ResultCache struct {
	store BytesCache
	ttl   time.Duration
}

var _ drepo.ResultCache = (*ResultCache)(nil)

func NewResultCache(store BytesCache, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

func (c *ResultCache) Put(ctx context.Context, r models.DetectionResult) error {
	if r.ID == "" {
		return fmt.Errorf("result without instrument id")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.store.SetBytes(ctx, resultKeyPrefix+r.ID, b, c.ttl); err != nil {
		return fmt.Errorf("store result %s: %w", r.ID, err)
	}
	if err := c.store.SetAdd(ctx, resultIndexKey, r.ID); err != nil {
		return fmt.Errorf("index result %s: %w", r.ID, err)
	}
	return nil
}

func (c *ResultCache) Get(ctx context.Context, symbol string) (models.DetectionResult, bool, error) {
	var r models.DetectionResult
	b, ok, err := c.store.GetBytes(ctx, resultKeyPrefix+symbol)
	if err != nil || !ok {
		return r, false, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, false, fmt.Errorf("decode result %s: %w", symbol, err)
	}
	return r, true, nil
}

// All returns every unexpired result ordered by instrument id.
func (c *ResultCache) All(ctx context.Context) ([]models.DetectionResult, error) {
	ids, err := c.store.SetMembers(ctx, resultIndexKey)
	if err != nil {
		return nil, fmt.Errorf("list result index: %w", err)
	}
	sort.Strings(ids)

	out := make([]models.DetectionResult, 0, len(ids))
	for _, id := range ids {
		r, ok, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
