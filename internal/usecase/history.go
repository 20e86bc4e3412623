package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
)

const (
	DefaultHistoryLimit = 500
	MaxHistoryLimit     = 5000
	defaultHistorySpan  = 30 * 24 * time.Hour
)

var (
	ErrHistoryDisabled = errors.New("detection history is not configured")
	ErrInvalidRange    = errors.New("from must not be after to")
	ErrSymbolRequired  = errors.New("symbol is required")
)

type HistoryParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

// HistoryUseCase reads stored detections for one instrument.
type HistoryUseCase struct {
	store drepo.Storage
	now   func() time.Time
}

// NewHistoryUseCase accepts a nil store; every query then fails with
// ErrHistoryDisabled.
func NewHistoryUseCase(store drepo.Storage) *HistoryUseCase {
	return &HistoryUseCase{store: store, now: time.Now}
}

// GetHistory returns detections newest first. A zero To means now, a zero
// From means 30 days before To.
func (uc *HistoryUseCase) GetHistory(ctx context.Context, p HistoryParams) ([]*models.DetectionResult, error) {
	if uc.store == nil {
		return nil, ErrHistoryDisabled
	}
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, ErrSymbolRequired
	}
	if p.To.IsZero() {
		p.To = uc.now()
	}
	if p.From.IsZero() {
		p.From = p.To.Add(-defaultHistorySpan)
	}
	if p.From.After(p.To) {
		return nil, ErrInvalidRange
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultHistoryLimit
	case p.Limit > MaxHistoryLimit:
		p.Limit = MaxHistoryLimit
	}

	rs, err := uc.store.Query(ctx, p.Symbol, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if rs == nil {
		rs = []*models.DetectionResult{}
	}
	return rs, nil
}
