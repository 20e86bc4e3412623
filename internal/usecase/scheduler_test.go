package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
	err     error
}

func (r *blockingRunner) Scan(ctx context.Context, p ScanParams) (*models.ScanReport, error) {
	r.calls.Add(1)
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.ScanReport{RunID: "run", Timeframe: string(p.Timeframe)}, nil
}

func TestScheduler_RunOnceSkipsOverlap(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewScanScheduler(runner, ScanParams{Timeframe: drepo.TF4h, Limit: 100}, time.Hour, false, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-runner.started

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(runner.release)
	require.NoError(t, <-done)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "4h", last.Timeframe)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestScheduler_FailedRunKeepsPreviousReport(t *testing.T) {
	runner := &blockingRunner{}
	s := NewScanScheduler(runner, ScanParams{Timeframe: drepo.TF4h, Limit: 100}, 0, false, nil)

	_, ok := s.Last()
	assert.False(t, ok)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	runner.err = errors.New("boom")
	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "run", last.RunID)
}

func TestScheduler_RunOnStart(t *testing.T) {
	runner := &blockingRunner{}
	s := NewScanScheduler(runner, ScanParams{Timeframe: drepo.TF4h, Limit: 100}, 0, true, nil)

	s.Start(context.Background())
	s.Stop()
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestScheduler_Periodic(t *testing.T) {
	runner := &blockingRunner{}
	s := NewScanScheduler(runner, ScanParams{Timeframe: drepo.TF4h, Limit: 100}, 10*time.Millisecond, false, nil)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
}
