package game

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const archiveTimeout = 10 * time.Second

// Archiver hands settled rounds to a worker pool so slow archive writes
// never hold up the round loop.
type Archiver struct {
	next RoundRecorder
	pool *ants.Pool
	log  *zap.Logger
}

// NewArchiver wraps next with a pool of workers goroutines. Submissions
// never block; when every worker is busy the round is rejected.
func NewArchiver(next RoundRecorder, workers int, log *zap.Logger) (*Archiver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("archive")

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("archive worker panic", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("archive pool: %w", err)
	}
	return &Archiver{next: next, pool: pool, log: log}, nil
}

// RecordRound queues the result and returns immediately. It fails only when
// every worker is busy.
func (a *Archiver) RecordRound(_ context.Context, result RoundResult) error {
	err := a.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := a.next.RecordRound(ctx, result); err != nil {
			a.log.Warn("archive write failed", zap.Uint64("round", result.RoundID), zap.Error(err))
			return
		}
		a.log.Debug("round archived", zap.Uint64("round", result.RoundID), zap.Int("bets", len(result.Bets)))
	})
	if err != nil {
		return fmt.Errorf("queue round %d: %w", result.RoundID, err)
	}
	return nil
}

// Close waits up to timeout for queued writes to finish.
func (a *Archiver) Close(timeout time.Duration) error {
	return a.pool.ReleaseTimeout(timeout)
}
