// Package scheduler sweeps purchases stuck in pending and feeds them through
// the reconciliation engine. It is the safety net for lost webhooks: a
// payment that succeeded at the gateway but never called back is credited on
// the next sweep.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/chapterhq/examslots/internal/clock"
	purchasedomain "github.com/chapterhq/examslots/internal/purchase/domain"
	reconciledomain "github.com/chapterhq/examslots/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	PurchaseRepo purchasedomain.Repository
	ReconcileSvc reconciledomain.Service
	Config       Config `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	purchaseRepo purchasedomain.Repository
	reconcileSvc reconciledomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.PurchaseRepo == nil || p.ReconcileSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		purchaseRepo: p.PurchaseRepo,
		reconcileSvc: p.ReconcileSvc,
	}, nil
}

// RunForever sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler.start",
		zap.Duration("run_interval", s.cfg.RunInterval),
		zap.Duration("pending_age", s.cfg.PendingAge),
		zap.Int("batch_size", s.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler.stop")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("scheduler.sweep.error", zap.Error(err))
			}
		}
	}
}

// RunOnce reconciles one batch of stale pending purchases. Per-reference
// failures are joined and reported together so one bad purchase cannot
// starve the rest of the batch.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.PendingAge)

	references, err := s.purchaseRepo.ListStalePending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(references) == 0 {
		return nil
	}

	start := s.clock.Now()
	var (
		sweepErr error
		credited int
	)
	for _, reference := range references {
		if ctx.Err() != nil {
			return errors.Join(sweepErr, ctx.Err())
		}

		result, err := s.reconcileSvc.Reconcile(ctx, reference)
		if err != nil {
			sweepErr = errors.Join(sweepErr, err)
			s.log.Warn("scheduler.reconcile.error",
				zap.String("payment_reference", reference),
				zap.Error(err),
			)
			continue
		}
		if result.Credited {
			credited++
		}
	}

	s.log.Info("scheduler.sweep.finish",
		zap.Int("pending_count", len(references)),
		zap.Int("credited_count", credited),
		zap.Int64("duration_ms", s.clock.Now().Sub(start).Milliseconds()),
	)
	return sweepErr
}
