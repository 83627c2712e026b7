package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/LeaseForge/internal/adapter/otel"
	"github.com/Strob0t/LeaseForge/internal/config"
	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/port/database"
)

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Expired        int `json:"expired"`
	AlreadyExpired int `json:"already_expired"`
	Failed         int `json:"failed"`
}

// ExpirySweeper moves fully executed leases past their end date to expired.
// Several sweepers may run at once: a StaleState on a lease means another
// sweeper got there first and counts as success.
type ExpirySweeper struct {
	store       database.Store
	leases      *LeaseService
	interval    time.Duration
	batchSize   int
	concurrency int
	metrics     *otel.Metrics
	now         func() time.Time
}

// NewExpirySweeper creates a sweeper from the expiry config.
func NewExpirySweeper(store database.Store, leases *LeaseService, cfg config.Expiry) *ExpirySweeper {
	return &ExpirySweeper{
		store:       store,
		leases:      leases,
		interval:    cfg.Interval,
		batchSize:   max(cfg.BatchSize, 1),
		concurrency: max(cfg.Concurrency, 1),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *ExpirySweeper) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	slog.Info("expiry sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("expiry sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every eligible lease, one batch at a time.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (res SweepResult, err error) {
	ctx, span := otel.StartSweepSpan(ctx, s.batchSize)
	defer func() { otel.EndSpan(span, err) }()
	start := time.Now()

	for {
		batch, err := s.store.ListExpirable(ctx, s.now(), s.batchSize)
		if err != nil {
			return res, fmt.Errorf("list expirable leases: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var expired, already, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i := range batch {
			id, version := batch[i].ID, batch[i].Version
			g.Go(func() error {
				_, err := s.leases.Expire(gctx, id, version)
				switch {
				case err == nil:
					expired.Add(1)
				case errors.Is(err, domain.ErrConflict):
					already.Add(1)
				default:
					failed.Add(1)
					slog.WarnContext(gctx, "lease expiry failed", "lease_id", id, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()

		res.Expired += int(expired.Load())
		res.AlreadyExpired += int(already.Load())
		res.Failed += int(failed.Load())

		if err := ctx.Err(); err != nil {
			return res, err
		}
		// A short batch is the last one; a batch of pure failures would be
		// listed again forever.
		if len(batch) < s.batchSize || expired.Load()+already.Load() == 0 {
			break
		}
	}

	s.metrics.RecordSweep(ctx, res.Expired, time.Since(start).Seconds())
	if res.Expired > 0 || res.Failed > 0 {
		slog.InfoContext(ctx, "expiry sweep finished",
			"expired", res.Expired, "already_expired", res.AlreadyExpired, "failed", res.Failed)
	}
	return res, nil
}
