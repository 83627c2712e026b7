package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/LeaseForge/internal/adapter/memory"
	cfnats "github.com/Strob0t/LeaseForge/internal/adapter/nats"
	"github.com/Strob0t/LeaseForge/internal/adapter/natskv"
	"github.com/Strob0t/LeaseForge/internal/adapter/natsobj"
	"github.com/Strob0t/LeaseForge/internal/adapter/postgres"
	"github.com/Strob0t/LeaseForge/internal/adapter/ristretto"
	"github.com/Strob0t/LeaseForge/internal/adapter/tiered"
	"github.com/Strob0t/LeaseForge/internal/config"
	"github.com/Strob0t/LeaseForge/internal/port/blobstore"
	"github.com/Strob0t/LeaseForge/internal/port/cache"
	"github.com/Strob0t/LeaseForge/internal/port/database"
	"github.com/Strob0t/LeaseForge/internal/port/notifier"
	"github.com/Strob0t/LeaseForge/internal/resilience"
)

// cleanups runs registered close funcs in reverse order.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// openStore returns the in-memory store or a migrated Postgres store.
func openStore(ctx context.Context, cfg *config.Config, inMemory, migrate bool, cl *cleanups) (database.Store, error) {
	if inMemory {
		slog.Warn("using in-memory lease store, data is lost on exit")
		return memory.NewStore(), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	cl.add(pool.Close)
	slog.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)

	if migrate {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")
	}
	return postgres.NewStore(pool), nil
}

// connectQueue connects to NATS. When optional is set a failed connection is
// logged and a nil queue returned.
func connectQueue(ctx context.Context, cfg *config.Config, optional bool, cl *cleanups) (*cfnats.Queue, error) {
	q, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		if optional {
			slog.Warn("nats unavailable, running without events, L2 cache and idempotency", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("nats: %w", err)
	}
	cl.add(func() {
		if err := q.Drain(); err != nil {
			slog.Warn("nats drain failed", "error", err)
		}
	})
	return q, nil
}

// buildCache assembles the tiered lease cache: ristretto in front of a NATS
// KV bucket when a queue is available.
func buildCache(ctx context.Context, cfg config.Cache, q *cfnats.Queue, cl *cleanups) (cache.Cache, error) {
	l1, err := ristretto.New(cfg.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	cl.add(l1.Close)

	var l2 cache.Cache
	if q != nil && cfg.L2Bucket != "" {
		kv, err := q.KeyValue(ctx, cfg.L2Bucket, cfg.L2TTL)
		if err != nil {
			return nil, fmt.Errorf("l2 cache: %w", err)
		}
		l2 = natskv.New(kv)
	}
	c := tiered.New(l1, l2, cfg.L1TTL)
	if q != nil {
		stop, err := c.Follow(q)
		if err != nil {
			return nil, fmt.Errorf("cache invalidation: %w", err)
		}
		cl.add(stop)
	}
	return c, nil
}

// buildBlobStore returns the NATS object store for signature images, or an
// in-process store without NATS.
func buildBlobStore(ctx context.Context, cfg config.Blob, q *cfnats.Queue) (blobstore.Store, error) {
	if q == nil {
		return memory.NewBlobStore(), nil
	}
	obs, err := q.ObjectStore(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return natsobj.New(obs), nil
}

// buildNotifiers creates every configured notifier with its circuit breaker.
func buildNotifiers(cfg *config.Config) ([]notifier.Notifier, map[string]*resilience.Breaker, error) {
	configs := map[string]notifier.Settings{}
	if cfg.SMTP.Host != "" {
		configs["email"] = notifier.Settings{
			"host":     cfg.SMTP.Host,
			"port":     fmt.Sprint(cfg.SMTP.Port),
			"username": cfg.SMTP.Username,
			"password": cfg.SMTP.Password,
			"from":     cfg.SMTP.From,
		}
	}
	if cfg.Slack.WebhookURL != "" {
		configs["slack"] = notifier.Settings{"webhook_url": cfg.Slack.WebhookURL}
	}

	var (
		out      []notifier.Notifier
		breakers = map[string]*resilience.Breaker{}
		errs     []error
	)
	for _, name := range notifier.Available() {
		c, ok := configs[name]
		if !ok {
			continue
		}
		n, err := notifier.New(name, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, n)
		breakers[name] = resilience.New(name, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
			resilience.WithIgnored(notifier.ErrNotConfigured, notifier.ErrNoRecipient))
	}
	return out, breakers, errors.Join(errs...)
}
