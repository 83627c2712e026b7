package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	lfhttp "github.com/Strob0t/LeaseForge/internal/adapter/http"
	"github.com/Strob0t/LeaseForge/internal/adapter/otel"
	"github.com/Strob0t/LeaseForge/internal/adapter/ws"
	"github.com/Strob0t/LeaseForge/internal/config"
	"github.com/Strob0t/LeaseForge/internal/middleware"
	"github.com/Strob0t/LeaseForge/internal/port/messagequeue"
	"github.com/Strob0t/LeaseForge/internal/secrets"
	"github.com/Strob0t/LeaseForge/internal/service"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		inMemory bool
		migrate  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, flush, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, *configPath, inMemory, migrate)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "memory", false, "keep leases in memory instead of PostgreSQL (local demos)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations on startup")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, configPath string, inMemory, migrate bool) error {
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"auth", cfg.Auth.Enabled,
		"memory", inMemory,
	)

	var cl cleanups
	defer cl.run()

	// --- Observability ---
	shutdownOTEL, err := otel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	cl.add(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	})
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	store, err := openStore(ctx, cfg, inMemory, migrate, &cl)
	if err != nil {
		return err
	}
	queue, err := connectQueue(ctx, cfg, inMemory, &cl)
	if err != nil {
		return err
	}
	var mq messagequeue.Queue
	if queue != nil {
		mq = queue
	}

	// --- Services ---
	hub := ws.NewHub(cfg.Server.CORSOrigin)
	cl.add(hub.Close)

	notifiers, breakers, err := buildNotifiers(cfg)
	if err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}
	notifications := service.NewNotificationService(hub, mq, notifiers)
	for name, b := range breakers {
		notifications.SetBreaker(name, b)
	}
	notifications.SetMetrics(metrics)
	cl.add(notifications.Wait)
	slog.Info("notifiers ready", "count", notifications.NotifierCount())

	leases := service.NewLeaseService(store, notifications)
	leases.SetMetrics(metrics)
	if cfg.Cache.Enabled {
		c, err := buildCache(ctx, cfg.Cache, queue, &cl)
		if err != nil {
			return err
		}
		leases.SetCache(c, cfg.Cache.L2TTL)
	}
	blobs, err := buildBlobStore(ctx, cfg.Blob, queue)
	if err != nil {
		return err
	}
	leases.SetBlobStore(blobs, cfg.Blob.MaxBytes)

	sweeper := service.NewExpirySweeper(store, leases, cfg.Expiry)
	sweeper.SetMetrics(metrics)
	if cfg.Expiry.Enabled {
		go sweeper.Run(ctx)
	}

	// --- HTTP ---
	opts := lfhttp.RouterOptions{
		CORSOrigin:     cfg.Server.CORSOrigin,
		WS:             hub.HandleWS,
		ServiceName:    cfg.OTEL.ServiceName,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Auth.Enabled {
		vault, err := secrets.NewVault(secrets.ConfigLoader(configPath))
		if err != nil {
			return err
		}
		go vault.ReloadOn(ctx, syscall.SIGHUP)
		opts.Verifier = middleware.NewRotatingTokenVerifier(vault.Getter(secrets.KeyJWTSecret), cfg.Auth.Issuer)
	} else {
		slog.Warn("auth disabled, actors are read from X-User-ID and X-User-Role")
	}
	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	cl.add(limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime))
	opts.RateLimiter = limiter
	if cfg.Idempotency.Enabled && queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
		if err != nil {
			return fmt.Errorf("idempotency: %w", err)
		}
		opts.Idempotency = kv
	}

	checks := map[string]lfhttp.ReadinessCheck{"store": store.Ping}
	if queue != nil {
		checks["nats"] = func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	handlers := &lfhttp.Handlers{
		Leases:     leases,
		Sweeper:    sweeper,
		Checks:     checks,
		BodyLimit:  cfg.Server.MaxBodyBytes,
		ImageLimit: cfg.Blob.MaxBytes,
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           lfhttp.NewRouter(handlers, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
