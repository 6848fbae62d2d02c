package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/aegis/api"
	"github.com/xraph/aegis/engine"
	"github.com/xraph/aegis/simulate"
	"github.com/xraph/aegis/store"
	"github.com/xraph/aegis/store/memory"
	"github.com/xraph/aegis/store/postgres"
	redisstore "github.com/xraph/aegis/store/redis"
	"github.com/xraph/aegis/stream"
	"github.com/xraph/aegis/wire"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the onboarding API and notification sockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	setServeDefaults(v)

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("redis-url", "", "Redis URL for ledger storage (default: in memory)")
	f.String("postgres-url", "", "PostgreSQL URL for ledger storage (default: in memory)")
	f.Bool("postgres-migrate", true, "apply the PostgreSQL schema on startup")
	f.Duration("pacing-delay", 0, "pause between steps (default from engine config)")
	f.Duration("step-timeout", 0, "per-step handler timeout (default from engine config)")
	f.Duration("ledger-ttl", 0, "retention of finished ledgers (default from engine config)")
	f.Float64("latency-scale", 1, "multiplier for simulated step latency")
	f.String("organization", "your-org", "organization used in simulated repository URLs")
	f.Bool("auto-approve", false, "approve contracts automatically")
	f.Duration("auto-approve-delay", 5*time.Second, "delay before automatic approval")

	bind := map[string]string{
		"addr":                        "addr",
		"redis.url":                   "redis-url",
		"postgres.url":                "postgres-url",
		"postgres.migrate":            "postgres-migrate",
		"engine.pacing_delay":         "pacing-delay",
		"engine.step_timeout":         "step-timeout",
		"engine.ledger_ttl":           "ledger-ttl",
		"simulate.latency_scale":      "latency-scale",
		"simulate.organization":       "organization",
		"simulate.auto_approve":       "auto-approve",
		"simulate.auto_approve_delay": "auto-approve-delay",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}

	return cmd
}

// serve runs until ctx is cancelled, then drains the HTTP server, the
// sockets and the engine in that order.
func serve(ctx context.Context, cfg serveConfig, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	broker := stream.NewBroker(logger,
		stream.WithBufferSize(cfg.Stream.BufferSize),
		stream.WithDefaultCredits(cfg.Stream.Credits),
	)

	handlers := simulate.Registry(
		simulate.WithLatencyScale(cfg.Simulate.LatencyScale),
		simulate.WithOrganization(cfg.Simulate.Organization),
	)
	eng, err := engine.New(handlers,
		engine.WithConfig(cfg.Engine),
		engine.WithStore(st),
		engine.WithNotifier("stream", broker),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if cfg.Simulate.AutoApprove {
		eng.Notifier().Add("auto-approve", simulate.NewAutoApprover(eng, cfg.Simulate.AutoApproveDelay, logger))
	}

	wireSrv := wire.NewServer(broker, wire.WithLogger(logger))

	mux := http.NewServeMux()
	wireSrv.RegisterRoutes(mux)
	mux.Handle("/", api.New(eng, api.WithLogger(logger)).Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("aegis listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("aegis: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("aegis shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		wireSrv.Close()
		engErr := eng.Shutdown(shutdownCtx)
		broker.Close()
		return errors.Join(httpErr, engErr)
	})

	return g.Wait()
}

// openStore returns the Redis or PostgreSQL store when a URL is configured
// and the memory store otherwise.
func openStore(ctx context.Context, cfg serveConfig, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Postgres.URL != "" {
		return openPostgres(ctx, cfg, logger)
	}
	if cfg.Redis.URL == "" {
		return memory.New(), func() {}, nil
	}

	opts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("aegis: redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("aegis: redis ping: %w", err)
	}

	logger.Info("using redis store", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))
	return redisstore.New(rdb, redisstore.WithLogger(logger)), func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", slog.String("error", err.Error()))
		}
	}, nil
}

func openPostgres(ctx context.Context, cfg serveConfig, logger *slog.Logger) (store.Store, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s, err := postgres.New(connectCtx, cfg.Postgres.URL, postgres.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if err := s.Ping(connectCtx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("aegis: postgres ping: %w", err)
	}
	if cfg.Postgres.Migrate {
		if err := s.Migrate(connectCtx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
	}

	logger.Info("using postgres store")
	return s, func() { _ = s.Close() }, nil
}
