// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/templates/token-service/internal/admin"
	"github.com/carterperez-dev/templates/token-service/internal/config"
	"github.com/carterperez-dev/templates/token-service/internal/core"
	"github.com/carterperez-dev/templates/token-service/internal/gateway"
	"github.com/carterperez-dev/templates/token-service/internal/health"
	"github.com/carterperez-dev/templates/token-service/internal/identity"
	"github.com/carterperez-dev/templates/token-service/internal/middleware"
	"github.com/carterperez-dev/templates/token-service/internal/server"
	"github.com/carterperez-dev/templates/token-service/internal/token"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	generateKeys := flag.Bool(
		"generate-keys",
		false,
		"generate a signing key pair at the configured paths and exit",
	)
	flag.Parse()

	if *generateKeys {
		if err := runGenerateKeys(*configPath); err != nil {
			slog.Error("key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func runGenerateKeys(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := token.GenerateKeyPair(
		cfg.Token.PrivateKeyPath,
		cfg.Token.PublicKeyPath,
	); err != nil {
		return err
	}

	slog.Info("signing key pair generated",
		"private_key", cfg.Token.PrivateKeyPath,
		"public_key", cfg.Token.PublicKeyPath,
	)
	return nil
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	issuer, err := token.NewIssuer(cfg.Token)
	if err != nil {
		return err
	}
	logger.Info("access token issuer initialized",
		"algorithm", "ES256",
		"key_id", issuer.KeyID(),
		"access_ttl", cfg.Token.AccessTokenTTL,
	)

	tokenStore := token.NewPostgresStore(db.DB)
	lifecycle := token.NewLifecycle(
		tokenStore,
		cfg.Token.RefreshTokenTTL,
		cfg.Token.StoreTimeout,
	)

	identityRepo := identity.NewRepository(db.DB)

	gatewaySvc := gateway.NewService(lifecycle, issuer, identityRepo)
	gatewayHandler := gateway.NewHandler(gatewaySvc)

	healthHandler := health.NewHandler(db, redis)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Sweeper:    lifecycle,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", issuer.JWKSHandler())

	authenticator := middleware.Authenticator(issuer)

	router.Route("/v1", func(r chi.Router) {
		gatewayHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator)
	})

	sweepDone := startSweeper(ctx, lifecycle, cfg.Token.SweepInterval, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	<-sweepDone

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// startSweeper deletes expired refresh tokens on a timer. Expired rows are
// already inert; the sweep only reclaims storage, so failures are logged
// and retried on the next tick rather than surfaced.
func startSweeper(
	ctx context.Context,
	lifecycle *token.Lifecycle,
	interval time.Duration,
	logger *slog.Logger,
) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := lifecycle.SweepExpired(ctx)
				if err != nil {
					logger.Error("expired token sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("expired tokens swept", "deleted", deleted)
				}
			}
		}
	}()

	return done
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
