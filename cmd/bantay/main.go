// Command bantay serves the authentication API over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/lborres/bantay"
	fiberadapter "github.com/lborres/bantay/adapters/fiber"
	"github.com/lborres/bantay/adapters/mail"
	"github.com/lborres/bantay/adapters/memory"
	"github.com/lborres/bantay/adapters/oauth"
	pgxadapter "github.com/lborres/bantay/adapters/pgx"
	redisadapter "github.com/lborres/bantay/adapters/redis"
	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func logFormat() string {
	format := []string{
		// Timestamp & Request ID
		"${time}|${requestid}",

		// Response metadata
		"${status}|${latency}",

		// Client info
		"${ip}:${port}",

		// Request details
		"${method}|${path}",

		// errors
		"${error}",
	}
	return strings.Join(format, "|") + "\n"
}

func main() {
	if err := run(); err != nil {
		slog.Error("bantay stopped", "error", err)
		os.Exit(1)
	}
}

// healthCheck reports whether a dependency is reachable.
type healthCheck func(ctx context.Context) error

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checks []healthCheck

	storage, closeStorage, check, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()
	if check != nil {
		checks = append(checks, check)
	}

	sessionCache, closeCache, check, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()
	if check != nil {
		checks = append(checks, check)
	}

	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}

	providers, err := oauthProviders(ctx, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter := fiberadapter.NewRateLimiter(fiberadapter.RateLimiterConfig{
		Rate:  rate.Limit(cfg.RatePerMinute / 60),
		Burst: cfg.RateBurst,
	})
	defer limiter.Stop()

	app := fiber.New(fiber.Config{AppName: cfg.AppName})
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     logFormat(),
		TimeFormat: "2006/01/02 15:04:05",
		TimeZone:   "Local",
	}))
	app.Get("/healthz", func(c fiber.Ctx) error {
		for _, check := range checks {
			if err := check(c.Context()); err != nil {
				logger.WarnContext(c.Context(), "health check failed", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	adapter := fiberadapter.New(app,
		fiberadapter.WithRateLimiter(limiter),
		fiberadapter.WithMetricsHandler(metrics.Handler(registry)),
		fiberadapter.WithLogger(logger),
		fiberadapter.WithSecureCookies(cfg.SecureCookies),
	)

	b, err := bantay.New(bantay.Config{
		Secret:       cfg.Secret,
		Database:     storage,
		HTTP:         adapter,
		BasePath:     cfg.BasePath,
		CacheAdapter: sessionCache,
		Mailer:       mailer,
		BaseURL:      cfg.BaseURL,
		AppName:      cfg.AppName,

		RequireEmailVerification: cfg.RequireEmailVerification,
		SessionConfig: &bantay.SessionConfig{
			MaxAge:    cfg.SessionMaxAge,
			UpdateAge: cfg.SessionUpdateAge,
		},

		Providers: providers,
		Logger:    logger,
		Metrics:   metrics.NewCollector(registry),
	})
	if err != nil {
		return fmt.Errorf("could not create bantay instance: %w", err)
	}

	go b.RunCleanup(ctx, cfg.CleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.ListenAddr)
	}()
	logger.Info("bantay listening", "addr", cfg.ListenAddr, "base_path", b.BasePath, "providers", len(providers))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}

// openStorage connects to Postgres when DATABASE_URL is set, running
// migrations first, and falls back to the in-memory store.
func openStorage(ctx context.Context, cfg Config, logger *slog.Logger) (core.Storage, func(), healthCheck, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		return memory.New(), func() {}, nil, nil
	}

	if cfg.MigrateOnStart {
		if err := pgxadapter.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := pgxadapter.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	return pgxadapter.New(pool), pool.Close, pool.Ping, nil
}

// openCache uses Redis when REDIS_URL is set. Without it the library's
// in-memory cache applies.
func openCache(ctx context.Context, cfg Config, logger *slog.Logger) (core.Cache, func(), healthCheck, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, caching sessions in memory")
		return nil, func() {}, nil, nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	c := redisadapter.New(client, core.CacheConfig{TTL: 5 * time.Minute})
	if err := c.Health(ctx); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	return c, func() { client.Close() }, c.Health, nil
}

func oauthProviders(ctx context.Context, cfg Config) ([]core.OAuthProvider, error) {
	var providers []core.OAuthProvider

	if cfg.Google.Enabled() {
		p, err := oauth.NewGoogle(ctx, oauth.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.CallbackURL(core.ProviderGoogle),
		})
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		providers = append(providers, p)
	}

	if cfg.GitHub.Enabled() {
		p, err := oauth.NewGitHub(oauth.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.CallbackURL(core.ProviderGithub),
		})
		if err != nil {
			return nil, fmt.Errorf("github: %w", err)
		}
		providers = append(providers, p)
	}

	return providers, nil
}

