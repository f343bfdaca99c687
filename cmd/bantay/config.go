package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/lborres/bantay/adapters/mail"
)

// Config is loaded from the environment, after an optional .env file.
type Config struct {
	ListenAddr string `env:"BANTAY_LISTEN_ADDR" envDefault:":8080"`
	Secret     string `env:"BANTAY_SECRET,required"`
	AppName    string `env:"BANTAY_APP_NAME" envDefault:"Bantay"`
	BasePath   string `env:"BANTAY_BASE_PATH" envDefault:"/api/auth"`
	// BaseURL is the frontend that email links point at.
	BaseURL string `env:"BANTAY_BASE_URL" envDefault:"http://localhost:3000"`
	// PublicURL is where this server is reachable, used for OAuth callbacks.
	PublicURL string `env:"BANTAY_PUBLIC_URL" envDefault:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL    string `env:"DATABASE_URL"`
	MigrateOnStart bool   `env:"BANTAY_MIGRATE" envDefault:"true"`
	RedisURL       string `env:"REDIS_URL"`

	RequireEmailVerification bool          `env:"REQUIRE_EMAIL_VERIFICATION"`
	SessionMaxAge            time.Duration `env:"SESSION_MAX_AGE" envDefault:"168h"`
	SessionUpdateAge         time.Duration `env:"SESSION_UPDATE_AGE" envDefault:"24h"`
	CleanupInterval          time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	SecureCookies            bool          `env:"SECURE_COOKIES"`

	RatePerMinute float64 `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	RateBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	Mail   mail.Config `envPrefix:"MAIL_"`
	Google OAuthClient `envPrefix:"GOOGLE_"`
	GitHub OAuthClient `envPrefix:"GITHUB_"`
}

type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// CallbackURL is the redirect URL registered with provider.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.PublicURL, "/") + "/" + strings.Trim(c.BasePath, "/") + "/oauth/" + provider + "/callback"
}

func (c *Config) Validate() error {
	if c.SessionMaxAge <= 0 || c.SessionUpdateAge <= 0 {
		return errors.New("session ages must be positive")
	}
	if c.SessionUpdateAge > c.SessionMaxAge {
		return errors.New("SESSION_UPDATE_AGE must not exceed SESSION_MAX_AGE")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("SESSION_CLEANUP_INTERVAL must be positive")
	}
	if c.RatePerMinute <= 0 || c.RateBurst <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func NewLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}
