// Package bantay wires the account authentication services into an HTTP
// adapter. Most programs only need New and a storage adapter.
package bantay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/cache"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/email"
	"github.com/lborres/bantay/services"
)

// interfaces
type (
	Storage     = core.Storage
	Cache       = core.Cache
	Mailer      = core.Mailer
	Metrics     = core.Metrics
	HTTPAdapter = core.HTTPAdapter

	OAuthProvider   = core.OAuthProvider
	PasswordHandler = crypto.PasswordHandler
)

// structs
type (
	SessionConfig      = core.SessionConfig
	VerificationConfig = core.VerificationConfig
	CacheConfig        = core.CacheConfig
)

type (
	User         = core.User
	Account      = core.Account
	Session      = core.Session
	SessionData  = core.SessionData
	Verification = core.Verification
	CacheStats   = core.CacheStats
)

const (
	defaultBasePath  = "/api/auth"
	defaultAppName   = "Bantay"
	defaultSecretLen = 32
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache          = cache.NewInMemoryCache
	NewArgon2                 = crypto.NewArgon2
	DefaultSessionConfig      = core.DefaultSessionConfig
	DefaultVerificationConfig = core.DefaultVerificationConfig
)

var (
	ErrUserExists         = core.ErrUserExists
	ErrUserNotFound       = core.ErrUserNotFound
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrUserBanned         = core.ErrUserBanned
	ErrForbidden          = core.ErrForbidden
)

var (
	ErrLastMethod      = core.ErrLastMethod
	ErrAlreadyLinked   = core.ErrAlreadyLinked
	ErrExternalIDInUse = core.ErrExternalIDInUse
)

var (
	ErrInvalidToken    = core.ErrInvalidToken
	ErrSessionNotFound = core.ErrSessionNotFound
	ErrSessionExpired  = core.ErrSessionExpired
	ErrTokenNotFound   = core.ErrTokenNotFound
	ErrTokenExpired    = core.ErrTokenExpired
	ErrTokenSuperseded = core.ErrTokenSuperseded
)

var (
	ErrDBAdapterRequired   = core.ErrDBAdapterRequired
	ErrHTTPAdapterRequired = core.ErrHTTPAdapterRequired
	ErrMailerRequired      = core.ErrMailerRequired
	ErrSecretRequired      = core.ErrSecretRequired
	ErrSecretTooShort      = core.ErrSecretTooShort
	ErrBaseURLRequired     = core.ErrBaseURLRequired
)

type Config struct {
	// Secret signs short-lived cookies. At least 32 characters.
	Secret string

	Database Storage
	HTTP     HTTPAdapter
	BasePath string

	CacheAdapter Cache
	DisableCache bool

	// Mailer sends verification, reset, OTP and notification email. Without
	// one no email is sent.
	Mailer Mailer
	// BaseURL prefixes links placed in emails. Required with a Mailer.
	BaseURL string
	AppName string

	// RequireEmailVerification needs a Mailer.
	RequireEmailVerification bool

	PasswordHasher     PasswordHandler
	SessionConfig      *SessionConfig
	VerificationConfig *VerificationConfig

	Providers []OAuthProvider

	Logger  *slog.Logger
	Metrics Metrics
}

// Bantay holds the wired services.
type Bantay struct {
	Auth          *services.AuthService
	Methods       *services.MethodRegistry
	Sessions      *services.SessionManager
	Confirmations *services.ConfirmationFlow
	Admin         *services.AdminService

	Providers map[string]OAuthProvider
	BasePath  string

	logger *slog.Logger
}

func New(config Config) (*Bantay, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}
	if config.RequireEmailVerification && config.Mailer == nil {
		return nil, ErrMailerRequired
	}
	if config.Mailer != nil && config.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	// Set Defaults

	cacheAdapter := config.CacheAdapter
	if cacheAdapter == nil && !config.DisableCache {
		cacheAdapter = NewInMemoryCache(CacheConfig{
			TTL:     5 * time.Minute,
			MaxSize: 500,
		})
	}

	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	verificationConfig := DefaultVerificationConfig()
	if config.VerificationConfig != nil {
		verificationConfig = *config.VerificationConfig
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = NewArgon2()
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	appName := config.AppName
	if appName == "" {
		appName = defaultAppName
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	providers := make(map[string]OAuthProvider, len(config.Providers))
	for _, p := range config.Providers {
		if _, dup := providers[p.ID()]; dup {
			return nil, fmt.Errorf("oauth provider %q configured twice", p.ID())
		}
		providers[p.ID()] = p
	}

	mail := services.Mail{Mailer: config.Mailer, BaseURL: strings.TrimRight(config.BaseURL, "/")}
	if config.Mailer != nil {
		renderer, err := email.NewRenderer(appName)
		if err != nil {
			return nil, fmt.Errorf("could not load email templates: %w", err)
		}
		mail.Renderer = renderer
	}

	opts := []services.Option{services.WithLogger(logger), services.WithMetrics(config.Metrics)}
	sessions := services.NewSessionManager(sessionConfig, config.Database, cacheAdapter, opts...)
	confirmations := services.NewConfirmationFlow(config.Database, sessions, passwordHasher, mail, verificationConfig, opts...)

	b := &Bantay{
		Auth: services.NewAuthService(config.Database, passwordHasher, sessions, confirmations, core.EmailConfig{
			AppName:             appName,
			BaseURL:             mail.BaseURL,
			RequireVerification: config.RequireEmailVerification,
		}, opts...),
		Methods:       services.NewMethodRegistry(config.Database, passwordHasher, opts...),
		Sessions:      sessions,
		Confirmations: confirmations,
		Admin:         services.NewAdminService(config.Database, sessions, mail, opts...),
		Providers:     providers,
		BasePath:      basePath,
		logger:        logger,
	}

	if err := config.HTTP.RegisterRoutes(b.Handlers(), core.RouteConfig{
		BasePath:   basePath,
		SessionTTL: sessionConfig.MaxAge,
		Secret:     config.Secret,
	}); err != nil {
		return nil, err
	}

	return b, nil
}

// Handlers returns the services as the ports an HTTP adapter consumes.
func (b *Bantay) Handlers() core.Handlers {
	return core.Handlers{
		Auth:          b.Auth,
		Methods:       b.Methods,
		Sessions:      b.Sessions,
		Confirmations: b.Confirmations,
		Admin:         b.Admin,
		Providers:     b.Providers,
	}
}

// RunCleanup deletes expired sessions every interval until ctx is done.
func (b *Bantay) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.Sessions.Cleanup(ctx)
			if err != nil {
				b.logger.ErrorContext(ctx, "session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				b.logger.InfoContext(ctx, "expired sessions deleted", "count", n)
			}
		}
	}
}
