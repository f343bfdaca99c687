// Package fiber exposes the bantay services over a Fiber v3 app.
package fiber

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/services"
)

var _ core.HTTPAdapter = (*Adapter)(nil)

type Adapter struct {
	app      *fiber.App
	registry *services.EndpointRegistry
	extra    map[string]fiber.Handler
	limiter  *RateLimiter
	metrics  http.Handler
	logger   *slog.Logger

	secureCookies bool

	h      core.Handlers
	config core.RouteConfig
}

type Option func(*Adapter)

// WithRegistry replaces the default endpoint registry. Plugin endpoints
// registered on it need a handler from WithHandler.
func WithRegistry(registry *services.EndpointRegistry) Option {
	return func(a *Adapter) { a.registry = registry }
}

// WithHandler binds h to a plugin operation id.
func WithHandler(operationID string, h fiber.Handler) Option {
	return func(a *Adapter) { a.extra[operationID] = h }
}

// WithRateLimiter limits every route under the base path per client IP.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(a *Adapter) { a.limiter = limiter }
}

// WithMetricsHandler serves h at /metrics, outside the base path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *Adapter) { a.metrics = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSecureCookies marks auth cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(a *Adapter) { a.secureCookies = secure }
}

func New(app *fiber.App, opts ...Option) *Adapter {
	a := &Adapter{
		app:    app,
		extra:  make(map[string]fiber.Handler),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = services.NewEndpointRegistry()
	}
	return a
}

func (a *Adapter) RegisterRoutes(handlers core.Handlers, config core.RouteConfig) error {
	if handlers.Auth == nil || handlers.Methods == nil || handlers.Sessions == nil ||
		handlers.Confirmations == nil || handlers.Admin == nil {
		return fmt.Errorf("fiber adapter: every handler must be set")
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = core.DefaultSessionConfig().MaxAge
	}
	config.BasePath = "/" + strings.Trim(config.BasePath, "/")
	a.h = handlers
	a.config = config

	if a.metrics != nil {
		a.app.Get("/metrics", adaptor.HTTPHandler(a.metrics))
	}

	api := a.app.Group(config.BasePath)
	if a.limiter != nil {
		api.Use(a.limiter.Middleware())
	}

	bound := a.operations()
	for op, h := range a.extra {
		bound[op] = h
	}

	for _, ep := range a.registry.Endpoints() {
		h, ok := bound[ep.Metadata.OperationID]
		if !ok {
			return fmt.Errorf("fiber adapter: no handler for operation %s", ep.Metadata.OperationID)
		}
		methods := []string{ep.Method}
		switch ep.Access {
		case core.AccessPublic:
			api.Add(methods, ep.Path, h)
		case core.AccessUser:
			api.Add(methods, ep.Path, a.requireAuth, h)
		case core.AccessAdmin:
			api.Add(methods, ep.Path, a.requireAuth, a.requireAdmin, h)
		default:
			return fmt.Errorf("fiber adapter: unknown access %q for %s", ep.Access, ep.Metadata.OperationID)
		}
	}

	a.logger.Info("auth routes registered", "base_path", config.BasePath, "routes", len(a.registry.Endpoints()))
	return nil
}

// operations maps each base operation id to its handler.
func (a *Adapter) operations() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		services.OpSignUp:         a.signUp,
		services.OpSignIn:         a.signIn,
		services.OpSignOut:        a.signOut,
		services.OpGetSession:     a.getSession,
		services.OpChangePassword: a.changePassword,
		services.OpUpdateProfile:  a.updateProfile,
		services.OpOAuthStart:     a.oauthStart,
		services.OpOAuthCallback:  a.oauthCallback,

		services.OpListMethods:    a.listMethods,
		services.OpAddCredential:  a.addCredential,
		services.OpRemoveMethod:   a.removeMethod,
		services.OpLinkProvider:   a.linkProvider,
		services.OpUnlinkProvider: a.unlinkProvider,

		services.OpListSessions:    a.listSessions,
		services.OpRevokeSession:   a.revokeSession,
		services.OpRevokeSessionID: a.revokeSessionByID,
		services.OpRevokeOthers:    a.revokeOthers,
		services.OpRevokeAll:       a.revokeAll,

		services.OpRequestConfirm: a.requestConfirmation,
		services.OpConfirm:        a.confirm,
		services.OpForgotPassword: a.forgotPassword,
		services.OpRequestOTP:     a.requestOTP,
		services.OpConfirmOTP:     a.confirmOTP,

		services.OpAdminListUsers:  a.adminListUsers,
		services.OpAdminSetRole:    a.adminSetRole,
		services.OpAdminBan:        a.adminBan,
		services.OpAdminUnban:      a.adminUnban,
		services.OpAdminRemoveUser: a.adminRemoveUser,
		services.OpAdminStats:      a.adminStats,
	}
}

// stateTTL bounds how long a social sign-in may take.
const stateTTL = 10 * time.Minute
