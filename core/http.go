package core

import (
	"context"
	"time"
)

// ============================================
// HANDLER PORTS (implemented by services, consumed by HTTP adapters)
// ============================================

type AuthHandler interface {
	SignUp(ctx context.Context, input SignUpInput, ipAddress, userAgent string) (*SignUpResult, error)
	SignIn(ctx context.Context, input SignInInput, ipAddress, userAgent string) (*SignInResult, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (*SessionData, error)
	ChangePassword(ctx context.Context, userID, currentToken string, input ChangePasswordInput) error
	UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*User, error)
	SignInWithProvider(ctx context.Context, profile ProviderProfile, ipAddress, userAgent string) (*SignInResult, error)
}

type MethodHandler interface {
	ListMethods(ctx context.Context, userID string) (*AuthMethods, error)
	AddCredential(ctx context.Context, userID, newPassword string) (*AuthMethods, error)
	RemoveCredential(ctx context.Context, userID, providerID string) (*AuthMethods, error)
	LinkExternalProvider(ctx context.Context, userID, providerID, externalID string) (*AuthMethods, error)
	UnlinkExternalProvider(ctx context.Context, userID, providerID string) (*AuthMethods, error)
}

type SessionHandler interface {
	List(ctx context.Context, userID, currentToken string) ([]SessionListing, error)
	Revoke(ctx context.Context, userID, sessionToken string) error
	RevokeByID(ctx context.Context, userID, sessionID string) error
	RevokeOthers(ctx context.Context, userID, currentToken string) (int, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

type ConfirmationHandler interface {
	Request(ctx context.Context, userID string, kind VerificationKind, payload string) (*Verification, error)
	Confirm(ctx context.Context, token string, input ConfirmInput) (*ConfirmResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	RequestOTP(ctx context.Context, email string, kind VerificationKind) error
	ConfirmOTP(ctx context.Context, email string, kind VerificationKind, code string, input ConfirmInput) (*ConfirmResult, error)
}

type AdminHandler interface {
	HasPermission(ctx context.Context, userID string, capability string) (bool, error)
	SetRole(ctx context.Context, actorID, targetID string, roles Roles) (*User, error)
	SetBanned(ctx context.Context, actorID, targetID string, banned bool, reason *string) (*User, error)
	ListUsers(ctx context.Context, actorID string, filter UserFilter, sort UserSort, page Page) (*UserPage, error)
	RemoveUser(ctx context.Context, actorID, targetID string) error
	Stats(ctx context.Context, actorID string) (*UserStats, error)
}

// OAuthProvider runs the authorization-code exchange for one social provider.
type OAuthProvider interface {
	ID() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ProviderProfile, error)
}

// Handlers bundles everything an HTTP adapter exposes.
type Handlers struct {
	Auth          AuthHandler
	Methods       MethodHandler
	Sessions      SessionHandler
	Confirmations ConfirmationHandler
	Admin         AdminHandler
	Providers     map[string]OAuthProvider
}

// ============================================
// HTTP PORT
// ============================================

// RouteConfig is passed to an HTTPAdapter when routes are registered.
type RouteConfig struct {
	BasePath string
	// SessionTTL is the max age of the session cookie.
	SessionTTL time.Duration
	// Secret signs short-lived cookies such as the OAuth state.
	Secret string
}

type HTTPAdapter interface {
	RegisterRoutes(handlers Handlers, config RouteConfig) error
}
