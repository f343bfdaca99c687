package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/services"
)

const (
	localUser    = "user"
	localSession = "session"
	localToken   = "token"

	authCookie = "auth_token"
)

// requireAuth validates the session token and stores the user, session and
// raw token in the context for downstream handlers.
func (a *Adapter) requireAuth(c fiber.Ctx) error {
	token, err := extractToken(c)
	if err != nil {
		return a.fail(c, err)
	}

	data, err := a.h.Auth.GetSession(c.Context(), token)
	if err != nil {
		return a.fail(c, err)
	}

	c.Locals(localUser, data.User)
	c.Locals(localSession, data.Session)
	c.Locals(localToken, token)
	return c.Next()
}

func (a *Adapter) requireAdmin(c fiber.Ctx) error {
	user := UserFrom(c)
	if user == nil {
		return a.fail(c, core.ErrMissingAuthHeader)
	}
	ok, err := a.h.Admin.HasPermission(c.Context(), user.ID, services.CapabilityManageUsers)
	if err != nil {
		return a.fail(c, err)
	}
	if !ok {
		return a.fail(c, core.ErrForbidden)
	}
	return c.Next()
}

// Protected returns middleware for application routes that need a signed-in
// user. Use UserFrom and SessionFrom in the handlers that follow it.
func (a *Adapter) Protected() fiber.Handler {
	return a.requireAuth
}

// UserFrom returns the user stored by Protected, or nil.
func UserFrom(c fiber.Ctx) *core.User {
	user, _ := c.Locals(localUser).(*core.User)
	return user
}

// SessionFrom returns the session stored by Protected, or nil.
func SessionFrom(c fiber.Ctx) *core.Session {
	session, _ := c.Locals(localSession).(*core.Session)
	return session
}

func tokenFrom(c fiber.Ctx) string {
	token, _ := c.Locals(localToken).(string)
	return token
}

// extractToken reads the Authorization header (Bearer token) first, then
// falls back to the auth cookie.
func extractToken(c fiber.Ctx) (string, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return "", core.ErrInvalidAuthHeader
		}
		return strings.TrimSpace(token), nil
	}
	if token := c.Cookies(authCookie); token != "" {
		return token, nil
	}
	return "", core.ErrMissingAuthHeader
}
