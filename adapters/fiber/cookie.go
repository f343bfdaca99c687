package fiber

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/pkg/crypto"
)

const stateCookie = "oauth_state"

func (a *Adapter) setSessionCookie(c fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(a.config.SessionTTL.Seconds()),
		Secure:   a.secureCookies,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *Adapter) clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   a.secureCookies,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// newState returns a random state and the signed cookie value carrying it.
// A non-empty userID marks the flow as linking that user's account.
func (a *Adapter) newState(provider, userID string) (state string, cookie string, err error) {
	pair, err := crypto.GenerateHashedToken(16)
	if err != nil {
		return "", "", err
	}
	return pair.Token, pair.Token + "." + userID + "." + a.sign(provider, pair.Token, userID), nil
}

// checkState reports whether cookie was issued by newState for provider
// and carries state. It returns the user id bound to a link flow.
func (a *Adapter) checkState(provider, state, cookie string) (userID string, ok bool) {
	parts := strings.Split(cookie, ".")
	if len(parts) != 3 || state == "" || parts[0] != state {
		return "", false
	}
	if !hmac.Equal([]byte(parts[2]), []byte(a.sign(provider, parts[0], parts[1]))) {
		return "", false
	}
	return parts[1], true
}

func (a *Adapter) sign(provider, value, userID string) string {
	h := hmac.New(sha256.New, []byte(a.config.Secret))
	h.Write([]byte(provider + ":" + value + ":" + userID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (a *Adapter) setStateCookie(c fiber.Ctx, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    value,
		Path:     a.config.BasePath,
		MaxAge:   int(stateTTL.Seconds()),
		Secure:   a.secureCookies,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *Adapter) clearStateCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     a.config.BasePath,
		MaxAge:   -1,
		HTTPOnly: true,
	})
}
