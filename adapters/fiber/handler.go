package fiber

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/bantay/core"
)

type messageResponse struct {
	Message string `json:"message"`
}

type revokedResponse struct {
	Revoked int `json:"revoked"`
}

// bind decodes the JSON body into v.
func bind(c fiber.Ctx, v any) error {
	if err := c.Bind().Body(v); err != nil {
		return core.ErrValidation.WithMessage("invalid request body").Wrap(err)
	}
	return nil
}

func clientInfo(c fiber.Ctx) (ip, userAgent string) {
	return c.IP(), c.Get(fiber.HeaderUserAgent)
}

// ============================================
// SIGN-IN AND PROFILE
// ============================================

func (a *Adapter) signUp(c fiber.Ctx) error {
	var input core.SignUpInput
	if err := bind(c, &input); err != nil {
		return a.fail(c, err)
	}

	ip, ua := clientInfo(c)
	result, err := a.h.Auth.SignUp(c.Context(), input, ip, ua)
	if err != nil {
		return a.fail(c, err)
	}
	if result.Session != nil {
		a.setSessionCookie(c, result.Token, result.Session.ExpiresAt)
	}

	return c.Status(http.StatusCreated).JSON(result)
}

func (a *Adapter) signIn(c fiber.Ctx) error {
	var input core.SignInInput
	if err := bind(c, &input); err != nil {
		return a.fail(c, err)
	}

	ip, ua := clientInfo(c)
	result, err := a.h.Auth.SignIn(c.Context(), input, ip, ua)
	if err != nil {
		return a.fail(c, err)
	}
	a.setSessionCookie(c, result.Token, result.Session.ExpiresAt)

	return c.Status(http.StatusOK).JSON(result)
}

func (a *Adapter) signOut(c fiber.Ctx) error {
	if err := a.h.Auth.SignOut(c.Context(), tokenFrom(c)); err != nil {
		return a.fail(c, err)
	}
	a.clearSessionCookie(c)

	return c.Status(http.StatusOK).JSON(messageResponse{Message: "signed out successfully"})
}

func (a *Adapter) getSession(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(core.SessionData{User: UserFrom(c), Session: SessionFrom(c)})
}

func (a *Adapter) changePassword(c fiber.Ctx) error {
	var input core.ChangePasswordInput
	if err := bind(c, &input); err != nil {
		return a.fail(c, err)
	}

	if err := a.h.Auth.ChangePassword(c.Context(), UserFrom(c).ID, tokenFrom(c), input); err != nil {
		return a.fail(c, err)
	}

	return c.Status(http.StatusOK).JSON(messageResponse{Message: "password changed"})
}

func (a *Adapter) updateProfile(c fiber.Ctx) error {
	var input core.UpdateProfileInput
	if err := bind(c, &input); err != nil {
		return a.fail(c, err)
	}

	user, err := a.h.Auth.UpdateProfile(c.Context(), UserFrom(c).ID, input)
	if err != nil {
		return a.fail(c, err)
	}

	return c.Status(http.StatusOK).JSON(user)
}

// ============================================
// SOCIAL SIGN-IN
// ============================================

func (a *Adapter) provider(c fiber.Ctx) (core.OAuthProvider, error) {
	id := c.Params("provider")
	p, ok := a.h.Providers[id]
	if !ok {
		return nil, core.ErrInvalidProvider.WithMessage("provider %q is not configured", id)
	}
	return p, nil
}

func (a *Adapter) oauthStart(c fiber.Ctx) error {
	p, err := a.provider(c)
	if err != nil {
		return a.fail(c, err)
	}

	state, cookie, err := a.newState(p.ID(), "")
	if err != nil {
		return a.fail(c, err)
	}
	a.setStateCookie(c, cookie)

	return c.Redirect().Status(http.StatusFound).To(p.AuthCodeURL(state))
}

type linkResponse struct {
	URL      string `json:"url"`
	Redirect bool   `json:"redirect"`
}

// linkProvider starts an authorization-code flow bound to the signed-in
// user. The callback links whatever identity the provider returns.
func (a *Adapter) linkProvider(c fiber.Ctx) error {
	p, err := a.provider(c)
	if err != nil {
		return a.fail(c, err)
	}

	state, cookie, err := a.newState(p.ID(), UserFrom(c).ID)
	if err != nil {
		return a.fail(c, err)
	}
	a.setStateCookie(c, cookie)

	return c.Status(http.StatusOK).JSON(linkResponse{URL: p.AuthCodeURL(state), Redirect: true})
}

func (a *Adapter) oauthCallback(c fiber.Ctx) error {
	p, err := a.provider(c)
	if err != nil {
		return a.fail(c, err)
	}

	cookie := c.Cookies(stateCookie)
	a.clearStateCookie(c)
	if reason := c.Query("error"); reason != "" {
		return a.fail(c, core.ErrInvalidCredentials.WithMessage("provider refused sign-in: %s", reason))
	}
	linkUserID, ok := a.checkState(p.ID(), c.Query("state"), cookie)
	if !ok {
		return a.fail(c, core.ErrValidation.WithMessage("invalid oauth state"))
	}

	profile, err := p.Exchange(c.Context(), c.Query("code"))
	if err != nil {
		return a.fail(c, err)
	}

	if linkUserID != "" {
		methods, err := a.h.Methods.LinkExternalProvider(c.Context(), linkUserID, p.ID(), profile.AccountID)
		if err != nil {
			return a.fail(c, err)
		}
		return c.Status(http.StatusCreated).JSON(methods)
	}

	ip, ua := clientInfo(c)
	result, err := a.h.Auth.SignInWithProvider(c.Context(), *profile, ip, ua)
	if err != nil {
		return a.fail(c, err)
	}
	a.setSessionCookie(c, result.Token, result.Session.ExpiresAt)

	return c.Status(http.StatusOK).JSON(result)
}

// ============================================
// SIGN-IN METHODS
// ============================================

type addCredentialRequest struct {
	Password string `json:"password"`
}

func (a *Adapter) listMethods(c fiber.Ctx) error {
	methods, err := a.h.Methods.ListMethods(c.Context(), UserFrom(c).ID)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(methods)
}

func (a *Adapter) addCredential(c fiber.Ctx) error {
	var req addCredentialRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	methods, err := a.h.Methods.AddCredential(c.Context(), UserFrom(c).ID, req.Password)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(methods)
}

func (a *Adapter) removeMethod(c fiber.Ctx) error {
	methods, err := a.h.Methods.RemoveCredential(c.Context(), UserFrom(c).ID, c.Params("provider"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(methods)
}

func (a *Adapter) unlinkProvider(c fiber.Ctx) error {
	methods, err := a.h.Methods.UnlinkExternalProvider(c.Context(), UserFrom(c).ID, c.Params("provider"))
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(methods)
}

// ============================================
// SESSIONS
// ============================================

type revokeRequest struct {
	Token string `json:"token"`
}

func (a *Adapter) listSessions(c fiber.Ctx) error {
	sessions, err := a.h.Sessions.List(c.Context(), UserFrom(c).ID, tokenFrom(c))
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(sessions)
}

func (a *Adapter) revokeSession(c fiber.Ctx) error {
	var req revokeRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	if err := a.h.Sessions.Revoke(c.Context(), UserFrom(c).ID, req.Token); err != nil {
		return a.fail(c, err)
	}
	if req.Token == tokenFrom(c) {
		a.clearSessionCookie(c)
	}
	return c.Status(http.StatusOK).JSON(messageResponse{Message: "session revoked"})
}

func (a *Adapter) revokeSessionByID(c fiber.Ctx) error {
	id := c.Params("id")
	if err := a.h.Sessions.RevokeByID(c.Context(), UserFrom(c).ID, id); err != nil {
		return a.fail(c, err)
	}
	if current := SessionFrom(c); current != nil && current.ID == id {
		a.clearSessionCookie(c)
	}
	return c.Status(http.StatusOK).JSON(messageResponse{Message: "session revoked"})
}

func (a *Adapter) revokeOthers(c fiber.Ctx) error {
	n, err := a.h.Sessions.RevokeOthers(c.Context(), UserFrom(c).ID, tokenFrom(c))
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(revokedResponse{Revoked: n})
}

func (a *Adapter) revokeAll(c fiber.Ctx) error {
	n, err := a.h.Sessions.RevokeAll(c.Context(), UserFrom(c).ID)
	if err != nil {
		return a.fail(c, err)
	}
	a.clearSessionCookie(c)
	return c.Status(http.StatusOK).JSON(revokedResponse{Revoked: n})
}

// ============================================
// CONFIRMATIONS
// ============================================

type confirmationRequest struct {
	Kind    core.VerificationKind `json:"kind"`
	Payload string                `json:"payload"`
}

type confirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Email string                `json:"email"`
	Kind  core.VerificationKind `json:"kind"`
}

type otpConfirmRequest struct {
	Email       string                `json:"email"`
	Kind        core.VerificationKind `json:"kind"`
	Code        string                `json:"code"`
	NewPassword string                `json:"newPassword"`
}

func (a *Adapter) requestConfirmation(c fiber.Ctx) error {
	var req confirmationRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	v, err := a.h.Confirmations.Request(c.Context(), UserFrom(c).ID, req.Kind, req.Payload)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusAccepted).JSON(v)
}

func (a *Adapter) confirm(c fiber.Ctx) error {
	var req confirmRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	ip, ua := clientInfo(c)
	result, err := a.h.Confirmations.Confirm(c.Context(), req.Token, core.ConfirmInput{NewPassword: req.NewPassword, IPAddress: ip, UserAgent: ua})
	if err != nil {
		return a.fail(c, err)
	}
	return a.confirmed(c, result)
}

func (a *Adapter) forgotPassword(c fiber.Ctx) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	if err := a.h.Confirmations.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusAccepted).JSON(messageResponse{Message: "if the account exists, a reset link has been sent"})
}

func (a *Adapter) requestOTP(c fiber.Ctx) error {
	var req otpRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	if err := a.h.Confirmations.RequestOTP(c.Context(), req.Email, req.Kind); err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusAccepted).JSON(messageResponse{Message: "if the account exists, a code has been sent"})
}

func (a *Adapter) confirmOTP(c fiber.Ctx) error {
	var req otpConfirmRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	ip, ua := clientInfo(c)
	result, err := a.h.Confirmations.ConfirmOTP(c.Context(), req.Email, req.Kind, req.Code, core.ConfirmInput{NewPassword: req.NewPassword, IPAddress: ip, UserAgent: ua})
	if err != nil {
		return a.fail(c, err)
	}
	return a.confirmed(c, result)
}

// confirmed sets or clears the auth cookie to match the confirmation's effect.
func (a *Adapter) confirmed(c fiber.Ctx, result *core.ConfirmResult) error {
	switch {
	case result.Session != nil:
		a.setSessionCookie(c, result.Session.Token, result.Session.Session.ExpiresAt)
	case result.Deleted:
		a.clearSessionCookie(c)
	}
	return c.Status(http.StatusOK).JSON(result)
}

// ============================================
// ADMIN
// ============================================

type roleRequest struct {
	Roles []string `json:"roles"`
}

type banRequest struct {
	Reason *string `json:"reason"`
}

func (a *Adapter) adminListUsers(c fiber.Ctx) error {
	filter, sort, page, err := listQuery(c)
	if err != nil {
		return a.fail(c, err)
	}

	users, err := a.h.Admin.ListUsers(c.Context(), UserFrom(c).ID, filter, sort, page)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(users)
}

// listQuery reads q, role, banned, emailVerified, sortBy, sortDirection,
// offset and limit.
func listQuery(c fiber.Ctx) (core.UserFilter, core.UserSort, core.Page, error) {
	var (
		filter core.UserFilter
		sort   core.UserSort
		page   core.Page
		err    error
	)

	filter.Query = c.Query("q")
	filter.Role = c.Query("role")
	if filter.Banned, err = optionalBool(c, "banned"); err != nil {
		return filter, sort, page, err
	}
	if filter.EmailVerified, err = optionalBool(c, "emailVerified"); err != nil {
		return filter, sort, page, err
	}

	sort.Field = core.SortField(c.Query("sortBy"))
	switch c.Query("sortDirection") {
	case "", "asc":
	case "desc":
		sort.Desc = true
	default:
		return filter, sort, page, core.ErrValidation.WithMessage("sortDirection must be asc or desc")
	}

	if page.Offset, err = optionalInt(c, "offset"); err != nil {
		return filter, sort, page, err
	}
	if page.Limit, err = optionalInt(c, "limit"); err != nil {
		return filter, sort, page, err
	}
	return filter, sort, page, nil
}

func optionalBool(c fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, core.ErrValidation.WithMessage("%s must be true or false", key)
	}
	return &v, nil
}

func optionalInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, core.ErrValidation.WithMessage("%s must be a non-negative integer", key)
	}
	return v, nil
}

func (a *Adapter) adminSetRole(c fiber.Ctx) error {
	var req roleRequest
	if err := bind(c, &req); err != nil {
		return a.fail(c, err)
	}

	user, err := a.h.Admin.SetRole(c.Context(), UserFrom(c).ID, c.Params("id"), core.Roles(req.Roles))
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(user)
}

func (a *Adapter) adminBan(c fiber.Ctx) error {
	var req banRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return a.fail(c, err)
		}
	}

	user, err := a.h.Admin.SetBanned(c.Context(), UserFrom(c).ID, c.Params("id"), true, req.Reason)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(user)
}

func (a *Adapter) adminUnban(c fiber.Ctx) error {
	user, err := a.h.Admin.SetBanned(c.Context(), UserFrom(c).ID, c.Params("id"), false, nil)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(user)
}

func (a *Adapter) adminRemoveUser(c fiber.Ctx) error {
	if err := a.h.Admin.RemoveUser(c.Context(), UserFrom(c).ID, c.Params("id")); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *Adapter) adminStats(c fiber.Ctx) error {
	stats, err := a.h.Admin.Stats(c.Context(), UserFrom(c).ID)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(stats)
}
