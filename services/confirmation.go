package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/email"
	"github.com/lborres/bantay/pkg/metrics"
)

// Ensure ConfirmationFlow implements ConfirmationHandler
var _ core.ConfirmationHandler = (*ConfirmationFlow)(nil)

// ConfirmationFlow issues and redeems pending sensitive actions. Link kinds
// are confirmed with an opaque token, OTP kinds with a short code sent to
// the user's address.
type ConfirmationFlow struct {
	deps
	storage  core.Storage
	sessions *SessionManager
	password crypto.PasswordHandler
	notify   *notifier
	config   core.VerificationConfig
}

func NewConfirmationFlow(storage core.Storage, sessions *SessionManager, password crypto.PasswordHandler, mail Mail, config core.VerificationConfig, opts ...Option) *ConfirmationFlow {
	d := newDeps(opts)
	return &ConfirmationFlow{
		deps:     d,
		storage:  storage,
		sessions: sessions,
		password: password,
		notify:   newNotifier(d, mail),
		config:   withVerificationDefaults(config),
	}
}

func withVerificationDefaults(c core.VerificationConfig) core.VerificationConfig {
	def := core.DefaultVerificationConfig()
	if c.EmailChangeTTL <= 0 {
		c.EmailChangeTTL = def.EmailChangeTTL
	}
	if c.AccountDeletionTTL <= 0 {
		c.AccountDeletionTTL = def.AccountDeletionTTL
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = def.PasswordResetTTL
	}
	if c.EmailVerificationTTL <= 0 {
		c.EmailVerificationTTL = def.EmailVerificationTTL
	}
	if c.OTPLength <= 0 {
		c.OTPLength = def.OTPLength
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = def.OTPTTL
	}
	if c.OTPMaxAttempts <= 0 {
		c.OTPMaxAttempts = def.OTPMaxAttempts
	}
	return c
}

// Request starts a link confirmation of kind for userID. Any pending record
// of the same kind is superseded. For email-change, payload is the new address.
func (f *ConfirmationFlow) Request(ctx context.Context, userID string, kind core.VerificationKind, payload string) (*core.Verification, error) {
	return f.request(ctx, kind, payload, func(tx core.Tx) (*core.User, error) {
		return tx.LockUser(ctx, userID)
	})
}

// RequestPasswordReset sends a reset link to address. Unknown addresses
// succeed without sending anything.
func (f *ConfirmationFlow) RequestPasswordReset(ctx context.Context, address string) error {
	address = core.NormalizeEmail(address)
	if err := core.ValidateEmail(address); err != nil {
		return err
	}
	_, err := f.request(ctx, core.VerifyPasswordReset, "", func(tx core.Tx) (*core.User, error) {
		return lockUserByEmail(ctx, tx, address)
	})
	if errors.Is(err, core.ErrUserNotFound) {
		f.logger.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}
	return err
}

func (f *ConfirmationFlow) request(ctx context.Context, kind core.VerificationKind, payload string, load func(core.Tx) (*core.User, error)) (*core.Verification, error) {
	if !kind.Valid() || kind.IsOTP() {
		return nil, core.ErrInvalidKind
	}

	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	var user *core.User
	var v *core.Verification
	err = f.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		user, err = load(tx)
		if err != nil {
			return err
		}

		if kind == core.VerifyEmailChange {
			payload, err = checkNewEmail(ctx, tx, user, payload)
			if err != nil {
				return err
			}
		} else {
			payload = ""
		}

		v, err = f.issue(ctx, tx, user.ID, kind, payload, pair.Hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "confirmation requested", "user_id", user.ID, "kind", string(kind))
	f.sendLink(ctx, user, v, pair.Token)
	return v, nil
}

// lockUserByEmail resolves address and takes the user's row lock, which
// serializes issuing against other requests for the same user.
func lockUserByEmail(ctx context.Context, tx core.Tx, address string) (*core.User, error) {
	user, err := tx.GetUserByEmail(ctx, address)
	if err != nil {
		return nil, err
	}
	return tx.LockUser(ctx, user.ID)
}

// issue supersedes pending records of kind and stores a fresh one.
func (f *ConfirmationFlow) issue(ctx context.Context, tx core.Tx, userID string, kind core.VerificationKind, payload, tokenHash string) (*core.Verification, error) {
	now := f.now()
	if _, err := tx.SupersedeVerifications(ctx, userID, kind, now); err != nil {
		return nil, err
	}
	v := &core.Verification{
		ID:        crypto.NewID(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		TokenHash: tokenHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(f.config.TTL(kind)),
	}
	if err := tx.CreateVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to create verification: %w", err)
	}
	return v, nil
}

func checkNewEmail(ctx context.Context, tx core.Tx, user *core.User, address string) (string, error) {
	address = core.NormalizeEmail(address)
	if err := core.ValidateEmail(address); err != nil {
		return "", err
	}
	if address == core.NormalizeEmail(user.Email) {
		return "", core.ErrSameEmail
	}
	other, err := tx.GetUserByEmail(ctx, address)
	switch {
	case errors.Is(err, core.ErrUserNotFound):
		return address, nil
	case err != nil:
		return "", err
	case other.ID != user.ID:
		return "", core.ErrEmailInUse
	}
	return address, nil
}

func (f *ConfirmationFlow) sendLink(ctx context.Context, user *core.User, v *core.Verification, token string) {
	data := email.Data{
		Name:      user.Name,
		URL:       f.notify.link("/auth/"+string(v.Kind), url.Values{"token": {token}}),
		ExpiresIn: email.FormatTTL(v.ExpiresAt.Sub(v.IssuedAt)),
	}
	switch v.Kind {
	case core.VerifyEmailChange:
		data.NewEmail = v.Payload
		// the new address proves ownership
		f.notify.send(ctx, email.ChangeEmailVerification, v.Payload, data)
	case core.VerifyAccountDeletion:
		f.notify.send(ctx, email.DeleteAccountConfirmation, user.Email, data)
	case core.VerifyPasswordReset:
		f.notify.send(ctx, email.ResetPassword, user.Email, data)
	case core.VerifyEmail:
		f.notify.send(ctx, email.VerifyEmail, user.Email, data)
	}
}

// Confirm redeems a link token and applies its effect. Each token succeeds
// at most once.
func (f *ConfirmationFlow) Confirm(ctx context.Context, token string, input core.ConfirmInput) (*core.ConfirmResult, error) {
	if token == "" {
		return nil, core.ErrTokenNotFound
	}

	newHash, err := f.hashOptional(input.NewPassword)
	if err != nil {
		return nil, err
	}

	var kind core.VerificationKind
	var fx effects
	err = f.storage.WithTx(ctx, func(tx core.Tx) error {
		v, err := tx.LockVerification(ctx, crypto.HashToken(token))
		if err != nil {
			return err
		}
		if v.Kind.IsOTP() {
			return core.ErrTokenNotFound
		}
		kind = v.Kind
		if err := usable(v, f.now()); err != nil {
			return err
		}

		fx, err = f.consume(ctx, tx, v, newHash, input)
		return err
	})
	f.metrics.Confirmation(kind, metrics.Result(err))
	if err != nil {
		return nil, err
	}

	f.finish(ctx, fx)
	return fx.result, nil
}

// RequestOTP sends a one-time code of kind to address. Unknown addresses
// succeed without sending anything.
func (f *ConfirmationFlow) RequestOTP(ctx context.Context, address string, kind core.VerificationKind) error {
	if !kind.IsOTP() {
		return core.ErrInvalidKind
	}
	address = core.NormalizeEmail(address)
	if err := core.ValidateEmail(address); err != nil {
		return err
	}

	var user *core.User
	var v *core.Verification
	var code string
	err := f.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		user, err = lockUserByEmail(ctx, tx, address)
		if err != nil {
			return err
		}
		pair, err := crypto.GenerateOTP(f.config.OTPLength)
		if err != nil {
			return err
		}
		code = pair.Token
		v, err = f.issue(ctx, tx, user.ID, kind, "", otpHash(user.ID, code))
		return err
	})
	if errors.Is(err, core.ErrUserNotFound) {
		f.logger.InfoContext(ctx, "otp requested for unknown email", "kind", string(kind))
		return nil
	}
	if err != nil {
		return err
	}

	f.logger.InfoContext(ctx, "otp requested", "user_id", user.ID, "kind", string(kind))
	data := email.Data{Name: user.Name, Code: code, ExpiresIn: email.FormatTTL(v.ExpiresAt.Sub(v.IssuedAt))}
	switch kind {
	case core.OTPSignIn:
		data.Purpose = "sign-in"
		f.notify.send(ctx, email.OTPVerification, user.Email, data)
	case core.OTPEmailVerification:
		data.Purpose = "email-verification"
		f.notify.send(ctx, email.OTPVerification, user.Email, data)
	case core.OTPPasswordReset:
		f.notify.send(ctx, email.PasswordResetOTP, user.Email, data)
	}
	return nil
}

// ConfirmOTP redeems the newest pending code of kind for address. A wrong
// code counts an attempt; the last allowed attempt consumes the record.
func (f *ConfirmationFlow) ConfirmOTP(ctx context.Context, address string, kind core.VerificationKind, code string, input core.ConfirmInput) (*core.ConfirmResult, error) {
	if !kind.IsOTP() {
		return nil, core.ErrInvalidKind
	}
	if code == "" {
		return nil, core.ErrInvalidOTP
	}
	address = core.NormalizeEmail(address)

	newHash, err := f.hashOptional(input.NewPassword)
	if err != nil {
		return nil, err
	}

	var fx effects
	// failure is returned after the attempt counter commits
	var failure error
	err = f.storage.WithTx(ctx, func(tx core.Tx) error {
		user, err := tx.GetUserByEmail(ctx, address)
		if errors.Is(err, core.ErrUserNotFound) {
			return core.ErrTokenNotFound
		}
		if err != nil {
			return err
		}

		v, err := tx.LockPendingVerification(ctx, user.ID, kind)
		if err != nil {
			return err
		}
		now := f.now()
		if now.After(v.ExpiresAt) {
			return core.ErrTokenExpired
		}

		if ok, _ := crypto.VerifyToken(otpInput(user.ID, code), v.TokenHash); !ok {
			v.Attempts++
			failure = core.ErrInvalidOTP
			if v.Attempts >= f.config.OTPMaxAttempts {
				v.ConsumedAt = &now
				failure = core.ErrOTPAttemptsExceeded
			}
			return tx.UpdateVerification(ctx, v)
		}

		fx, err = f.consume(ctx, tx, v, newHash, input)
		return err
	})
	if err == nil {
		err = failure
	}
	f.metrics.Confirmation(kind, metrics.Result(err))
	if err != nil {
		return nil, err
	}

	f.finish(ctx, fx)
	return fx.result, nil
}

// effects carries post-commit work out of a confirm transaction.
type effects struct {
	result    *core.ConfirmResult
	purgeUser string
	session   *core.Session
}

// consume marks v used and applies its effect inside tx.
func (f *ConfirmationFlow) consume(ctx context.Context, tx core.Tx, v *core.Verification, newHash string, input core.ConfirmInput) (effects, error) {
	fx := effects{result: &core.ConfirmResult{Kind: v.Kind}}
	if (v.Kind == core.VerifyPasswordReset || v.Kind == core.OTPPasswordReset) && newHash == "" {
		return fx, core.ErrPasswordRequired
	}

	now := f.now()
	v.ConsumedAt = &now
	if err := tx.UpdateVerification(ctx, v); err != nil {
		return fx, err
	}

	switch v.Kind {
	case core.VerifyEmailChange:
		user, err := tx.LockUser(ctx, v.UserID)
		if err != nil {
			return fx, err
		}
		if other, err := tx.GetUserByEmail(ctx, v.Payload); err == nil && other.ID != user.ID {
			return fx, core.ErrEmailInUse
		} else if err != nil && !errors.Is(err, core.ErrUserNotFound) {
			return fx, err
		}
		user.Email = v.Payload
		user.EmailVerified = true
		user.UpdatedAt = now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return fx, err
		}
		fx.result.User = user

	case core.VerifyAccountDeletion:
		if err := tx.DeleteUser(ctx, v.UserID); err != nil {
			return fx, err
		}
		fx.result.Deleted = true
		fx.purgeUser = v.UserID

	case core.VerifyPasswordReset, core.OTPPasswordReset:
		user, err := f.resetPassword(ctx, tx, v.UserID, newHash)
		if err != nil {
			return fx, err
		}
		fx.result.User = user
		fx.purgeUser = v.UserID

	case core.VerifyEmail, core.OTPEmailVerification:
		user, err := f.markVerified(ctx, tx, v.UserID)
		if err != nil {
			return fx, err
		}
		fx.result.User = user

	case core.OTPSignIn:
		user, err := f.markVerified(ctx, tx, v.UserID)
		if err != nil {
			return fx, err
		}
		created, err := f.sessions.createInTx(ctx, tx, user, input.IPAddress, input.UserAgent)
		if err != nil {
			return fx, err
		}
		fx.result.User = user
		fx.result.Session = created
		fx.session = created.Session

	default:
		return fx, core.ErrInvalidKind
	}
	return fx, nil
}

func (f *ConfirmationFlow) finish(ctx context.Context, fx effects) {
	if fx.purgeUser != "" {
		f.sessions.forgetUser(ctx, fx.purgeUser)
	}
	if fx.session != nil {
		f.sessions.cacheSession(ctx, fx.session)
	}
	f.logger.InfoContext(ctx, "confirmation applied", "kind", string(fx.result.Kind))
}

// resetPassword replaces the credential digest, creating the credential when
// the user has none, and deletes every session of the user.
func (f *ConfirmationFlow) resetPassword(ctx context.Context, tx core.Tx, userID, hash string) (*core.User, error) {
	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := setPassword(ctx, tx, userID, hash, f.now()); err != nil {
		return nil, err
	}
	n, err := tx.DeleteUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	f.metrics.SessionsRevoked("password-reset", n)
	return user, nil
}

func (f *ConfirmationFlow) markVerified(ctx context.Context, tx core.Tx, userID string) (*core.User, error) {
	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.EmailVerified {
		return user, nil
	}
	user.EmailVerified = true
	user.UpdatedAt = f.now()
	if err := tx.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (f *ConfirmationFlow) hashOptional(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if err := core.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := f.password.Hash(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// usable maps a record's state to the confirm error it should produce.
func usable(v *core.Verification, now time.Time) error {
	switch {
	case v.ConsumedAt != nil:
		return core.ErrTokenNotFound
	case v.SupersededAt != nil:
		return core.ErrTokenSuperseded
	case now.After(v.ExpiresAt):
		return core.ErrTokenExpired
	}
	return nil
}

// otpHash binds a code to its user so equal codes of different users differ.
func otpHash(userID, code string) string {
	return crypto.HashToken(otpInput(userID, code))
}

func otpInput(userID, code string) string { return userID + ":" + code }

// setPassword writes hash to the user's credential account, creating it if missing.
func setPassword(ctx context.Context, tx core.Tx, userID, hash string, now time.Time) error {
	accounts, err := tx.GetUserAccounts(ctx, userID)
	if err != nil {
		return err
	}
	if credential := find(accounts, core.ProviderCredential); credential != nil {
		credential.Password = &hash
		credential.UpdatedAt = now
		return tx.UpdateAccount(ctx, credential)
	}
	return tx.CreateAccount(ctx, &core.Account{
		ID:         crypto.NewID(),
		UserID:     userID,
		ProviderID: core.ProviderCredential,
		AccountID:  userID,
		Password:   &hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
