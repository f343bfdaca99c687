package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
)

// Ensure AuthService implements AuthHandler
var _ core.AuthHandler = (*AuthService)(nil)

type AuthService struct {
	deps
	storage       core.Storage
	password      crypto.PasswordHandler
	sessions      *SessionManager
	confirmations *ConfirmationFlow // optional, sends verification links
	config        core.EmailConfig
}

func NewAuthService(storage core.Storage, password crypto.PasswordHandler, sessions *SessionManager, confirmations *ConfirmationFlow, config core.EmailConfig, opts ...Option) *AuthService {
	return &AuthService{
		deps:          newDeps(opts),
		storage:       storage,
		password:      password,
		sessions:      sessions,
		confirmations: confirmations,
		config:        config,
	}
}

// SignUp registers a user with an email and password. When verification is
// required no session is issued and a verification link is sent instead.
func (s *AuthService) SignUp(ctx context.Context, input core.SignUpInput, ip, userAgent string) (*core.SignUpResult, error) {
	if err := core.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := core.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := s.password.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	address := core.NormalizeEmail(input.Email)
	now := s.now()
	user := &core.User{
		ID:        crypto.NewID(),
		Email:     address,
		Name:      input.Name,
		Image:     input.Image,
		Role:      core.Roles{core.RoleUser},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created *core.CreateSessionResult
	err = s.storage.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.GetUserByEmail(ctx, address); err == nil {
			return core.ErrUserExists
		} else if !errors.Is(err, core.ErrUserNotFound) {
			return err
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, &core.Account{
			ID:         crypto.NewID(),
			UserID:     user.ID,
			ProviderID: core.ProviderCredential,
			AccountID:  user.ID,
			Password:   &hash,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}

		if s.config.RequireVerification {
			return nil
		}
		var err error
		created, err = s.sessions.createInTx(ctx, tx, user, ip, userAgent)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID)
	result := &core.SignUpResult{User: user}
	if created != nil {
		s.sessions.cacheSession(ctx, created.Session)
		result.Session = created.Session
		result.Token = created.Token
	}
	if s.config.RequireVerification {
		s.sendVerification(ctx, user.ID)
	}
	return result, nil
}

// SignIn authenticates with email and password.
func (s *AuthService) SignIn(ctx context.Context, input core.SignInInput, ip, userAgent string) (*core.SignInResult, error) {
	if err := core.ValidateStruct(input); err != nil {
		return nil, err
	}

	var user *core.User
	var credential *core.Account
	err := s.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		user, err = tx.GetUserByEmail(ctx, core.NormalizeEmail(input.Email))
		if errors.Is(err, core.ErrUserNotFound) {
			return core.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		accounts, err := tx.GetUserAccounts(ctx, user.ID)
		if err != nil {
			return err
		}
		credential = find(accounts, core.ProviderCredential)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// hashing runs outside the transaction
	if credential == nil || credential.Password == nil {
		return nil, core.ErrInvalidCredentials
	}
	ok, err := s.password.Verify(input.Password, *credential.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, core.ErrInvalidCredentials
	}

	if user.Banned {
		return nil, core.ErrUserBanned
	}
	if s.config.RequireVerification && !user.EmailVerified {
		s.sendVerification(ctx, user.ID)
		return nil, core.ErrEmailNotVerified
	}

	created, err := s.sessions.Create(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user signed in", "user_id", user.ID, "provider_id", core.ProviderCredential)
	return &core.SignInResult{User: user, Session: created.Session, Token: created.Token}, nil
}

// SignOut deletes the session behind token.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrInvalidToken
	}
	tokenHash := crypto.HashToken(token)

	err := s.storage.WithTx(ctx, func(tx core.Tx) error {
		err := tx.DeleteSessionByHash(ctx, tokenHash)
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.ErrInvalidToken
		}
		return err
	})
	if err != nil {
		return err
	}

	s.sessions.forget(ctx, tokenHash)
	s.metrics.SessionsRevoked("sign-out", 1)
	return nil
}

// GetSession resolves token to the session and its user.
func (s *AuthService) GetSession(ctx context.Context, token string) (*core.SessionData, error) {
	session, err := s.sessions.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	var user *core.User
	err = s.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		user, err = tx.GetUserByID(ctx, session.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &core.SessionData{User: user, Session: session}, nil
}

// ChangePassword replaces the password after checking the current one and
// signs out every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentToken string, input core.ChangePasswordInput) error {
	if err := core.ValidateStruct(input); err != nil {
		return err
	}
	if err := core.ValidatePassword(input.NewPassword); err != nil {
		return err
	}

	var current string
	err := s.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		current, err = credentialDigest(ctx, tx, userID)
		return err
	})
	if err != nil {
		return err
	}

	ok, err := s.password.Verify(input.CurrentPassword, current)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return core.ErrInvalidCredentials
	}
	hash, err := s.password.Hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	keep := ""
	if currentToken != "" {
		keep = crypto.HashToken(currentToken)
	}
	var revoked []string
	err = s.storage.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		// the digest may have changed since it was verified
		digest, err := credentialDigest(ctx, tx, userID)
		if err != nil {
			return err
		}
		if digest != current {
			return core.ErrInvalidCredentials
		}
		if err := setPassword(ctx, tx, userID, hash, s.now()); err != nil {
			return err
		}
		revoked, err = s.sessions.revokeOthersInTx(ctx, tx, userID, keep)
		return err
	})
	if err != nil {
		return err
	}

	s.sessions.forget(ctx, revoked...)
	s.metrics.SessionsRevoked("password-change", len(revoked))
	s.logger.InfoContext(ctx, "password changed", "user_id", userID, "sessions_revoked", len(revoked))
	return nil
}

func credentialDigest(ctx context.Context, tx core.Tx, userID string) (string, error) {
	accounts, err := tx.GetUserAccounts(ctx, userID)
	if err != nil {
		return "", err
	}
	credential := find(accounts, core.ProviderCredential)
	if credential == nil || credential.Password == nil {
		return "", core.ErrMethodNotFound
	}
	return *credential.Password, nil
}

// UpdateProfile changes the fields set in input.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input core.UpdateProfileInput) (*core.User, error) {
	if err := core.ValidateStruct(input); err != nil {
		return nil, err
	}

	var user *core.User
	err := s.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		user, err = tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			user.Name = *input.Name
		}
		if input.DisplayName != nil {
			user.DisplayName = *input.DisplayName
		}
		if input.Image != nil {
			user.Image = input.Image
		}
		user.UpdatedAt = s.now()
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SignInWithProvider signs in with an identity from a social provider. A
// known identity signs in its user; otherwise a provider-verified email
// links to the matching user, and an unknown email creates a new user.
func (s *AuthService) SignInWithProvider(ctx context.Context, profile core.ProviderProfile, ip, userAgent string) (*core.SignInResult, error) {
	if profile.ProviderID == "" || profile.ProviderID == core.ProviderCredential {
		return nil, core.ErrInvalidProvider
	}
	if profile.AccountID == "" {
		return nil, core.ErrValidation.WithMessage("provider returned no account id")
	}
	address := core.NormalizeEmail(profile.Email)

	var user *core.User
	var created *core.CreateSessionResult
	var linked, registered bool
	err := s.storage.WithTx(ctx, func(tx core.Tx) error {
		now := s.now()
		account, err := tx.GetAccountByProvider(ctx, profile.ProviderID, profile.AccountID)
		switch {
		case err == nil:
			user, err = tx.LockUser(ctx, account.UserID)
			if err != nil {
				return err
			}
			account.AccessToken = profile.AccessToken
			account.RefreshToken = profile.RefreshToken
			account.ExpiresAt = profile.ExpiresAt
			account.UpdatedAt = now
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return err
			}

		case errors.Is(err, core.ErrMethodNotFound):
			if err := core.ValidateEmail(address); err != nil {
				return err
			}
			user, err = tx.GetUserByEmail(ctx, address)
			switch {
			case err == nil:
				if !profile.EmailVerified {
					return core.ErrEmailInUse.WithMessage("sign in with your existing method, then link %s from your account", profile.ProviderID)
				}
				linked = true
			case errors.Is(err, core.ErrUserNotFound):
				user = &core.User{
					ID:            crypto.NewID(),
					Email:         address,
					EmailVerified: profile.EmailVerified,
					Name:          profile.Name,
					Image:         profile.Image,
					Role:          core.Roles{core.RoleUser},
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				if err := tx.CreateUser(ctx, user); err != nil {
					return err
				}
				registered = true
			default:
				return err
			}

			if err := tx.CreateAccount(ctx, &core.Account{
				ID:           crypto.NewID(),
				UserID:       user.ID,
				ProviderID:   profile.ProviderID,
				AccountID:    profile.AccountID,
				AccessToken:  profile.AccessToken,
				RefreshToken: profile.RefreshToken,
				ExpiresAt:    profile.ExpiresAt,
				CreatedAt:    now,
				UpdatedAt:    now,
			}); err != nil {
				return err
			}
			if linked && !user.EmailVerified {
				user.EmailVerified = true
				user.UpdatedAt = now
				if err := tx.UpdateUser(ctx, user); err != nil {
					return err
				}
			}

		default:
			return err
		}

		created, err = s.sessions.createInTx(ctx, tx, user, ip, userAgent)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sessions.cacheSession(ctx, created.Session)
	s.logger.InfoContext(ctx, "user signed in", "user_id", user.ID, "provider_id", profile.ProviderID,
		"linked", linked, "registered", registered)
	return &core.SignInResult{User: user, Session: created.Session, Token: created.Token}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, userID string) {
	if s.confirmations == nil {
		return
	}
	if _, err := s.confirmations.Request(ctx, userID, core.VerifyEmail, ""); err != nil {
		s.logger.ErrorContext(ctx, "failed to request email verification", "user_id", userID, "error", err)
	}
}
