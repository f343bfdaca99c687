package core

import "time"

type SessionConfig struct {
	// MaxAge is the lifetime of a session from its last refresh.
	MaxAge time.Duration
	// UpdateAge is how stale UpdatedAt may get before Verify extends the session.
	UpdateAge time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge:    7 * 24 * time.Hour,
		UpdateAge: 24 * time.Hour,
	}
}

// VerificationConfig holds lifetimes of pending sensitive actions.
type VerificationConfig struct {
	EmailChangeTTL       time.Duration
	AccountDeletionTTL   time.Duration
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration

	OTPLength      int
	OTPTTL         time.Duration
	OTPMaxAttempts int
}

func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		EmailChangeTTL:       24 * time.Hour,
		AccountDeletionTTL:   24 * time.Hour,
		PasswordResetTTL:     time.Hour,
		EmailVerificationTTL: 24 * time.Hour,
		OTPLength:            6,
		OTPTTL:               5 * time.Minute,
		OTPMaxAttempts:       3,
	}
}

// TTL returns the lifetime for kind.
func (c VerificationConfig) TTL(kind VerificationKind) time.Duration {
	switch kind {
	case VerifyEmailChange:
		return c.EmailChangeTTL
	case VerifyAccountDeletion:
		return c.AccountDeletionTTL
	case VerifyPasswordReset:
		return c.PasswordResetTTL
	case VerifyEmail:
		return c.EmailVerificationTTL
	}
	return c.OTPTTL
}

// EmailConfig controls outgoing mail content.
type EmailConfig struct {
	AppName string
	// BaseURL prefixes the links placed in emails, e.g. https://app.example.com
	BaseURL string
	// RequireVerification blocks sign-in until the email is verified.
	RequireVerification bool
}
