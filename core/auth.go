package core

import "time"

// SignUpInput contains the data needed to register a new user
type SignUpInput struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required"`
	Name     string  `json:"name" validate:"required,max=100"`
	Image    *string `json:"image,omitempty" validate:"omitempty,url"`
}

// SignUpResult contains the newly created user and, when email
// verification is not required, their first session
type SignUpResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session,omitempty"`
	Token   string   `json:"token,omitempty"` // The raw token (not the hash)
}

// SignInInput contains the credentials for authentication
type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignInResult contains the authenticated user and their session
type SignInResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Token   string   `json:"token"` // The raw token (not the hash)
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// UpdateProfileInput changes only the fields that are set.
type UpdateProfileInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	DisplayName *string `json:"displayName,omitempty" validate:"omitempty,max=100"`
	Image       *string `json:"image,omitempty" validate:"omitempty,url"`
}

// ProviderProfile is the identity returned by a social provider after sign-in.
type ProviderProfile struct {
	ProviderID    string
	AccountID     string
	Email         string
	EmailVerified bool
	Name          string
	Image         *string
	AccessToken   *string
	RefreshToken  *string
	ExpiresAt     *time.Time
}

// ConfirmInput carries the data some confirmations apply.
type ConfirmInput struct {
	NewPassword string `json:"newPassword,omitempty"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

// ConfirmResult describes the effect of a completed confirmation.
type ConfirmResult struct {
	Kind    VerificationKind     `json:"kind"`
	User    *User                `json:"user,omitempty"`
	Deleted bool                 `json:"deleted,omitempty"`
	Session *CreateSessionResult `json:"session,omitempty"` // sign-in OTP only
}
