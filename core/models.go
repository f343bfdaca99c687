package core

import (
	"slices"
	"strings"
	"time"
)

const (
	// ProviderCredential is the provider id of the email/password account.
	ProviderCredential = "credential"
	ProviderGoogle     = "google"
	ProviderGithub     = "github"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Roles is the set of role tags held by a user.
//
// Stored as a comma separated string ("user,admin").
type Roles []string

// ParseRoles splits a stored role string. An empty string yields the default role.
func ParseRoles(s string) Roles {
	var roles Roles
	for _, r := range strings.Split(s, ",") {
		r = strings.TrimSpace(r)
		if r == "" || roles.Has(r) {
			continue
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return Roles{RoleUser}
	}
	return roles
}

func (r Roles) Has(role string) bool {
	return slices.Contains(r, role)
}

func (r Roles) String() string {
	return strings.Join(r, ",")
}

// User represents a user account in the system
//
// This is the "identity" - who someone is
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"displayName,omitempty"`
	Image         *string   `json:"image,omitempty"`
	Role          Roles     `json:"role"`
	Banned        bool      `json:"banned"`
	BanReason     *string   `json:"banReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Account represents an authentication method
//
// This is the "credential" - how someone proves who they are
type Account struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	ProviderID   string     `json:"providerId"` // "credential", "google", "github"
	AccountID    string     `json:"accountId"`
	Password     *string    `json:"-"` // Never expose in JSON
	AccessToken  *string    `json:"-"` // Never expose in JSON
	RefreshToken *string    `json:"-"` // Never expose in JSON
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Session represents an active login session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"` // Never expose in JSON (security!)
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionListing is a session as shown to its owner.
type SessionListing struct {
	Session
	IsCurrent bool `json:"isCurrent"`
}

// SessionData combines user and session info
// The model returned to clients
type SessionData struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// CreateSessionResult carries the raw token, which is never stored.
type CreateSessionResult struct {
	Session *Session `json:"session"`
	Token   string   `json:"token"`
}

// AuthMethods describes the sign-in methods linked to a user.
type AuthMethods struct {
	Methods             []string `json:"methods"`
	HasCredential       bool     `json:"hasCredential"`
	CanRemoveCredential bool     `json:"canRemoveCredential"`
}

// VerificationKind identifies what a pending verification applies once confirmed.
type VerificationKind string

const (
	VerifyEmailChange     VerificationKind = "email-change"
	VerifyAccountDeletion VerificationKind = "account-deletion"
	VerifyPasswordReset   VerificationKind = "password-reset"
	VerifyEmail           VerificationKind = "email-verification"
	OTPSignIn             VerificationKind = "sign-in-otp"
	OTPEmailVerification  VerificationKind = "email-verification-otp"
	OTPPasswordReset      VerificationKind = "password-reset-otp"
)

// IsOTP reports whether the kind is confirmed with a short numeric code.
func (k VerificationKind) IsOTP() bool {
	switch k {
	case OTPSignIn, OTPEmailVerification, OTPPasswordReset:
		return true
	}
	return false
}

func (k VerificationKind) Valid() bool {
	switch k {
	case VerifyEmailChange, VerifyAccountDeletion, VerifyPasswordReset, VerifyEmail,
		OTPSignIn, OTPEmailVerification, OTPPasswordReset:
		return true
	}
	return false
}

// Verification is a pending sensitive action awaiting out-of-band confirmation.
type Verification struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	Kind         VerificationKind `json:"kind"`
	Payload      string           `json:"payload,omitempty"` // new email for email-change
	TokenHash    string           `json:"-"`
	Attempts     int              `json:"-"`
	IssuedAt     time.Time        `json:"issuedAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	ConsumedAt   *time.Time       `json:"consumedAt,omitempty"`
	SupersededAt *time.Time       `json:"supersededAt,omitempty"`
}

type SortField string

const (
	SortCreatedAt     SortField = "createdAt"
	SortEmail         SortField = "email"
	SortName          SortField = "name"
	SortEmailVerified SortField = "emailVerified"
)

// UserFilter narrows an admin user listing. All set fields must match.
type UserFilter struct {
	Query         string // case-insensitive substring of email or name
	Role          string
	Banned        *bool
	EmailVerified *bool
}

type UserSort struct {
	Field SortField
	Desc  bool
}

type Page struct {
	Offset int
	Limit  int
}

// UserPage is one page of an admin user listing.
type UserPage struct {
	Users  []*User `json:"users"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// MonthlySignups counts users created in one calendar month (YYYY-MM).
type MonthlySignups struct {
	Month   string `json:"month"`
	Admins  int    `json:"admins"`
	Banned  int    `json:"banned"`
	Regular int    `json:"regular"`
}

type UserStats struct {
	TotalUsers  int              `json:"totalUsers"`
	AdminUsers  int              `json:"adminUsers"`
	BannedUsers int              `json:"bannedUsers"`
	Monthly     []MonthlySignups `json:"monthly"`
}
