package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// UserStorage defines user-related database operations
type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// LockUser loads the user and holds a row lock until the transaction ends.
	LockUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	// DeleteUser removes the user with its accounts, sessions and verifications.
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, filter UserFilter, sort UserSort, page Page) ([]*User, int, error)
	// CountUsers returns totals and per-month sign-ups for users created at or after since.
	CountUsers(ctx context.Context, since time.Time) (*UserStats, error)
}

// AccountStorage defines account-related database operations
type AccountStorage interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetUserAccounts(ctx context.Context, userID string) ([]*Account, error)
	GetAccountByProvider(ctx context.Context, providerID, accountID string) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, id string) error
}

// SessionStorage defines session-related database operations
type SessionStorage interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	GetUserSessions(ctx context.Context, userID string) ([]*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	DeleteSessionByID(ctx context.Context, id string) error
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// VerificationStorage defines pending sensitive action operations
type VerificationStorage interface {
	CreateVerification(ctx context.Context, v *Verification) error
	// LockVerification loads a record by token hash, whatever its state, with a row lock.
	LockVerification(ctx context.Context, tokenHash string) (*Verification, error)
	// LockPendingVerification loads the newest unconsumed, unsuperseded record of kind for the user.
	LockPendingVerification(ctx context.Context, userID string, kind VerificationKind) (*Verification, error)
	UpdateVerification(ctx context.Context, v *Verification) error
	// SupersedeVerifications marks every pending record of kind for the user as superseded at.
	SupersedeVerifications(ctx context.Context, userID string, kind VerificationKind, at time.Time) (int, error)
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	UserStorage
	AccountStorage
	SessionStorage
	VerificationStorage
}

// Storage is a transactional store. Every service operation runs inside
// exactly one WithTx call.
type Storage interface {
	// WithTx runs fn in one transaction. A non-nil error from fn rolls back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// ============================================
// CACHE PORT
// ============================================

// Cache defines session caching operations
type Cache interface {
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Set(ctx context.Context, tokenHash string, session *Session) error
	Delete(ctx context.Context, tokenHash string) error
	// DeleteUser drops every cached session of the user.
	DeleteUser(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats interface {
	Cache
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// MAIL PORT
// ============================================

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ============================================
// METRICS PORT
// ============================================

// Metrics records workflow outcomes. Implementations must be safe for concurrent use.
type Metrics interface {
	Confirmation(kind VerificationKind, result string)
	SessionsRevoked(reason string, n int)
	MethodChange(op, result string)
	EmailSent(template string, err error)
	CacheLookup(hit bool)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) Confirmation(VerificationKind, string) {}
func (NopMetrics) SessionsRevoked(string, int)           {}
func (NopMetrics) MethodChange(string, string)           {}
func (NopMetrics) EmailSent(string, error)               {}
func (NopMetrics) CacheLookup(bool)                      {}
