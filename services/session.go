package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
)

// Ensure SessionManager implements SessionHandler
var _ core.SessionHandler = (*SessionManager)(nil)

type SessionManager struct {
	deps
	config  core.SessionConfig
	storage core.Storage
	cache   core.Cache // optional, can be nil if caching is disabled
}

func NewSessionManager(config core.SessionConfig, storage core.Storage, cache core.Cache, opts ...Option) *SessionManager {
	defaults := core.DefaultSessionConfig()
	if config.MaxAge <= 0 {
		config.MaxAge = defaults.MaxAge
	}
	if config.UpdateAge <= 0 {
		config.UpdateAge = defaults.UpdateAge
	}
	return &SessionManager{deps: newDeps(opts), config: config, storage: storage, cache: cache}
}

// Create opens a session for userID. Banned users are refused.
func (sm *SessionManager) Create(ctx context.Context, userID, ip, userAgent string) (*core.CreateSessionResult, error) {
	var result *core.CreateSessionResult
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		user, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		result, err = sm.createInTx(ctx, tx, user, ip, userAgent)
		return err
	})
	if err != nil {
		return nil, err
	}

	sm.cacheSession(ctx, result.Session)
	return result, nil
}

// createInTx lets other services open a session in their own transaction.
// Call cacheSession after commit.
func (sm *SessionManager) createInTx(ctx context.Context, tx core.Tx, user *core.User, ip, userAgent string) (*core.CreateSessionResult, error) {
	if user.Banned {
		return nil, core.ErrUserBanned
	}

	// Generate cryptographic material
	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	sessionID, err := crypto.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := sm.now()
	session := &core.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: pair.Hash,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(sm.config.MaxAge),
	}
	if err := tx.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sm.logger.InfoContext(ctx, "session created", "user_id", user.ID, "session_id", session.ID)
	return &core.CreateSessionResult{Session: session, Token: pair.Token}, nil
}

// Verify resolves a token to its live session. Sessions idle longer than
// UpdateAge are extended by MaxAge.
func (sm *SessionManager) Verify(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}

	tokenHash := crypto.HashToken(token)

	// Try cache first if caching is enabled
	if sm.cache != nil {
		session, err := sm.cache.Get(ctx, tokenHash)
		sm.metrics.CacheLookup(err == nil)
		// expired or due for refresh: fall through to storage
		if err == nil && !sm.now().After(session.ExpiresAt) && sm.now().Sub(session.UpdatedAt) < sm.config.UpdateAge {
			return session, nil
		}
	}

	var session *core.Session
	var expired bool
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		session, err = tx.GetSessionByHash(ctx, tokenHash)
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.ErrInvalidToken
		}
		if err != nil {
			return err
		}

		now := sm.now()
		if now.After(session.ExpiresAt) {
			expired = true
			return tx.DeleteSessionByID(ctx, session.ID)
		}

		user, err := tx.GetUserByID(ctx, session.UserID)
		if err != nil {
			return err
		}
		if user.Banned {
			return core.ErrUserBanned
		}

		if now.Sub(session.UpdatedAt) >= sm.config.UpdateAge {
			session.UpdatedAt = now
			session.ExpiresAt = now.Add(sm.config.MaxAge)
			return tx.UpdateSession(ctx, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		if sm.cache != nil {
			_ = sm.cache.Delete(ctx, tokenHash)
		}
		return nil, core.ErrSessionExpired
	}

	sm.cacheSession(ctx, session)
	return session, nil
}

// List returns the user's live sessions, most recently active first.
func (sm *SessionManager) List(ctx context.Context, userID, currentToken string) ([]core.SessionListing, error) {
	var sessions []*core.Session
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		sessions, err = tx.GetUserSessions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	currentHash := ""
	if currentToken != "" {
		currentHash = crypto.HashToken(currentToken)
	}

	now := sm.now()
	listing := make([]core.SessionListing, 0, len(sessions))
	for _, s := range sessions {
		if now.After(s.ExpiresAt) {
			continue
		}
		listing = append(listing, core.SessionListing{Session: *s, IsCurrent: s.TokenHash == currentHash})
	}

	slices.SortFunc(listing, func(a, b core.SessionListing) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return listing, nil
}

// Revoke deletes the session identified by sessionToken if it belongs to userID.
func (sm *SessionManager) Revoke(ctx context.Context, userID, sessionToken string) error {
	if sessionToken == "" {
		return core.ErrSessionNotFound
	}
	return sm.revokeWhere(ctx, userID, func(tx core.Tx) (*core.Session, error) {
		return tx.GetSessionByHash(ctx, crypto.HashToken(sessionToken))
	})
}

// RevokeByID deletes the session with sessionID if it belongs to userID.
func (sm *SessionManager) RevokeByID(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return core.ErrSessionNotFound
	}
	return sm.revokeWhere(ctx, userID, func(tx core.Tx) (*core.Session, error) {
		return tx.GetSessionByID(ctx, sessionID)
	})
}

func (sm *SessionManager) revokeWhere(ctx context.Context, userID string, find func(core.Tx) (*core.Session, error)) error {
	var revoked *core.Session
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		session, err := find(tx)
		if err != nil {
			return err
		}
		// another user's session is reported exactly like a missing one
		if session.UserID != userID {
			return core.ErrSessionNotFound
		}
		revoked = session
		return tx.DeleteSessionByID(ctx, session.ID)
	})
	if err != nil {
		return err
	}

	sm.forget(ctx, revoked.TokenHash)
	sm.metrics.SessionsRevoked("revoke", 1)
	sm.logger.InfoContext(ctx, "session revoked", "user_id", userID, "session_id", revoked.ID)
	return nil
}

// RevokeOthers deletes every session of userID except the one for currentToken.
func (sm *SessionManager) RevokeOthers(ctx context.Context, userID, currentToken string) (int, error) {
	keep := ""
	if currentToken != "" {
		keep = crypto.HashToken(currentToken)
	}

	var hashes []string
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		hashes, err = sm.revokeOthersInTx(ctx, tx, userID, keep)
		return err
	})
	if err != nil {
		return 0, err
	}

	sm.forget(ctx, hashes...)
	sm.metrics.SessionsRevoked("revoke-others", len(hashes))
	sm.logger.InfoContext(ctx, "other sessions revoked", "user_id", userID, "count", len(hashes))
	return len(hashes), nil
}

// revokeOthersInTx returns the token hashes it deleted.
func (sm *SessionManager) revokeOthersInTx(ctx context.Context, tx core.Tx, userID, keepHash string) ([]string, error) {
	sessions, err := tx.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	var hashes []string
	for _, s := range sessions {
		if keepHash != "" && s.TokenHash == keepHash {
			continue
		}
		// a concurrent revoke or cleanup may have deleted it already
		err := tx.DeleteSessionByID(ctx, s.ID)
		if errors.Is(err, core.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, s.TokenHash)
	}
	return hashes, nil
}

// RevokeAll deletes every session of userID.
func (sm *SessionManager) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, core.ErrUserNotFound
	}

	var count int
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		count, err = tx.DeleteUserSessions(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}

	sm.forgetUser(ctx, userID)
	sm.metrics.SessionsRevoked("revoke-all", count)
	sm.logger.InfoContext(ctx, "all sessions revoked", "user_id", userID, "count", count)
	return count, nil
}

// Cleanup deletes sessions that expired before now.
func (sm *SessionManager) Cleanup(ctx context.Context) (int, error) {
	var count int
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		var err error
		count, err = tx.DeleteExpiredSessions(ctx, sm.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	sm.metrics.SessionsRevoked("expired", count)
	return count, nil
}

// cacheSession stores session and then re-reads it from storage. A revoke or
// ban that committed after the caller's read has already purged the cache,
// so the entry written here is dropped again when storage no longer agrees.
func (sm *SessionManager) cacheSession(ctx context.Context, session *core.Session) {
	if sm.cache == nil || session == nil {
		return
	}
	// We don't fail the request if caching fails
	if err := sm.cache.Set(ctx, session.TokenHash, session); err != nil {
		return
	}
	if !sm.stillLive(ctx, session) {
		_ = sm.cache.Delete(ctx, session.TokenHash)
	}
}

// stillLive reports whether storage still holds session for an unbanned user.
func (sm *SessionManager) stillLive(ctx context.Context, session *core.Session) bool {
	err := sm.storage.WithTx(ctx, func(tx core.Tx) error {
		stored, err := tx.GetSessionByHash(ctx, session.TokenHash)
		if err != nil {
			return err
		}
		if stored.ID != session.ID {
			return core.ErrSessionNotFound
		}
		user, err := tx.GetUserByID(ctx, stored.UserID)
		if err != nil {
			return err
		}
		if user.Banned {
			return core.ErrUserBanned
		}
		return nil
	})
	return err == nil
}

func (sm *SessionManager) forget(ctx context.Context, hashes ...string) {
	if sm.cache == nil {
		return
	}
	for _, h := range hashes {
		_ = sm.cache.Delete(ctx, h)
	}
}

func (sm *SessionManager) forgetUser(ctx context.Context, userID string) {
	if sm.cache != nil {
		_ = sm.cache.DeleteUser(ctx, userID)
	}
}
