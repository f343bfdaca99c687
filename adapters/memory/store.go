// Package memory is an in-process core.Storage. Transactions are serialized
// by one mutex and roll back by restoring a snapshot.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lborres/bantay/core"
)

// Ensure Store implements core.Storage
var _ core.Storage = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	state *state
}

// state maps hold immutable copies; writes replace entries instead of
// mutating them, so a shallow clone is a full snapshot.
type state struct {
	users         map[string]*core.User
	userSeq       map[string]int64
	accounts      map[string]*core.Account
	sessions      map[string]*core.Session
	verifications map[string]*core.Verification
	nextSeq       int64
}

func New() *Store {
	return &Store{state: &state{
		users:         make(map[string]*core.User),
		userSeq:       make(map[string]int64),
		accounts:      make(map[string]*core.Account),
		sessions:      make(map[string]*core.Session),
		verifications: make(map[string]*core.Verification),
	}}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&tx{st: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (st *state) clone() *state {
	return &state{
		users:         maps.Clone(st.users),
		userSeq:       maps.Clone(st.userSeq),
		accounts:      maps.Clone(st.accounts),
		sessions:      maps.Clone(st.sessions),
		verifications: maps.Clone(st.verifications),
		nextSeq:       st.nextSeq,
	}
}

type tx struct {
	st *state
}

// ============================================
// USERS
// ============================================

func (t *tx) CreateUser(_ context.Context, u *core.User) error {
	if _, exists := t.st.users[u.ID]; exists {
		return core.ErrUserExists
	}
	if t.emailTaken(u.Email, "") {
		return core.ErrUserExists
	}
	t.st.nextSeq++
	t.st.userSeq[u.ID] = t.st.nextSeq
	t.st.users[u.ID] = cloneUser(u)
	return nil
}

func (t *tx) GetUserByID(_ context.Context, id string) (*core.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (t *tx) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	for _, u := range t.st.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, core.ErrUserNotFound
}

// LockUser is a plain read; the store mutex already excludes other transactions.
func (t *tx) LockUser(ctx context.Context, id string) (*core.User, error) {
	return t.GetUserByID(ctx, id)
}

func (t *tx) UpdateUser(_ context.Context, u *core.User) error {
	if _, exists := t.st.users[u.ID]; !exists {
		return core.ErrUserNotFound
	}
	if t.emailTaken(u.Email, u.ID) {
		return core.ErrEmailInUse
	}
	t.st.users[u.ID] = cloneUser(u)
	return nil
}

func (t *tx) DeleteUser(_ context.Context, id string) error {
	if _, exists := t.st.users[id]; !exists {
		return core.ErrUserNotFound
	}
	delete(t.st.users, id)
	delete(t.st.userSeq, id)
	maps.DeleteFunc(t.st.accounts, func(_ string, a *core.Account) bool { return a.UserID == id })
	maps.DeleteFunc(t.st.sessions, func(_ string, s *core.Session) bool { return s.UserID == id })
	maps.DeleteFunc(t.st.verifications, func(_ string, v *core.Verification) bool { return v.UserID == id })
	return nil
}

func (t *tx) ListUsers(_ context.Context, filter core.UserFilter, sort core.UserSort, page core.Page) ([]*core.User, int, error) {
	var matched []*core.User
	for _, u := range t.st.users {
		if matchesFilter(u, filter) {
			matched = append(matched, u)
		}
	}

	slices.SortFunc(matched, func(a, b *core.User) int {
		c := compareUsers(a, b, sort.Field)
		if sort.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		// ties keep insertion order regardless of direction
		return cmpInt64(t.st.userSeq[a.ID], t.st.userSeq[b.ID])
	})

	total := len(matched)
	start := min(max(page.Offset, 0), total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}

	out := make([]*core.User, 0, end-start)
	for _, u := range matched[start:end] {
		out = append(out, cloneUser(u))
	}
	return out, total, nil
}

func (t *tx) CountUsers(_ context.Context, since time.Time) (*core.UserStats, error) {
	stats := &core.UserStats{}
	monthly := make(map[string]*core.MonthlySignups)

	for _, u := range t.st.users {
		stats.TotalUsers++
		admin := u.Role.Has(core.RoleAdmin)
		if admin {
			stats.AdminUsers++
		}
		if u.Banned {
			stats.BannedUsers++
		}

		if u.CreatedAt.Before(since) {
			continue
		}
		key := u.CreatedAt.UTC().Format("2006-01")
		m, ok := monthly[key]
		if !ok {
			m = &core.MonthlySignups{Month: key}
			monthly[key] = m
		}
		switch {
		case admin:
			m.Admins++
		case u.Banned:
			m.Banned++
		default:
			m.Regular++
		}
	}

	for _, key := range slices.Sorted(maps.Keys(monthly)) {
		stats.Monthly = append(stats.Monthly, *monthly[key])
	}
	return stats, nil
}

func (t *tx) emailTaken(email, exceptID string) bool {
	for id, u := range t.st.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

// ============================================
// ACCOUNTS
// ============================================

func (t *tx) CreateAccount(_ context.Context, a *core.Account) error {
	if _, ok := t.st.users[a.UserID]; !ok {
		return core.ErrUserNotFound
	}
	for _, existing := range t.st.accounts {
		if existing.UserID == a.UserID && existing.ProviderID == a.ProviderID {
			if a.ProviderID == core.ProviderCredential {
				return core.ErrAlreadyHasCredential
			}
			return core.ErrAlreadyLinked
		}
	}
	for _, existing := range t.st.accounts {
		if existing.ProviderID == a.ProviderID && existing.AccountID == a.AccountID {
			return core.ErrExternalIDInUse
		}
	}
	t.st.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (t *tx) GetUserAccounts(_ context.Context, userID string) ([]*core.Account, error) {
	var out []*core.Account
	for _, a := range t.st.accounts {
		if a.UserID == userID {
			out = append(out, cloneAccount(a))
		}
	}
	slices.SortFunc(out, func(a, b *core.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) GetAccountByProvider(_ context.Context, providerID, accountID string) (*core.Account, error) {
	for _, a := range t.st.accounts {
		if a.ProviderID == providerID && a.AccountID == accountID {
			return cloneAccount(a), nil
		}
	}
	return nil, core.ErrMethodNotFound
}

func (t *tx) UpdateAccount(_ context.Context, a *core.Account) error {
	if _, ok := t.st.accounts[a.ID]; !ok {
		return core.ErrMethodNotFound
	}
	t.st.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (t *tx) DeleteAccount(_ context.Context, id string) error {
	if _, ok := t.st.accounts[id]; !ok {
		return core.ErrMethodNotFound
	}
	delete(t.st.accounts, id)
	return nil
}

// ============================================
// SESSIONS
// ============================================

func (t *tx) CreateSession(_ context.Context, session *core.Session) error {
	if _, ok := t.st.users[session.UserID]; !ok {
		return core.ErrUserNotFound
	}
	c := *session
	t.st.sessions[session.ID] = &c
	return nil
}

func (t *tx) GetSessionByHash(_ context.Context, tokenHash string) (*core.Session, error) {
	for _, s := range t.st.sessions {
		if s.TokenHash == tokenHash {
			c := *s
			return &c, nil
		}
	}
	return nil, core.ErrSessionNotFound
}

func (t *tx) GetSessionByID(_ context.Context, id string) (*core.Session, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (t *tx) GetUserSessions(_ context.Context, userID string) ([]*core.Session, error) {
	var out []*core.Session
	for _, s := range t.st.sessions {
		if s.UserID == userID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (t *tx) UpdateSession(_ context.Context, session *core.Session) error {
	if _, ok := t.st.sessions[session.ID]; !ok {
		return core.ErrSessionNotFound
	}
	c := *session
	t.st.sessions[session.ID] = &c
	return nil
}

func (t *tx) DeleteSessionByID(_ context.Context, id string) error {
	if _, ok := t.st.sessions[id]; !ok {
		return core.ErrSessionNotFound
	}
	delete(t.st.sessions, id)
	return nil
}

func (t *tx) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	for id, s := range t.st.sessions {
		if s.TokenHash == tokenHash {
			delete(t.st.sessions, id)
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (t *tx) DeleteUserSessions(_ context.Context, userID string) (int, error) {
	return t.deleteSessions(func(s *core.Session) bool { return s.UserID == userID }), nil
}

func (t *tx) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	return t.deleteSessions(func(s *core.Session) bool { return now.After(s.ExpiresAt) }), nil
}

func (t *tx) deleteSessions(match func(*core.Session) bool) int {
	n := 0
	for id, s := range t.st.sessions {
		if match(s) {
			delete(t.st.sessions, id)
			n++
		}
	}
	return n
}

// ============================================
// VERIFICATIONS
// ============================================

func (t *tx) CreateVerification(_ context.Context, v *core.Verification) error {
	if _, ok := t.st.users[v.UserID]; !ok {
		return core.ErrUserNotFound
	}
	t.st.verifications[v.ID] = cloneVerification(v)
	return nil
}

func (t *tx) LockVerification(_ context.Context, tokenHash string) (*core.Verification, error) {
	for _, v := range t.st.verifications {
		if v.TokenHash == tokenHash {
			return cloneVerification(v), nil
		}
	}
	return nil, core.ErrTokenNotFound
}

func (t *tx) LockPendingVerification(_ context.Context, userID string, kind core.VerificationKind) (*core.Verification, error) {
	var newest *core.Verification
	for _, v := range t.st.verifications {
		if v.UserID != userID || v.Kind != kind || v.ConsumedAt != nil || v.SupersededAt != nil {
			continue
		}
		if newest == nil || v.IssuedAt.After(newest.IssuedAt) {
			newest = v
		}
	}
	if newest == nil {
		return nil, core.ErrTokenNotFound
	}
	return cloneVerification(newest), nil
}

func (t *tx) UpdateVerification(_ context.Context, v *core.Verification) error {
	if _, ok := t.st.verifications[v.ID]; !ok {
		return core.ErrTokenNotFound
	}
	t.st.verifications[v.ID] = cloneVerification(v)
	return nil
}

func (t *tx) SupersedeVerifications(_ context.Context, userID string, kind core.VerificationKind, at time.Time) (int, error) {
	n := 0
	for id, v := range t.st.verifications {
		if v.UserID != userID || v.Kind != kind || v.ConsumedAt != nil || v.SupersededAt != nil {
			continue
		}
		c := cloneVerification(v)
		c.SupersededAt = &at
		t.st.verifications[id] = c
		n++
	}
	return n, nil
}
