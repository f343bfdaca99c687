package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/lborres/bantay/adapters/memory"
	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/cache"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/email"
)

const testPassword = "Secret123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingMailer keeps every message; fail makes Send return an error
// after recording.
type recordingMailer struct {
	mu   sync.Mutex
	sent []core.Message
	fail error
}

func (m *recordingMailer) Send(_ context.Context, msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.fail
}

func (m *recordingMailer) last(t *testing.T) core.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected an email to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var (
	tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)
	codePattern  = regexp.MustCompile(`code is (\d+)`)
)

func tokenFrom(t *testing.T, msg core.Message) string {
	t.Helper()
	m := tokenPattern.FindStringSubmatch(msg.Text)
	if m == nil {
		t.Fatalf("no token link in email %q", msg.Text)
	}
	return m[1]
}

func codeFrom(t *testing.T, msg core.Message) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(msg.Text)
	if m == nil {
		t.Fatalf("no code in email %q", msg.Text)
	}
	return m[1]
}

type testEnv struct {
	store    *memory.Store
	cache    *cache.InMemoryCache
	clock    *testClock
	mailer   *recordingMailer
	sessions *SessionManager
	methods  *MethodRegistry
	confirm  *ConfirmationFlow
	admin    *AdminService
	auth     *AuthService
}

func newTestEnv(t *testing.T, emailConfig core.EmailConfig) *testEnv {
	t.Helper()

	renderer, err := email.NewRenderer("Bantay")
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	env := &testEnv{
		store:  memory.New(),
		cache:  cache.NewInMemoryCache(core.CacheConfig{}),
		clock:  newTestClock(),
		mailer: &recordingMailer{},
	}
	// cheap hashing keeps the suite fast
	password := &crypto.Argon2{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	mail := Mail{Mailer: env.mailer, Renderer: renderer, BaseURL: "https://app.example.com"}
	opts := []Option{WithClock(env.clock.Now)}

	env.sessions = NewSessionManager(core.DefaultSessionConfig(), env.store, env.cache, opts...)
	env.methods = NewMethodRegistry(env.store, password, opts...)
	env.confirm = NewConfirmationFlow(env.store, env.sessions, password, mail, core.DefaultVerificationConfig(), opts...)
	env.admin = NewAdminService(env.store, env.sessions, mail, opts...)
	env.auth = NewAuthService(env.store, password, env.sessions, env.confirm, emailConfig, opts...)
	return env
}

// signUp registers a credential user and returns it with a session token.
func (e *testEnv) signUp(t *testing.T, address string) (*core.User, string) {
	t.Helper()
	res, err := e.auth.SignUp(context.Background(), core.SignUpInput{Email: address, Password: testPassword, Name: "Test User"}, "127.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("SignUp(%s) failed: %v", address, err)
	}
	return res.User, res.Token
}

// socialUser creates a user whose only method is providerID.
func (e *testEnv) socialUser(t *testing.T, address, providerID, externalID string) *core.User {
	t.Helper()
	res, err := e.auth.SignInWithProvider(context.Background(), core.ProviderProfile{
		ProviderID:    providerID,
		AccountID:     externalID,
		Email:         address,
		EmailVerified: true,
		Name:          "Social User",
	}, "127.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("SignInWithProvider(%s) failed: %v", address, err)
	}
	return res.User
}

// makeAdmin grants the admin role directly in storage.
func (e *testEnv) makeAdmin(t *testing.T, userID string) {
	t.Helper()
	err := e.store.WithTx(context.Background(), func(tx core.Tx) error {
		u, err := tx.GetUserByID(context.Background(), userID)
		if err != nil {
			return err
		}
		u.Role = core.Roles{core.RoleUser, core.RoleAdmin}
		return tx.UpdateUser(context.Background(), u)
	})
	if err != nil {
		t.Fatalf("makeAdmin failed: %v", err)
	}
}

func (e *testEnv) user(t *testing.T, userID string) (*core.User, error) {
	t.Helper()
	var u *core.User
	err := e.store.WithTx(context.Background(), func(tx core.Tx) error {
		var err error
		u, err = tx.GetUserByID(context.Background(), userID)
		return err
	})
	return u, err
}

func (e *testEnv) accounts(t *testing.T, userID string) []*core.Account {
	t.Helper()
	var out []*core.Account
	err := e.store.WithTx(context.Background(), func(tx core.Tx) error {
		var err error
		out, err = tx.GetUserAccounts(context.Background(), userID)
		return err
	})
	if err != nil {
		t.Fatalf("GetUserAccounts failed: %v", err)
	}
	return out
}

func wantErr(t *testing.T, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("expected error %v; got %v", want, got)
	}
}
