package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lborres/bantay/core"
)

func newAdminEnv(t *testing.T) (*testEnv, *core.User) {
	t.Helper()
	env := newTestEnv(t, core.EmailConfig{})
	root, _ := env.signUp(t, "root@example.com")
	env.makeAdmin(t, root.ID)
	return env, root
}

// Requirement: Every admin operation is refused to non-admins and unknown actors.
func TestAdminService_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	env, _ := newAdminEnv(t)
	user, _ := env.signUp(t, "ana@example.com")
	target, _ := env.signUp(t, "bob@example.com")

	for _, actor := range []string{user.ID, "missing"} {
		calls := map[string]func() error{
			"SetRole": func() error {
				_, err := env.admin.SetRole(ctx, actor, target.ID, core.Roles{core.RoleAdmin})
				return err
			},
			"SetBanned": func() error {
				_, err := env.admin.SetBanned(ctx, actor, target.ID, true, nil)
				return err
			},
			"ListUsers": func() error {
				_, err := env.admin.ListUsers(ctx, actor, core.UserFilter{}, core.UserSort{}, core.Page{})
				return err
			},
			"RemoveUser": func() error { return env.admin.RemoveUser(ctx, actor, target.ID) },
			"Stats": func() error {
				_, err := env.admin.Stats(ctx, actor)
				return err
			},
		}
		for name, call := range calls {
			t.Run(fmt.Sprintf("%s by %s", name, actor), func(t *testing.T) {
				wantErr(t, call(), core.ErrForbidden)
			})
		}
	}

	if _, err := env.user(t, target.ID); err != nil {
		t.Errorf("target should be untouched: %v", err)
	}
}

// Requirement: HasPermission is true only for users holding the admin role.
func TestAdminService_HasPermission(t *testing.T) {
	ctx := context.Background()
	env, root := newAdminEnv(t)
	user, _ := env.signUp(t, "ana@example.com")

	tests := []struct {
		name    string
		userID  string
		want    bool
		wantErr error
	}{
		{"admin", root.ID, true, nil},
		{"regular user", user.ID, false, nil},
		{"unknown user", "missing", false, core.ErrUserNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := env.admin.HasPermission(ctx, test.userID, CapabilityManageUsers)
			wantErr(t, err, test.wantErr)
			if got != test.want {
				t.Errorf("HasPermission should be %v; got %v", test.want, got)
			}
		})
	}
}

// Requirement: Promotion to admin grants permissions and sends a promotion email.
func TestAdminService_SetRole(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env, root := newAdminEnv(t)
	user, _ := env.signUp(t, "ana@example.com")

	// Act
	updated, err := env.admin.SetRole(ctx, root.ID, user.ID, core.Roles{core.RoleUser, core.RoleAdmin})

	// Assert
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if !updated.Role.Has(core.RoleAdmin) {
		t.Errorf("user should be an admin; got %v", updated.Role)
	}
	msg := env.mailer.last(t)
	if msg.To != "ana@example.com" || msg.Subject != "You are now an administrator" {
		t.Errorf("promotion email should be sent; got %q to %q", msg.Subject, msg.To)
	}
	if ok, _ := env.admin.HasPermission(ctx, user.ID, CapabilityManageUsers); !ok {
		t.Errorf("promoted user should hold admin permissions")
	}

	// re-applying admin sends nothing new
	sent := env.mailer.count()
	env.admin.SetRole(ctx, root.ID, user.ID, core.Roles{core.RoleAdmin})
	if env.mailer.count() != sent {
		t.Errorf("only the transition to admin should send mail")
	}

	_, err = env.admin.SetRole(ctx, root.ID, user.ID, core.Roles{})
	wantErr(t, err, core.ErrValidation)
	_, err = env.admin.SetRole(ctx, root.ID, "missing", core.Roles{core.RoleUser})
	wantErr(t, err, core.ErrUserNotFound)
}

// Requirement: A ban blocks the user's sessions until it is lifted, and the
// reason is kept only while banned.
func TestAdminService_SetBanned(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env, root := newAdminEnv(t)
	user, token := env.signUp(t, "ana@example.com")
	reason := "spam"

	// Act
	banned, err := env.admin.SetBanned(ctx, root.ID, user.ID, true, &reason)

	// Assert
	if err != nil {
		t.Fatalf("SetBanned failed: %v", err)
	}
	if !banned.Banned || banned.BanReason == nil || *banned.BanReason != "spam" {
		t.Errorf("ban should be recorded with its reason; got %+v", banned)
	}
	_, err = env.sessions.Verify(ctx, token)
	wantErr(t, err, core.ErrUserBanned)
	_, err = env.auth.SignIn(ctx, core.SignInInput{Email: "ana@example.com", Password: testPassword}, "", "")
	wantErr(t, err, core.ErrUserBanned)

	unbanned, err := env.admin.SetBanned(ctx, root.ID, user.ID, false, &reason)
	if err != nil {
		t.Fatalf("unban failed: %v", err)
	}
	if unbanned.Banned || unbanned.BanReason != nil {
		t.Errorf("unban should clear the reason; got %+v", unbanned)
	}
	if _, err := env.sessions.Verify(ctx, token); err != nil {
		t.Errorf("sessions should work again after unban: %v", err)
	}
}

// Requirement: ListUsers combines filters, sorts and pages.
func TestAdminService_ListUsers(t *testing.T) {
	ctx := context.Background()
	env, root := newAdminEnv(t)
	for _, address := range []string{"carol@example.com", "alice@other.org", "bob@example.com"} {
		env.clock.Advance(time.Minute)
		env.signUp(t, address)
	}
	bob, _ := env.auth.SignIn(ctx, core.SignInInput{Email: "bob@example.com", Password: testPassword}, "", "")
	env.admin.SetBanned(ctx, root.ID, bob.User.ID, true, nil)

	yes := true
	tests := []struct {
		name      string
		filter    core.UserFilter
		sort      core.UserSort
		page      core.Page
		wantEmail []string
		wantTotal int
		wantLimit int
	}{
		{
			name:      "defaults to createdAt ascending",
			wantEmail: []string{"root@example.com", "carol@example.com", "alice@other.org", "bob@example.com"},
			wantTotal: 4, wantLimit: DefaultPageLimit,
		},
		{
			name:      "query matches email case-insensitively",
			filter:    core.UserFilter{Query: "EXAMPLE.com"},
			sort:      core.UserSort{Field: core.SortEmail},
			wantEmail: []string{"bob@example.com", "carol@example.com", "root@example.com"},
			wantTotal: 3, wantLimit: DefaultPageLimit,
		},
		{
			name:      "banned filter",
			filter:    core.UserFilter{Banned: &yes},
			wantEmail: []string{"bob@example.com"},
			wantTotal: 1, wantLimit: DefaultPageLimit,
		},
		{
			name:      "role filter",
			filter:    core.UserFilter{Role: core.RoleAdmin},
			wantEmail: []string{"root@example.com"},
			wantTotal: 1, wantLimit: DefaultPageLimit,
		},
		{
			name:      "descending with offset and capped limit",
			sort:      core.UserSort{Field: core.SortEmail, Desc: true},
			page:      core.Page{Offset: 1, Limit: 1000},
			wantEmail: []string{"carol@example.com", "bob@example.com", "alice@other.org"},
			wantTotal: 4, wantLimit: MaxPageLimit,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			page, err := env.admin.ListUsers(ctx, root.ID, test.filter, test.sort, test.page)
			if err != nil {
				t.Fatalf("ListUsers failed: %v", err)
			}
			var got []string
			for _, u := range page.Users {
				got = append(got, u.Email)
			}
			if fmt.Sprint(got) != fmt.Sprint(test.wantEmail) {
				t.Errorf("users should be %v; got %v", test.wantEmail, got)
			}
			if page.Total != test.wantTotal || page.Limit != test.wantLimit {
				t.Errorf("total/limit should be %d/%d; got %d/%d", test.wantTotal, test.wantLimit, page.Total, page.Limit)
			}
		})
	}

	_, err := env.admin.ListUsers(ctx, root.ID, core.UserFilter{}, core.UserSort{Field: "password"}, core.Page{})
	wantErr(t, err, core.ErrValidation)
}

// Requirement: RemoveUser hard-deletes the user and revokes their sessions.
func TestAdminService_RemoveUser(t *testing.T) {
	ctx := context.Background()
	env, root := newAdminEnv(t)
	user, token := env.signUp(t, "ana@example.com")

	if err := env.admin.RemoveUser(ctx, root.ID, user.ID); err != nil {
		t.Fatalf("RemoveUser failed: %v", err)
	}

	_, err := env.user(t, user.ID)
	wantErr(t, err, core.ErrUserNotFound)
	_, err = env.sessions.Verify(ctx, token)
	wantErr(t, err, core.ErrInvalidToken)
	wantErr(t, env.admin.RemoveUser(ctx, root.ID, user.ID), core.ErrUserNotFound)
}

// Requirement: Stats reports totals and six months of sign-ups, oldest first,
// with empty months as zeros.
func TestAdminService_Stats(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env, root := newAdminEnv(t) // 2025-03
	env.clock.Advance(31 * 24 * time.Hour)
	user, _ := env.signUp(t, "ana@example.com") // 2025-04
	env.signUp(t, "bob@example.com")
	env.admin.SetBanned(ctx, root.ID, user.ID, true, nil)

	// Act
	stats, err := env.admin.Stats(ctx, root.ID)

	// Assert
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalUsers != 3 || stats.AdminUsers != 1 || stats.BannedUsers != 1 {
		t.Errorf("unexpected totals %+v", stats)
	}
	want := []core.MonthlySignups{
		{Month: "2024-11"}, {Month: "2024-12"}, {Month: "2025-01"}, {Month: "2025-02"},
		{Month: "2025-03", Admins: 1},
		{Month: "2025-04", Banned: 1, Regular: 1},
	}
	if fmt.Sprint(stats.Monthly) != fmt.Sprint(want) {
		t.Errorf("monthly should be %v; got %v", want, stats.Monthly)
	}
}
