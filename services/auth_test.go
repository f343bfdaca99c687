package services

import (
	"context"
	"testing"

	"github.com/lborres/bantay/core"
)

// Requirement: SignUp creates a user with one credential method and a
// session; SignIn authenticates with the same password.
func TestAuthService_SignUpAndSignIn(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})

	// Act
	signUp, err := env.auth.SignUp(ctx, core.SignUpInput{Email: "Ana@Example.com", Password: testPassword, Name: "Ana"}, "10.0.0.1", "firefox")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	signIn, err := env.auth.SignIn(ctx, core.SignInInput{Email: "ana@example.com", Password: testPassword}, "10.0.0.2", "curl")

	// Assert
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signUp.User.Email != "ana@example.com" {
		t.Errorf("email should be normalized; got %q", signUp.User.Email)
	}
	if signUp.Token == "" || signIn.Token == "" || signUp.Token == signIn.Token {
		t.Errorf("each sign-in should issue its own token")
	}
	if signIn.User.ID != signUp.User.ID || signIn.Session.IPAddress != "10.0.0.2" {
		t.Errorf("SignIn should open a session for the registered user; got %+v", signIn.Session)
	}
	if accounts := env.accounts(t, signUp.User.ID); len(accounts) != 1 || accounts[0].ProviderID != core.ProviderCredential {
		t.Errorf("user should hold exactly one credential method")
	}
}

// Requirement: SignUp enforces unique emails and the password policy.
func TestAuthService_SignUpRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})
	env.signUp(t, "ana@example.com")

	tests := []struct {
		name  string
		input core.SignUpInput
		want  error
	}{
		{"duplicate email", core.SignUpInput{Email: "ANA@example.com", Password: testPassword, Name: "Ana"}, core.ErrUserExists},
		{"missing email", core.SignUpInput{Password: testPassword, Name: "Ana"}, core.ErrEmailRequired},
		{"bad email", core.SignUpInput{Email: "not-an-email", Password: testPassword, Name: "Ana"}, core.ErrInvalidEmail},
		{"missing name", core.SignUpInput{Email: "bob@example.com", Password: testPassword}, core.ErrValidation},
		{"short password", core.SignUpInput{Email: "bob@example.com", Password: "Ab1", Name: "Bob"}, core.ErrPasswordTooShort},
		{"weak password", core.SignUpInput{Email: "bob@example.com", Password: "alllowercase1", Name: "Bob"}, core.ErrPasswordTooWeak},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := env.auth.SignUp(ctx, test.input, "", "")
			wantErr(t, err, test.want)
		})
	}
}

// Requirement: SignIn reports unknown emails and wrong passwords the same way.
func TestAuthService_SignInRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})
	env.signUp(t, "ana@example.com")
	env.socialUser(t, "sam@example.com", core.ProviderGoogle, "g-1")

	tests := []struct {
		name  string
		input core.SignInInput
		want  error
	}{
		{"wrong password", core.SignInInput{Email: "ana@example.com", Password: "Wrong1234"}, core.ErrInvalidCredentials},
		{"unknown email", core.SignInInput{Email: "nobody@example.com", Password: testPassword}, core.ErrInvalidCredentials},
		{"no credential method", core.SignInInput{Email: "sam@example.com", Password: testPassword}, core.ErrInvalidCredentials},
		{"missing password", core.SignInInput{Email: "ana@example.com"}, core.ErrValidation},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := env.auth.SignIn(ctx, test.input, "", "")
			wantErr(t, err, test.want)
		})
	}
}

// Requirement: With verification required, sign-up issues no session and
// sign-in is refused until the emailed link is confirmed.
func TestAuthService_RequireVerification(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{RequireVerification: true})

	// Act
	res, err := env.auth.SignUp(ctx, core.SignUpInput{Email: "ana@example.com", Password: testPassword, Name: "Ana"}, "", "")

	// Assert
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if res.Token != "" || res.Session != nil {
		t.Errorf("no session should be issued before verification")
	}
	if msg := env.mailer.last(t); msg.To != "ana@example.com" {
		t.Errorf("verification link should be sent to the new user; got %q", msg.To)
	}

	input := core.SignInInput{Email: "ana@example.com", Password: testPassword}
	_, err = env.auth.SignIn(ctx, input, "", "")
	wantErr(t, err, core.ErrEmailNotVerified)
	if env.mailer.count() != 2 {
		t.Errorf("a refused sign-in should resend the link; got %d emails", env.mailer.count())
	}

	// only the most recent link is usable
	confirmed, err := env.confirm.Confirm(ctx, tokenFrom(t, env.mailer.last(t)), core.ConfirmInput{})
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !confirmed.User.EmailVerified {
		t.Errorf("email should be verified after confirmation")
	}
	if _, err := env.auth.SignIn(ctx, input, "", ""); err != nil {
		t.Errorf("SignIn after verification failed: %v", err)
	}
}

// Requirement: SignOut ends only the given session.
func TestAuthService_SignOutAndGetSession(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})
	user, token := env.signUp(t, "ana@example.com")
	other, _ := env.sessions.Create(ctx, user.ID, "", "")

	data, err := env.auth.GetSession(ctx, token)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if data.User.ID != user.ID || data.Session.UserID != user.ID {
		t.Errorf("GetSession should resolve to the signed-up user")
	}

	// Act
	err = env.auth.SignOut(ctx, token)

	// Assert
	if err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	_, err = env.auth.GetSession(ctx, token)
	wantErr(t, err, core.ErrInvalidToken)
	wantErr(t, env.auth.SignOut(ctx, token), core.ErrInvalidToken)
	wantErr(t, env.auth.SignOut(ctx, ""), core.ErrInvalidToken)
	if _, err := env.auth.GetSession(ctx, other.Token); err != nil {
		t.Errorf("other sessions should survive SignOut: %v", err)
	}
}

// Requirement: ChangePassword checks the current password, keeps the
// caller's session and revokes the rest.
func TestAuthService_ChangePassword(t *testing.T) {
	// Arrange
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})
	user, current := env.signUp(t, "ana@example.com")
	other, _ := env.sessions.Create(ctx, user.ID, "", "")

	// Act & Assert
	err := env.auth.ChangePassword(ctx, user.ID, current, core.ChangePasswordInput{CurrentPassword: "Wrong1234", NewPassword: "Changed123"})
	wantErr(t, err, core.ErrInvalidCredentials)
	err = env.auth.ChangePassword(ctx, user.ID, current, core.ChangePasswordInput{CurrentPassword: testPassword, NewPassword: "weak"})
	wantErr(t, err, core.ErrPasswordTooShort)
	if _, err := env.sessions.Verify(ctx, other.Token); err != nil {
		t.Fatalf("failed changes should revoke nothing: %v", err)
	}

	err = env.auth.ChangePassword(ctx, user.ID, current, core.ChangePasswordInput{CurrentPassword: testPassword, NewPassword: "Changed123"})
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := env.sessions.Verify(ctx, current); err != nil {
		t.Errorf("current session should survive: %v", err)
	}
	_, err = env.sessions.Verify(ctx, other.Token)
	wantErr(t, err, core.ErrInvalidToken)

	_, err = env.auth.SignIn(ctx, core.SignInInput{Email: "ana@example.com", Password: testPassword}, "", "")
	wantErr(t, err, core.ErrInvalidCredentials)
	if _, err := env.auth.SignIn(ctx, core.SignInInput{Email: "ana@example.com", Password: "Changed123"}, "", ""); err != nil {
		t.Errorf("SignIn with the new password failed: %v", err)
	}

	social := env.socialUser(t, "sam@example.com", core.ProviderGithub, "gh-1")
	err = env.auth.ChangePassword(ctx, social.ID, "", core.ChangePasswordInput{CurrentPassword: testPassword, NewPassword: "Changed123"})
	wantErr(t, err, core.ErrMethodNotFound)
}

// Requirement: UpdateProfile changes only the fields that are set.
func TestAuthService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})
	user, _ := env.signUp(t, "ana@example.com")
	display := "ana_b"

	updated, err := env.auth.UpdateProfile(ctx, user.ID, core.UpdateProfileInput{DisplayName: &display})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.DisplayName != "ana_b" || updated.Name != "Test User" {
		t.Errorf("only the display name should change; got %+v", updated)
	}

	badImage := "not a url"
	_, err = env.auth.UpdateProfile(ctx, user.ID, core.UpdateProfileInput{Image: &badImage})
	wantErr(t, err, core.ErrValidation)
	_, err = env.auth.UpdateProfile(ctx, "missing", core.UpdateProfileInput{DisplayName: &display})
	wantErr(t, err, core.ErrUserNotFound)
}

// Requirement: Social sign-in registers unknown identities, reuses known
// ones, and links to an existing user only when the provider verified the email.
func TestAuthService_SignInWithProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.EmailConfig{})
	ana, _ := env.signUp(t, "ana@example.com")

	t.Run("registers a new user", func(t *testing.T) {
		res, err := env.auth.SignInWithProvider(ctx, core.ProviderProfile{
			ProviderID: core.ProviderGithub, AccountID: "gh-1", Email: "Sam@Example.com", EmailVerified: true, Name: "Sam",
		}, "", "")
		if err != nil {
			t.Fatalf("SignInWithProvider failed: %v", err)
		}
		if res.User.Email != "sam@example.com" || !res.User.EmailVerified || res.Token == "" {
			t.Errorf("unexpected result %+v", res.User)
		}

		again, err := env.auth.SignInWithProvider(ctx, core.ProviderProfile{ProviderID: core.ProviderGithub, AccountID: "gh-1"}, "", "")
		if err != nil {
			t.Fatalf("repeat sign-in failed: %v", err)
		}
		if again.User.ID != res.User.ID {
			t.Errorf("known identity should sign in the same user")
		}
	})

	t.Run("unverified email conflicts with an existing user", func(t *testing.T) {
		_, err := env.auth.SignInWithProvider(ctx, core.ProviderProfile{
			ProviderID: core.ProviderGoogle, AccountID: "g-1", Email: "ana@example.com",
		}, "", "")
		wantErr(t, err, core.ErrEmailInUse)
		if got := len(env.accounts(t, ana.ID)); got != 1 {
			t.Errorf("nothing should be linked; got %d accounts", got)
		}
	})

	t.Run("verified email links to the existing user", func(t *testing.T) {
		res, err := env.auth.SignInWithProvider(ctx, core.ProviderProfile{
			ProviderID: core.ProviderGoogle, AccountID: "g-1", Email: "ana@example.com", EmailVerified: true,
		}, "", "")
		if err != nil {
			t.Fatalf("SignInWithProvider failed: %v", err)
		}
		if res.User.ID != ana.ID || !res.User.EmailVerified {
			t.Errorf("google should link to ana and verify the email; got %+v", res.User)
		}
		methods, _ := env.methods.ListMethods(ctx, ana.ID)
		if len(methods.Methods) != 2 || !methods.CanRemoveCredential {
			t.Errorf("ana should hold credential and google; got %+v", methods)
		}
	})

	t.Run("rejects bad profiles", func(t *testing.T) {
		_, err := env.auth.SignInWithProvider(ctx, core.ProviderProfile{ProviderID: core.ProviderCredential, AccountID: "x"}, "", "")
		wantErr(t, err, core.ErrInvalidProvider)
		_, err = env.auth.SignInWithProvider(ctx, core.ProviderProfile{ProviderID: core.ProviderGithub}, "", "")
		wantErr(t, err, core.ErrValidation)
		_, err = env.auth.SignInWithProvider(ctx, core.ProviderProfile{ProviderID: core.ProviderGithub, AccountID: "gh-new"}, "", "")
		wantErr(t, err, core.ErrEmailRequired)
	})
}
