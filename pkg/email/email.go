// Package email renders the transactional messages sent by the confirmation
// and admin flows.
package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/lborres/bantay/core"
)

//go:embed templates/*.html
var templateFS embed.FS

type Template string

const (
	VerifyEmail               Template = "verify-email"
	ResetPassword             Template = "reset-password"
	ChangeEmailVerification   Template = "change-email-verification"
	DeleteAccountConfirmation Template = "delete-account-confirmation"
	OTPVerification           Template = "otp-verification"
	PasswordResetOTP          Template = "password-reset-otp"
	AdminPromotion            Template = "admin-promotion"
)

var templates = []Template{
	VerifyEmail, ResetPassword, ChangeEmailVerification, DeleteAccountConfirmation,
	OTPVerification, PasswordResetOTP, AdminPromotion,
}

var textBodies = map[Template]string{
	VerifyEmail:               "Hi {{.Name}},\n\nConfirm your email address:\n{{.URL}}\n\nThis link expires in {{.ExpiresIn}}.\n",
	ResetPassword:             "Hi {{.Name}},\n\nReset your password:\n{{.URL}}\n\nThis link expires in {{.ExpiresIn}}. All sessions will be signed out.\n",
	ChangeEmailVerification:   "Hi {{.Name}},\n\nConfirm the change of your email address to {{.NewEmail}}:\n{{.URL}}\n\nThis link expires in {{.ExpiresIn}}.\n",
	DeleteAccountConfirmation: "Hi {{.Name}},\n\nConfirm the permanent deletion of your {{.AppName}} account:\n{{.URL}}\n\nThis link expires in {{.ExpiresIn}}. Ignore this email to keep your account.\n",
	OTPVerification:           "Your verification code is {{.Code}}\n\nIt expires in {{.ExpiresIn}}.\n",
	PasswordResetOTP:          "Your password reset code is {{.Code}}\n\nIt expires in {{.ExpiresIn}}.\n",
	AdminPromotion:            "Hi {{.Name}},\n\nYour {{.AppName}} account now has administrator access:\n{{.URL}}\n",
}

// Data is the union of values the templates reference.
type Data struct {
	AppName  string
	Subject  string
	Name     string
	NewEmail string
	URL      string
	Code     string
	// Purpose picks the OTP wording: "sign-in" or "email-verification".
	Purpose   string
	ExpiresIn string
}

type button struct {
	URL   string
	Label string
}

// Renderer turns a template and its data into a core.Message.
type Renderer struct {
	appName string
	html    map[Template]*htmltemplate.Template
	text    map[Template]*texttemplate.Template
}

func NewRenderer(appName string) (*Renderer, error) {
	funcs := htmltemplate.FuncMap{
		"button": func(url, label string) button { return button{URL: url, Label: label} },
	}

	r := &Renderer{
		appName: appName,
		html:    make(map[Template]*htmltemplate.Template, len(templates)),
		text:    make(map[Template]*texttemplate.Template, len(templates)),
	}
	for _, name := range templates {
		h, err := htmltemplate.New(string(name)).Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+string(name)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t, err := texttemplate.New(string(name)).Parse(textBodies[name])
		if err != nil {
			return nil, fmt.Errorf("parse %s text: %w", name, err)
		}
		r.html[name] = h
		r.text[name] = t
	}
	return r, nil
}

// Render builds the message for to. AppName and Subject are filled in.
func (r *Renderer) Render(name Template, to string, data Data) (core.Message, error) {
	h, ok := r.html[name]
	if !ok {
		return core.Message{}, fmt.Errorf("unknown email template %q", name)
	}
	data.AppName = r.appName
	data.Subject = Subject(name, data.Purpose)

	var html, text bytes.Buffer
	if err := h.ExecuteTemplate(&html, "layout", data); err != nil {
		return core.Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	if err := r.text[name].Execute(&text, data); err != nil {
		return core.Message{}, fmt.Errorf("render %s text: %w", name, err)
	}

	return core.Message{To: to, Subject: data.Subject, HTML: html.String(), Text: text.String()}, nil
}

// Subject returns the subject line for a template.
func Subject(name Template, purpose string) string {
	switch name {
	case VerifyEmail:
		return "Verify your email address"
	case ResetPassword, PasswordResetOTP:
		return "Reset your password"
	case ChangeEmailVerification:
		return "Verify your new email address"
	case DeleteAccountConfirmation:
		return "Confirm account deletion"
	case OTPVerification:
		if purpose == "sign-in" {
			return "Sign in to your account"
		}
		return "Verify your email address"
	case AdminPromotion:
		return "You are now an administrator"
	}
	return string(name)
}

// FormatTTL renders a lifetime the way the messages phrase it ("24 hours", "5 minutes").
func FormatTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
	return plural(int(d.Round(time.Second)/time.Second), "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
