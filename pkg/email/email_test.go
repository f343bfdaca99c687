package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderer_RendersEveryTemplate(t *testing.T) {
	r, err := NewRenderer("Bantay")
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	for _, name := range templates {
		name := name
		t.Run(string(name), func(t *testing.T) {
			msg, err := r.Render(name, "ana@example.com", Data{
				Name:      "Ana",
				NewEmail:  "new@example.com",
				URL:       "https://app.example.com/confirm?token=abc",
				Code:      "123456",
				Purpose:   "sign-in",
				ExpiresIn: "5 minutes",
			})
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if msg.To != "ana@example.com" || msg.Subject == "" {
				t.Errorf("Render() = %+v", msg)
			}
			if !strings.Contains(msg.HTML, "<html") || msg.Text == "" {
				t.Error("expected both html and text bodies")
			}
		})
	}
}

func TestRenderer_EscapesUserInput(t *testing.T) {
	r, _ := NewRenderer("Bantay")

	msg, err := r.Render(VerifyEmail, "x@example.com", Data{Name: "<script>alert(1)</script>", URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Error("name was not escaped in html body")
	}
}

func TestRenderer_OTPCodeAndSubject(t *testing.T) {
	r, _ := NewRenderer("Bantay")

	msg, _ := r.Render(OTPVerification, "x@example.com", Data{Code: "987654", Purpose: "email-verification", ExpiresIn: "5 minutes"})
	if !strings.Contains(msg.HTML, "987654") || !strings.Contains(msg.Text, "987654") {
		t.Error("code missing from message")
	}
	if msg.Subject != "Verify your email address" {
		t.Errorf("Subject = %q", msg.Subject)
	}

	if _, err := r.Render(Template("nope"), "x@example.com", Data{}); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestFormatTTL(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 24 * time.Hour, want: "24 hours"},
		{in: time.Hour, want: "1 hour"},
		{in: 5 * time.Minute, want: "5 minutes"},
		{in: 90 * time.Minute, want: "90 minutes"},
		{in: 30 * time.Second, want: "30 seconds"},
	}
	for _, test := range tests {
		if got := FormatTTL(test.in); got != test.want {
			t.Errorf("FormatTTL(%v) = %q, want %q", test.in, got, test.want)
		}
	}
}
