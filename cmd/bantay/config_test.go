package main

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(env.Options{Environment: map[string]string{
		"BANTAY_SECRET": "0123456789abcdef0123456789abcdef",
	}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/api/auth", cfg.BasePath)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, 24*time.Hour, cfg.SessionUpdateAge)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.False(t, cfg.Google.Enabled())
	assert.Equal(t, "http://localhost:8080/api/auth/oauth/google/callback", cfg.CallbackURL("google"))
}

func TestParseConfig_Overrides(t *testing.T) {
	cfg, err := parseConfig(env.Options{Environment: map[string]string{
		"BANTAY_SECRET":        "0123456789abcdef0123456789abcdef",
		"BANTAY_PUBLIC_URL":    "https://auth.example.com/",
		"SESSION_MAX_AGE":      "48h",
		"MAIL_PROVIDER":        "mailgun",
		"MAIL_MAILGUN_DOMAIN":  "mg.example.com",
		"GITHUB_CLIENT_ID":     "id",
		"GITHUB_CLIENT_SECRET": "secret",
	}})
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, "mailgun", cfg.Mail.Provider)
	assert.Equal(t, "mg.example.com", cfg.Mail.MailgunDomain)
	assert.True(t, cfg.GitHub.Enabled())
	assert.Equal(t, "https://auth.example.com/api/auth/oauth/github/callback", cfg.CallbackURL("github"))
}

func TestParseConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"update age above max age", map[string]string{
			"BANTAY_SECRET":      "0123456789abcdef0123456789abcdef",
			"SESSION_MAX_AGE":    "1h",
			"SESSION_UPDATE_AGE": "2h",
		}},
		{"bad duration", map[string]string{
			"BANTAY_SECRET":   "0123456789abcdef0123456789abcdef",
			"SESSION_MAX_AGE": "a week",
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := parseConfig(env.Options{Environment: test.env})
			assert.Error(t, err)
		})
	}
}
