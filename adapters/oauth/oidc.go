// Package oauth implements core.OAuthProvider for social sign-in.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/lborres/bantay/core"
)

// Ensure OIDC implements core.OAuthProvider
var _ core.OAuthProvider = (*OIDC)(nil)

const GoogleIssuer = "https://accounts.google.com"

// Config holds the client registration of one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client // optional
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	if c.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	if c.RedirectURL == "" {
		return errors.New("redirect URL is required")
	}
	return nil
}

func (c Config) context(ctx context.Context) context.Context {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// OIDC signs in through an OpenID Connect issuer and reads the identity
// from the verified ID token.
type OIDC struct {
	id       string
	config   Config
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// NewGoogle discovers Google's endpoints.
func NewGoogle(ctx context.Context, config Config) (*OIDC, error) {
	return NewOIDC(ctx, core.ProviderGoogle, GoogleIssuer, config)
}

// NewOIDC discovers issuer and registers the provider as id.
func NewOIDC(ctx context.Context, id, issuer string, config Config) (*OIDC, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	op, err := gooidc.NewProvider(config.context(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	verifier := op.Verifier(&gooidc.Config{ClientID: config.ClientID})
	return newOIDC(id, config, op.Endpoint(), verifier), nil
}

func newOIDC(id string, config Config, endpoint oauth2.Endpoint, verifier *gooidc.IDTokenVerifier) *OIDC {
	return &OIDC{
		id:     id,
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{gooidc.ScopeOpenID, "email", "profile"},
			Endpoint:     endpoint,
		},
		verifier: verifier,
	}
}

func (p *OIDC) ID() string { return p.id }

func (p *OIDC) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type idClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (p *OIDC) Exchange(ctx context.Context, code string) (*core.ProviderProfile, error) {
	if code == "" {
		return nil, core.ErrValidation.WithMessage("authorization code is required")
	}
	ctx = p.config.context(ctx)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, core.ErrInvalidCredentials.WithMessage("provider rejected the authorization code").Wrap(err)
	}
	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, errors.New("id_token missing from token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}
	return profile(p.id, claims.Subject, claims.Email, claims.EmailVerified, claims.Name, claims.Picture, token), nil
}

func profile(providerID, accountID, email string, verified bool, name, picture string, token *oauth2.Token) *core.ProviderProfile {
	p := &core.ProviderProfile{
		ProviderID:    providerID,
		AccountID:     accountID,
		Email:         email,
		EmailVerified: verified,
		Name:          name,
	}
	if picture != "" {
		p.Image = &picture
	}
	if token.AccessToken != "" {
		p.AccessToken = &token.AccessToken
	}
	if token.RefreshToken != "" {
		p.RefreshToken = &token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		p.ExpiresAt = &expiry
	}
	return p
}
