package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/lborres/bantay/core"
)

// Ensure GitHub implements core.OAuthProvider
var _ core.OAuthProvider = (*GitHub)(nil)

const githubAPI = "https://api.github.com"

// GitHub signs in with a GitHub OAuth app and reads the identity from the REST API.
type GitHub struct {
	config Config
	oauth  *oauth2.Config
	api    string
}

func NewGitHub(config Config) (*GitHub, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return newGitHub(config, github.Endpoint, githubAPI), nil
}

func newGitHub(config Config, endpoint oauth2.Endpoint, api string) *GitHub {
	return &GitHub{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		api: api,
	}
}

func (p *GitHub) ID() string { return core.ProviderGithub }

func (p *GitHub) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHub) Exchange(ctx context.Context, code string) (*core.ProviderProfile, error) {
	if code == "" {
		return nil, core.ErrValidation.WithMessage("authorization code is required")
	}
	ctx = p.config.context(ctx)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, core.ErrInvalidCredentials.WithMessage("provider rejected the authorization code").Wrap(err)
	}
	client := p.oauth.Client(ctx, token)

	var user githubUser
	if err := p.get(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	var emails []githubEmail
	if err := p.get(ctx, client, "/user/emails", &emails); err != nil {
		return nil, err
	}

	// the primary address, or failing that the first verified one
	var email githubEmail
	for _, e := range emails {
		if e.Primary {
			email = e
			break
		}
		if e.Verified && email.Email == "" {
			email = e
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return profile(core.ProviderGithub, strconv.FormatInt(user.ID, 10), email.Email, email.Verified, name, user.AvatarURL, token), nil
}

func (p *GitHub) get(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.api+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github %s failed with status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	return nil
}
