package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	githubOAuth2 "golang.org/x/oauth2/github"
)

var (
	GithubUserInfoEndpoint   = "https://api.github.com/user"
	GithubUserEmailsEndpoint = "https://api.github.com/user/emails"
)

// GitHubProvider implements the OAuth2Provider interface for GitHub.
type GitHubProvider struct {
	*BaseProvider
}

// NewGitHubProvider creates a new GitHubProvider requesting read:user and
// user:email.
func NewGitHubProvider(idpConfig *domain.IdentityProvider) (*GitHubProvider, error) {
	cfg := idpConfig.Clone()
	if cfg.Name == "" {
		cfg.Name = "github"
	}
	cfg.Type = domain.IdPTypeGitHub

	for _, scope := range []string{"read:user", "user:email"} {
		if !slices.Contains(cfg.Scopes, scope) {
			cfg.Scopes = append(cfg.Scopes, scope)
		}
	}

	return &GitHubProvider{BaseProvider: NewBaseProvider(cfg)}, nil
}

// OAuth2Config uses GitHub's well-known endpoints.
func (g *GitHubProvider) OAuth2Config(redirectURL string) (*oauth2.Config, error) {
	if g.Config.ClientID == "" || g.Config.ClientSecret == "" {
		return nil, fmt.Errorf("%w: %s needs client_id and client_secret", ErrProviderMisconfigured, g.Config.Name)
	}

	return g.config(redirectURL, githubOAuth2.Endpoint), nil
}

func (g *GitHubProvider) AuthCodeURL(state, redirectURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	conf, err := g.OAuth2Config(redirectURL)
	if err != nil {
		return "", err
	}

	return conf.AuthCodeURL(state, opts...), nil
}

func (g *GitHubProvider) ExchangeCode(ctx context.Context, redirectURL, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	conf, err := g.OAuth2Config(redirectURL)
	if err != nil {
		return nil, err
	}

	return conf.Exchange(ctx, code, opts...)
}

// FetchUserInfo fetches the GitHub profile, then the primary verified email
// when the profile does not expose one.
func (g *GitHubProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	var user struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		Email     string      `json:"email"`
		AvatarURL string      `json:"avatar_url"`
	}
	raw, err := getJSON(ctx, client, GithubUserInfoEndpoint, &user)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}

	email := user.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if _, err := getJSON(ctx, client, GithubUserEmailsEndpoint, &emails); err != nil {
			log.Warn().Err(err).Str("login", user.Login).Msg("github: could not list user emails")
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &ExternalUserInfo{
		ProviderUserID: user.ID.String(),
		Email:          email,
		Name:           name,
		Username:       user.Login,
		PictureURL:     user.AvatarURL,
		RawData:        raw,
	}, nil
}

var _ OAuth2Provider = (*GitHubProvider)(nil)
