package federation

import (
	"context"
	"fmt"
	"slices"

	"github.com/pilab-dev/ssobridge/domain"
	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"
)

var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider implements the OAuth2Provider interface for Google.
type GoogleProvider struct {
	*BaseProvider
}

// NewGoogleProvider creates a new GoogleProvider. The openid, profile and
// email scopes are always requested.
func NewGoogleProvider(idpConfig *domain.IdentityProvider) (*GoogleProvider, error) {
	cfg := idpConfig.Clone()
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	cfg.Type = domain.IdPTypeGoogle

	for _, scope := range []string{"openid", "profile", "email"} {
		if !slices.Contains(cfg.Scopes, scope) {
			cfg.Scopes = append(cfg.Scopes, scope)
		}
	}

	return &GoogleProvider{BaseProvider: NewBaseProvider(cfg)}, nil
}

// OAuth2Config uses Google's well-known endpoints.
func (g *GoogleProvider) OAuth2Config(redirectURL string) (*oauth2.Config, error) {
	if g.Config.ClientID == "" || g.Config.ClientSecret == "" {
		return nil, fmt.Errorf("%w: %s needs client_id and client_secret", ErrProviderMisconfigured, g.Config.Name)
	}

	return g.config(redirectURL, googleOAuth2.Endpoint), nil
}

func (g *GoogleProvider) AuthCodeURL(state, redirectURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	conf, err := g.OAuth2Config(redirectURL)
	if err != nil {
		return "", err
	}

	return conf.AuthCodeURL(state, opts...), nil
}

func (g *GoogleProvider) ExchangeCode(ctx context.Context, redirectURL, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	conf, err := g.OAuth2Config(redirectURL)
	if err != nil {
		return nil, err
	}

	return conf.Exchange(ctx, code, opts...)
}

// FetchUserInfo fetches user information from Google. Google has no
// username, so the email address doubles as one.
func (g *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	var info struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}

	raw, err := getJSON(ctx, oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), GoogleUserInfoEndpoint, &info)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	if !info.EmailVerified {
		return nil, fmt.Errorf("google: %w: email %q is not verified", ErrFetchUserInfoFailed, info.Email)
	}

	return &ExternalUserInfo{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		Name:           info.Name,
		Username:       info.Email,
		PictureURL:     info.Picture,
		RawData:        raw,
	}, nil
}

var _ OAuth2Provider = (*GoogleProvider)(nil)
