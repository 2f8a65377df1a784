// Package federation talks to upstream identity providers on behalf of the
// authorization service. It only proves who the visitor is upstream; mapping
// that identity onto a local account happens in the login package.
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/pilab-dev/ssobridge/domain"
	"golang.org/x/oauth2"
)

// ExternalUserInfo holds standardized user information retrieved from an external provider.
type ExternalUserInfo struct {
	ProviderUserID string // Unique ID of the user within the external provider
	Email          string
	Name           string
	Username       string // Preferred username or login
	PictureURL     string
	RawData        map[string]any
}

// LocalUsername is the name a local account is looked up by. It falls back to
// the email address for providers without a username concept.
func (u *ExternalUserInfo) LocalUsername() string {
	if u.Username != "" {
		return u.Username
	}

	return u.Email
}

// OAuth2Provider is an upstream identity provider.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE OAuth2Provider
type OAuth2Provider interface {
	// Name returns the unique identifier for the provider (e.g., "google").
	Name() string

	Type() domain.IdPType

	// OAuth2Config returns the client configuration for redirectURL.
	OAuth2Config(redirectURL string) (*oauth2.Config, error)

	// AuthCodeURL generates the authorization URL the visitor is sent to.
	AuthCodeURL(state, redirectURL string, opts ...oauth2.AuthCodeOption) (string, error)

	// ExchangeCode exchanges an authorization code for an OAuth2 token.
	ExchangeCode(ctx context.Context, redirectURL, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)

	// FetchUserInfo returns the visitor's identity for token.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error)
}

// BaseProvider is a generic OAuth2/OIDC provider driven entirely by its
// configured endpoints. Google and GitHub embed it and override the parts
// that differ.
type BaseProvider struct {
	Config *domain.IdentityProvider
}

func NewBaseProvider(idpConfig *domain.IdentityProvider) *BaseProvider {
	return &BaseProvider{Config: idpConfig}
}

func (b *BaseProvider) Name() string {
	return b.Config.Name
}

func (b *BaseProvider) Type() domain.IdPType {
	return b.Config.Type
}

// OAuth2Config builds the client configuration from the configured endpoints.
func (b *BaseProvider) OAuth2Config(redirectURL string) (*oauth2.Config, error) {
	if b.Config.ClientID == "" || b.Config.AuthURL == "" || b.Config.TokenURL == "" {
		return nil, fmt.Errorf("%w: %s needs client_id, auth_url and token_url", ErrProviderMisconfigured, b.Config.Name)
	}

	return b.config(redirectURL, oauth2.Endpoint{AuthURL: b.Config.AuthURL, TokenURL: b.Config.TokenURL}), nil
}

func (b *BaseProvider) config(redirectURL string, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.Config.ClientID,
		ClientSecret: b.Config.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       slices.Clone(b.Config.Scopes),
		Endpoint:     endpoint,
	}
}

func (b *BaseProvider) AuthCodeURL(state, redirectURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	conf, err := b.OAuth2Config(redirectURL)
	if err != nil {
		return "", err
	}

	return conf.AuthCodeURL(state, opts...), nil
}

func (b *BaseProvider) ExchangeCode(ctx context.Context, redirectURL, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	conf, err := b.OAuth2Config(redirectURL)
	if err != nil {
		return nil, err
	}

	return conf.Exchange(ctx, code, opts...)
}

// FetchUserInfo reads the standard OIDC userinfo claims.
func (b *BaseProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	if b.Config.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: %s has no userinfo_url", ErrProviderMisconfigured, b.Config.Name)
	}

	var info struct {
		Sub               string `json:"sub"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Picture           string `json:"picture"`
	}
	raw, err := getJSON(ctx, oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), b.Config.UserInfoURL, &info)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Config.Name, err)
	}

	return &ExternalUserInfo{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		Name:           info.Name,
		Username:       info.PreferredUsername,
		PictureURL:     info.Picture,
		RawData:        raw,
	}, nil
}

// getJSON fetches endpoint and decodes the body into v. The decoded raw map
// is returned alongside for ExternalUserInfo.RawData.
func getJSON(ctx context.Context, client *http.Client, endpoint string, v any) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d, body: %s", endpoint, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw) // arrays have no raw map

	return raw, nil
}

var _ OAuth2Provider = (*BaseProvider)(nil)
