package relyingparty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	serrors "github.com/pilab-dev/ssobridge/errors"
	"github.com/pilab-dev/ssobridge/internal/claims"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Exchanger is the authorization service as seen from the relying party.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE Exchanger
type Exchanger interface {
	// AuthCodeURL returns the authorize URL for one challenge.
	AuthCodeURL(ctx context.Context, state, nonce, verifier string, opts ...oauth2.AuthCodeOption) (string, error)
	// Exchange redeems code and returns the verified assertion.
	Exchange(ctx context.Context, code, verifier, nonce string) (claims.Set, error)
	// EndSessionURL returns the authorization service's logout URL, or "" when
	// it advertises none.
	EndSessionURL(ctx context.Context, postLogoutRedirectURI, state string) (string, error)
}

// OIDCConfig configures the client side of the code flow.
type OIDCConfig struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	FetchUserInfo bool
	// HTTPClient is used for discovery, the token request and userinfo.
	HTTPClient *http.Client
}

// OIDCClient talks to the authorization service with go-oidc. Discovery runs
// on first use and is retried on the next call when it fails.
type OIDCClient struct {
	cfg OIDCConfig

	mu       sync.Mutex
	provider *oidc.Provider
}

func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &OIDCClient{cfg: cfg}
}

func (c *OIDCClient) discover(ctx context.Context) (*oidc.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider, nil
	}

	p, err := oidc.NewProvider(c.clientContext(ctx), c.cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", c.cfg.Issuer, err)
	}
	c.provider = p
	log.Info().Str("issuer", c.cfg.Issuer).Msg("Discovered authorization service")

	return p, nil
}

func (c *OIDCClient) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.cfg.HTTPClient)
}

func (c *OIDCClient) oauth2Config(p *oidc.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  c.cfg.RedirectURL,
		Scopes:       c.cfg.Scopes,
	}
}

func (c *OIDCClient) AuthCodeURL(ctx context.Context, state, nonce, verifier string, opts ...oauth2.AuthCodeOption) (string, error) {
	p, err := c.discover(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", serrors.ErrRemoteIdentity, err)
	}

	opts = append(opts, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier))

	return c.oauth2Config(p).AuthCodeURL(state, opts...), nil
}

func (c *OIDCClient) Exchange(ctx context.Context, code, verifier, nonce string) (claims.Set, error) {
	p, err := c.discover(ctx)
	if err != nil {
		return nil, remote(err)
	}

	ctx = c.clientContext(ctx)
	token, err := c.oauth2Config(p).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, remote(fmt.Errorf("exchange code: %w", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing id_token in response", serrors.ErrRemoteIdentity)
	}

	idToken, err := p.Verifier(&oidc.Config{ClientID: c.cfg.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, remote(fmt.Errorf("verify id_token: %w", err))
	}
	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("%w: id_token nonce mismatch", serrors.ErrRemoteIdentity)
	}

	var payload map[string]any
	if err := idToken.Claims(&payload); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %w", serrors.ErrRemoteIdentity, err)
	}

	if c.cfg.FetchUserInfo {
		info, err := p.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, remote(fmt.Errorf("userinfo: %w", err))
		}
		if info.Subject != idToken.Subject {
			return nil, fmt.Errorf("%w: userinfo subject mismatch", serrors.ErrRemoteIdentity)
		}

		var extra map[string]any
		if err := info.Claims(&extra); err != nil {
			return nil, fmt.Errorf("%w: parse userinfo: %w", serrors.ErrRemoteIdentity, err)
		}
		for k, v := range extra {
			if _, exists := payload[k]; !exists {
				payload[k] = v
			}
		}
	}

	return claims.FromObject(payload), nil
}

func (c *OIDCClient) EndSessionURL(ctx context.Context, postLogoutRedirectURI, state string) (string, error) {
	p, err := c.discover(ctx)
	if err != nil {
		return "", remote(err)
	}

	var meta struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.Claims(&meta); err != nil || meta.EndSessionEndpoint == "" {
		return "", nil
	}

	u, err := url.Parse(meta.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: bad end_session_endpoint: %w", serrors.ErrRemoteIdentity, err)
	}
	q := u.Query()
	q.Set("client_id", c.cfg.ClientID)
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// remote classifies err as a remote identity failure, or as an exchange
// timeout when a deadline caused it.
func remote(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", serrors.ErrExchangeTimeout, err)
	}

	return fmt.Errorf("%w: %w", serrors.ErrRemoteIdentity, err)
}
