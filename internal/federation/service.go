package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Service handles the core logic for OAuth2 federation.
type Service struct {
	mu                 sync.RWMutex
	providerRegistry   map[string]OAuth2Provider
	defaultRedirectURL string // Base redirect URL for this SSO system
}

// NewService creates a federation Service from the configured providers.
// Disabled providers are skipped. defaultRedirectURL is the base callback
// URL, e.g. "https://sso.example.com/external/callback"; the provider name is
// appended.
func NewService(providers []domain.IdentityProvider, defaultRedirectURL string) (*Service, error) {
	s := &Service{
		providerRegistry:   make(map[string]OAuth2Provider),
		defaultRedirectURL: strings.TrimSuffix(defaultRedirectURL, "/"),
	}

	for i := range providers {
		cfg := &providers[i]
		if !cfg.IsEnabled {
			continue
		}

		p, err := newProvider(cfg)
		if err != nil {
			return nil, err
		}
		s.RegisterProvider(p)
	}

	return s, nil
}

// newProvider is the provider factory keyed on the configured type.
func newProvider(cfg *domain.IdentityProvider) (OAuth2Provider, error) {
	switch cfg.Type {
	case domain.IdPTypeGoogle:
		return NewGoogleProvider(cfg)
	case domain.IdPTypeGitHub:
		return NewGitHubProvider(cfg)
	case domain.IdPTypeOIDC, "":
		p := NewBaseProvider(cfg.Clone())
		if _, err := p.OAuth2Config(""); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider type %q for %s", ErrProviderMisconfigured, cfg.Type, cfg.Name)
	}
}

// RegisterProvider adds or replaces a provider.
func (s *Service) RegisterProvider(provider OAuth2Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providerRegistry[provider.Name()] = provider
	log.Debug().Str("provider", provider.Name()).Str("type", string(provider.Type())).Msg("Registered external provider")
}

// Names lists the registered providers in alphabetical order.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providerRegistry))
	for name := range s.providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// GetProvider retrieves a registered provider by its name.
func (s *Service) GetProvider(providerName string) (OAuth2Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	provider, ok := s.providerRegistry[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	return provider, nil
}

// GenerateAuthState generates a unique, unguessable string for the state parameter.
func (s *Service) GenerateAuthState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GetAuthorizationURL constructs the URL to redirect the visitor to for
// authentication with the external provider.
func (s *Service) GetAuthorizationURL(providerName, state string, authCodeOptions ...oauth2.AuthCodeOption) (string, error) {
	provider, err := s.GetProvider(providerName)
	if err != nil {
		return "", err
	}

	return provider.AuthCodeURL(state, s.GetRedirectURLForProvider(providerName), authCodeOptions...)
}

// HandleCallback processes the callback from the external provider. It
// compares queryState with the state stored before the redirect, exchanges
// the code and fetches the visitor's identity.
func (s *Service) HandleCallback(
	ctx context.Context,
	providerName string,
	queryState string,
	sessionState string,
	code string,
	authCodeOptions ...oauth2.AuthCodeOption,
) (*ExternalUserInfo, error) {
	if queryState == "" || queryState != sessionState {
		return nil, ErrInvalidAuthState
	}

	provider, err := s.GetProvider(providerName)
	if err != nil {
		return nil, err
	}

	token, err := provider.ExchangeCode(ctx, s.GetRedirectURLForProvider(providerName), code, authCodeOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeCodeFailed, err)
	}

	userInfo, err := provider.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUserInfoFailed, err)
	}

	return userInfo, nil
}

// GetRedirectURLForProvider constructs the specific redirect URL for a given
// provider, e.g. https://sso.example.com/external/callback/google.
func (s *Service) GetRedirectURLForProvider(providerName string) string {
	return fmt.Sprintf("%s/%s", s.defaultRedirectURL, url.PathEscape(providerName))
}
