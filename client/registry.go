// Package client holds the registered relying parties of the authorization
// service. The registry is built once from configuration and never changes.
package client

import (
	"crypto/subtle"
	"fmt"
	"slices"

	"github.com/pilab-dev/ssobridge/domain"
	serrors "github.com/pilab-dev/ssobridge/errors"
)

// ScopeOpenID must be present in every authorization request.
const ScopeOpenID = "openid"

// Registry is an immutable set of client registrations keyed by client id.
// It is safe for concurrent use.
type Registry struct {
	clients map[string]*domain.ClientRegistration
}

// NewRegistry copies regs into a new registry. Duplicate or empty ids are
// rejected.
func NewRegistry(regs []domain.ClientRegistration) (*Registry, error) {
	r := &Registry{clients: make(map[string]*domain.ClientRegistration, len(regs))}

	for i := range regs {
		reg := regs[i]
		if reg.ID == "" {
			return nil, fmt.Errorf("client #%d: id is required", i)
		}
		if _, dup := r.clients[reg.ID]; dup {
			return nil, fmt.Errorf("client %q: registered twice", reg.ID)
		}
		if len(reg.RedirectURIs) == 0 {
			return nil, fmt.Errorf("client %q: at least one redirect uri is required", reg.ID)
		}
		r.clients[reg.ID] = reg.Clone()
	}

	return r, nil
}

// Get returns a copy of the registration for id, or ErrInvalidClient.
func (r *Registry) Get(id string) (*domain.ClientRegistration, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", serrors.ErrInvalidClient, id)
	}

	return c.Clone(), nil
}

// Len returns the number of registered clients.
func (r *Registry) Len() int { return len(r.clients) }

// IDs returns the registered client ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// ValidateRedirectURI checks if a redirect URI is registered for the client.
// Only exact matches are accepted.
func ValidateRedirectURI(c *domain.ClientRegistration, redirectURI string) error {
	if redirectURI == "" || !slices.Contains(c.RedirectURIs, redirectURI) {
		return fmt.Errorf("%w: %q", serrors.ErrInvalidRedirect, redirectURI)
	}

	return nil
}

// ValidatePostLogoutURI checks if a post logout redirect URI is registered
// for the client.
func ValidatePostLogoutURI(c *domain.ClientRegistration, uri string) error {
	if uri == "" || !slices.Contains(c.PostLogoutRedirectURIs, uri) {
		return fmt.Errorf("%w: %q", serrors.ErrInvalidRedirect, uri)
	}

	return nil
}

// ValidateScopes checks that openid is requested and that every scope is
// allowed for the client. A client without allowed scopes accepts none.
func ValidateScopes(c *domain.ClientRegistration, scopes []string) error {
	if !slices.Contains(scopes, ScopeOpenID) {
		return serrors.NewInvalidScope("the openid scope is required")
	}

	for _, s := range scopes {
		if !slices.Contains(c.AllowedScopes, s) {
			return serrors.NewInvalidScope(fmt.Sprintf("scope %q is not allowed for this client", s))
		}
	}

	return nil
}

// ValidateSecret compares secret with the registered one in constant time.
// Clients without a secret are public and match only an empty secret.
func ValidateSecret(c *domain.ClientRegistration, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}
