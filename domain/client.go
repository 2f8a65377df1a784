package domain

import "slices"

// ClientRegistration describes a relying party registered with the
// authorization service. Registrations are loaded once at start up and never
// change during a run.
type ClientRegistration struct {
	ID                     string   `mapstructure:"id"                        yaml:"id"`
	Secret                 string   `mapstructure:"secret"                    yaml:"secret"`
	Name                   string   `mapstructure:"name"                      yaml:"name"`
	RedirectURIs           []string `mapstructure:"redirect_uris"             yaml:"redirect_uris"`
	PostLogoutRedirectURIs []string `mapstructure:"post_logout_redirect_uris" yaml:"post_logout_redirect_uris"`
	AllowedScopes          []string `mapstructure:"allowed_scopes"            yaml:"allowed_scopes"`
	LocalLoginEnabled      bool     `mapstructure:"local_login_enabled"       yaml:"local_login_enabled"`
	// AllowedIdentityProviders restricts which external providers may serve
	// this client. Empty means no restriction.
	AllowedIdentityProviders []string `mapstructure:"allowed_identity_providers" yaml:"allowed_identity_providers"`
	IsNativeClient           bool     `mapstructure:"is_native_client"           yaml:"is_native_client"`
	RequirePKCE              bool     `mapstructure:"require_pkce"               yaml:"require_pkce"`
}

// AllowsIdentityProvider reports whether provider may serve this client.
func (c *ClientRegistration) AllowsIdentityProvider(provider string) bool {
	if len(c.AllowedIdentityProviders) == 0 {
		return true
	}

	return slices.Contains(c.AllowedIdentityProviders, provider)
}

// Clone returns a deep copy so callers cannot mutate the registry's copy.
func (c *ClientRegistration) Clone() *ClientRegistration {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.PostLogoutRedirectURIs = slices.Clone(c.PostLogoutRedirectURIs)
	cp.AllowedScopes = slices.Clone(c.AllowedScopes)
	cp.AllowedIdentityProviders = slices.Clone(c.AllowedIdentityProviders)

	return &cp
}
