package domain

import "slices"

// IdPType defines the type of the external Identity Provider.
type IdPType string

const (
	IdPTypeOIDC   IdPType = "OIDC"
	IdPTypeGoogle IdPType = "GOOGLE"
	IdPTypeGitHub IdPType = "GITHUB"
)

// LocalIdentityProvider is the name of the built in username/password source.
const LocalIdentityProvider = "local"

// IdentityProvider holds the configuration for an external IdP.
type IdentityProvider struct {
	Name        string  `mapstructure:"name"         yaml:"name"`
	DisplayName string  `mapstructure:"display_name" yaml:"display_name"` // providers without one are not offered in the picker
	Type        IdPType `mapstructure:"type"         yaml:"type"`
	IsEnabled   bool    `mapstructure:"enabled"      yaml:"enabled"`

	ClientID     string   `mapstructure:"client_id"     yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	Scopes       []string `mapstructure:"scopes"        yaml:"scopes"`

	// Endpoints for generic OIDC/OAuth2 providers. Google and GitHub use
	// their well-known endpoints.
	AuthURL     string `mapstructure:"auth_url"     yaml:"auth_url"`
	TokenURL    string `mapstructure:"token_url"    yaml:"token_url"`
	UserInfoURL string `mapstructure:"userinfo_url" yaml:"userinfo_url"`
}

// Clone returns a deep copy.
func (p *IdentityProvider) Clone() *IdentityProvider {
	cp := *p
	cp.Scopes = slices.Clone(p.Scopes)

	return &cp
}
