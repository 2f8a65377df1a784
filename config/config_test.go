package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pilab-dev/ssobridge/config"
	"github.com/pilab-dev/ssobridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":5000", cfg.IdP.HTTPAddr)
	assert.Equal(t, ":5002", cfg.RP.HTTPAddr)
	assert.Equal(t, "http://localhost:5000", cfg.IdP.Issuer)
	assert.Equal(t, 10*time.Minute, cfg.IdP.RequestLifetime)
	assert.Equal(t, 5*time.Minute, cfg.IdP.CodeLifetime)
	assert.True(t, cfg.IdP.AllowLocalLogin)
	assert.Equal(t, "sso_session", cfg.Session.CookieName)
	assert.Equal(t, 8*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.RememberMeDuration)
	assert.Equal(t, config.KeyRingFile, cfg.KeyRing.Backend)
	assert.Equal(t, 48*time.Hour, cfg.KeyRing.RotationLead)
	assert.Equal(t, 90*24*time.Hour, cfg.KeyRing.Lifetime)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.RP.Scopes)
	assert.Equal(t, config.TraceExporterNone, cfg.Telemetry.TraceExporter)
	assert.Equal(t, "http://localhost:5000/external/callback", cfg.IdP.ExternalCallbackURL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SSOBRIDGE_IDP_ISSUER", "https://sso.example.com")
	t.Setenv("SSOBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("SSOBRIDGE_KEYRING_BACKEND", "redis")
	t.Setenv("SSOBRIDGE_SESSION_LIFETIME", "2h")
	t.Setenv("SSOBRIDGE_RP_CLIENT_ID", "webapp")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://sso.example.com", cfg.IdP.Issuer)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.KeyRingRedis, cfg.KeyRing.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, "webapp", cfg.RP.ClientID)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "ssobridge.yaml", `
idp:
  issuer: https://idp.example
  clients:
    - id: web
      secret: s3cret
      redirect_uris: [https://app.example/callback]
      allowed_scopes: [openid, profile]
      local_login_enabled: true
  providers:
    - name: corp
      display_name: Corp
      type: OIDC
      enabled: true
      auth_url: https://corp.example/auth
      token_url: https://corp.example/token
keyring:
  backend: memory
  rotation_lead: 24h
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.IdP.Clients, 1)
	assert.Equal(t, "web", cfg.IdP.Clients[0].ID)
	assert.Equal(t, []string{"https://app.example/callback"}, cfg.IdP.Clients[0].RedirectURIs)
	assert.True(t, cfg.IdP.Clients[0].LocalLoginEnabled)

	require.Len(t, cfg.IdP.Providers, 1)
	assert.Equal(t, domain.IdPTypeOIDC, cfg.IdP.Providers[0].Type)
	assert.True(t, cfg.IdP.Providers[0].IsEnabled)

	assert.Equal(t, config.KeyRingMemory, cfg.KeyRing.Backend)
	assert.Equal(t, 24*time.Hour, cfg.KeyRing.RotationLead)
	require.NoError(t, cfg.IdP.Validate())
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_ClientsFile(t *testing.T) {
	clients := writeFile(t, "clients.yaml", `
clients:
  - id: native
    redirect_uris: ["com.example.app:/callback"]
    allowed_scopes: [openid]
    is_native_client: true
    require_pkce: true
`)
	t.Setenv("SSOBRIDGE_IDP_CLIENTS_FILE", clients)

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Len(t, cfg.IdP.Clients, 1)
	assert.Equal(t, "native", cfg.IdP.Clients[0].ID)
	assert.True(t, cfg.IdP.Clients[0].IsNativeClient)
	assert.True(t, cfg.IdP.Clients[0].RequirePKCE)
}

func TestDecodeClients_RejectsUnknownFields(t *testing.T) {
	_, err := config.DecodeClients(strings.NewReader(`
clients:
  - id: web
    redirect_uri: https://app.example/callback
`))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestDecodeClients_Empty(t *testing.T) {
	clients, err := config.DecodeClients(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"SSOBRIDGE_KEYRING_BACKEND": "etcd"}},
		{"lead longer than lifetime", map[string]string{"SSOBRIDGE_KEYRING_ROTATION_LEAD": "3000h"}},
		{"empty application name", map[string]string{"SSOBRIDGE_KEYRING_APPLICATION_NAME": " "}},
		{"unknown exporter", map[string]string{"SSOBRIDGE_TELEMETRY_TRACE_EXPORTER": "jaeger"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load("")
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestIdPConfig_Validate(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	err = cfg.IdP.Validate()
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "client registration")

	cfg.IdP.Clients = []domain.ClientRegistration{{ID: "web"}}
	require.NoError(t, cfg.IdP.Validate())

	cfg.IdP.Issuer = "/relative"
	require.ErrorIs(t, cfg.IdP.Validate(), config.ErrInvalidConfig)
}

func TestRPConfig_Validate(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.ErrorIs(t, cfg.RP.Validate(), config.ErrInvalidConfig)

	cfg.RP.ClientID = "webapp"
	require.NoError(t, cfg.RP.Validate())
}
