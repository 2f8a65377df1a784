package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pilab-dev/ssobridge/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SSOBRIDGE_IDP_ISSUER for idp.issuer.
const EnvPrefix = "SSOBRIDGE"

// Key ring backends.
const (
	KeyRingFile   = "file"
	KeyRingRedis  = "redis"
	KeyRingMongo  = "mongo"
	KeyRingMemory = "memory"
)

// Trace exporters.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the whole process configuration. It is read once at start up and
// treated as immutable afterwards.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	KeyRing   KeyRingConfig   `mapstructure:"keyring"`
	IdP       IdPConfig       `mapstructure:"idp"`
	RP        RPConfig        `mapstructure:"rp"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig holds the HTTP server settings shared by both services.
type ServerConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// HSTS adds Strict-Transport-Security to every response. Only enable it
	// behind TLS.
	HSTS bool `mapstructure:"hsts"`
}

type TelemetryConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	TraceExporter string `mapstructure:"trace_exporter"` // none or stdout
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// SessionConfig describes the session cookie. Both services must agree on the
// name and the key ring for a session to be accepted across them.
type SessionConfig struct {
	CookieName         string        `mapstructure:"cookie_name"`
	CookieDomain       string        `mapstructure:"cookie_domain"`
	Secure             bool          `mapstructure:"secure"`
	Lifetime           time.Duration `mapstructure:"lifetime"`
	RememberMeDuration time.Duration `mapstructure:"remember_me_duration"`
}

type KeyRingConfig struct {
	Backend         string        `mapstructure:"backend"`
	ApplicationName string        `mapstructure:"application_name"`
	Path            string        `mapstructure:"path"` // bbolt file, file backend only
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	Lifetime        time.Duration `mapstructure:"lifetime"`
	RotationLead    time.Duration `mapstructure:"rotation_lead"`
}

// IdPConfig configures the authorization service.
type IdPConfig struct {
	HTTPAddr            string        `mapstructure:"http_addr"`
	Issuer              string        `mapstructure:"issuer"`
	SigningKeyPath      string        `mapstructure:"signing_key_path"`
	RequestLifetime     time.Duration `mapstructure:"request_lifetime"`
	CodeLifetime        time.Duration `mapstructure:"code_lifetime"`
	AccessTokenLifetime time.Duration `mapstructure:"access_token_lifetime"`
	IDTokenLifetime     time.Duration `mapstructure:"id_token_lifetime"`
	AllowLocalLogin     bool          `mapstructure:"allow_local_login"`
	AllowRememberLogin  bool          `mapstructure:"allow_remember_login"`
	ExchangeTimeout     time.Duration `mapstructure:"exchange_timeout"`

	// ClientsFile, when set, replaces Clients with the registrations read
	// from that file.
	ClientsFile string                      `mapstructure:"clients_file"`
	Clients     []domain.ClientRegistration `mapstructure:"clients"`
	Providers   []domain.IdentityProvider   `mapstructure:"providers"`
}

// ExternalCallbackURL is the base upstream providers return to. The provider
// name is appended.
func (c *IdPConfig) ExternalCallbackURL() string {
	return strings.TrimSuffix(c.Issuer, "/") + "/external/callback"
}

// RPConfig configures the relying party.
type RPConfig struct {
	HTTPAddr              string        `mapstructure:"http_addr"`
	Authority             string        `mapstructure:"authority"`
	ClientID              string        `mapstructure:"client_id"`
	ClientSecret          string        `mapstructure:"client_secret"`
	RedirectURL           string        `mapstructure:"redirect_url"`
	Scopes                []string      `mapstructure:"scopes"`
	FetchUserInfo         bool          `mapstructure:"fetch_userinfo"`
	PostLogoutRedirectURI string        `mapstructure:"post_logout_redirect_uri"`
	ExchangeTimeout       time.Duration `mapstructure:"exchange_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.hsts", false)

	v.SetDefault("telemetry.service_name", "ssobridge")
	v.SetDefault("telemetry.trace_exporter", TraceExporterNone)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "ssobridge")

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("session.cookie_name", "sso_session")
	v.SetDefault("session.cookie_domain", "")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.lifetime", "8h")
	v.SetDefault("session.remember_me_duration", "720h")

	v.SetDefault("keyring.backend", KeyRingFile)
	v.SetDefault("keyring.application_name", "ssobridge")
	v.SetDefault("keyring.path", "./data/keyring.db")
	v.SetDefault("keyring.lock_timeout", "5s")
	v.SetDefault("keyring.redis_prefix", "ssobridge:keyring:")
	v.SetDefault("keyring.lifetime", "2160h") // 90 days
	v.SetDefault("keyring.rotation_lead", "48h")

	v.SetDefault("idp.http_addr", ":5000")
	v.SetDefault("idp.issuer", "http://localhost:5000")
	v.SetDefault("idp.signing_key_path", "./data/signing-key.pem")
	v.SetDefault("idp.request_lifetime", "10m")
	v.SetDefault("idp.code_lifetime", "5m")
	v.SetDefault("idp.access_token_lifetime", "1h")
	v.SetDefault("idp.id_token_lifetime", "1h")
	v.SetDefault("idp.allow_local_login", true)
	v.SetDefault("idp.allow_remember_login", true)
	v.SetDefault("idp.exchange_timeout", "10s")
	v.SetDefault("idp.clients_file", "")
	v.SetDefault("idp.clients", []domain.ClientRegistration{})
	v.SetDefault("idp.providers", []domain.IdentityProvider{})

	v.SetDefault("rp.http_addr", ":5002")
	v.SetDefault("rp.authority", "http://localhost:5000")
	v.SetDefault("rp.client_id", "")
	v.SetDefault("rp.client_secret", "")
	v.SetDefault("rp.redirect_url", "http://localhost:5002/callback")
	v.SetDefault("rp.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("rp.fetch_userinfo", true)
	v.SetDefault("rp.post_logout_redirect_uri", "http://localhost:5002/")
	v.SetDefault("rp.exchange_timeout", "10s")
}

// Load reads the configuration from path, or from config.yaml in the working
// directory or /etc/ssobridge/ when path is empty. A missing file is not an
// error; defaults and SSOBRIDGE_ environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ssobridge/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if cfg.IdP.ClientsFile != "" {
		clients, err := LoadClients(cfg.IdP.ClientsFile)
		if err != nil {
			return nil, err
		}
		cfg.IdP.Clients = clients
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	switch c.KeyRing.Backend {
	case KeyRingFile:
		if c.KeyRing.Path == "" {
			return invalid("keyring.path is required for the file backend")
		}
	case KeyRingRedis, KeyRingMongo, KeyRingMemory:
	default:
		return invalid("unknown keyring.backend %q", c.KeyRing.Backend)
	}

	if strings.TrimSpace(c.KeyRing.ApplicationName) == "" {
		return invalid("keyring.application_name is required")
	}
	if c.KeyRing.RotationLead < 0 || c.KeyRing.RotationLead >= c.KeyRing.Lifetime {
		return invalid("keyring.rotation_lead must be shorter than keyring.lifetime")
	}

	if c.Session.CookieName == "" {
		return invalid("session.cookie_name is required")
	}
	if c.Session.Lifetime <= 0 {
		return invalid("session.lifetime must be positive")
	}

	switch c.Telemetry.TraceExporter {
	case TraceExporterNone, TraceExporterStdout:
	default:
		return invalid("unknown telemetry.trace_exporter %q", c.Telemetry.TraceExporter)
	}

	return nil
}

// Validate checks what the authorization service needs to start.
func (c *IdPConfig) Validate() error {
	if err := absoluteURL("idp.issuer", c.Issuer); err != nil {
		return err
	}
	if c.SigningKeyPath == "" {
		return invalid("idp.signing_key_path is required")
	}
	if len(c.Clients) == 0 {
		return invalid("at least one client registration is required")
	}

	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"idp.request_lifetime", c.RequestLifetime},
		{"idp.code_lifetime", c.CodeLifetime},
		{"idp.access_token_lifetime", c.AccessTokenLifetime},
		{"idp.id_token_lifetime", c.IDTokenLifetime},
	} {
		if d.val <= 0 {
			return invalid("%s must be positive", d.key)
		}
	}

	return nil
}

// Validate checks what the relying party needs to start.
func (c *RPConfig) Validate() error {
	if err := absoluteURL("rp.authority", c.Authority); err != nil {
		return err
	}
	if err := absoluteURL("rp.redirect_url", c.RedirectURL); err != nil {
		return err
	}
	if c.ClientID == "" {
		return invalid("rp.client_id is required")
	}

	return nil
}

func absoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("%s must be an absolute URL, got %q", key, raw)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
