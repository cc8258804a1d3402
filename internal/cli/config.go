package cli

import (
	"time"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/permissions"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/telemetry"
)

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Addr              string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// AllowedOrigins enables CORS for the listed origins. Empty disables it.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins" json:"cors_allowed_origins"`

	// AdminAuthority is the permission required by the /admin/ routes.
	AdminAuthority string `env:"ADMIN_AUTHORITY" envDefault:"authcore.admin" yaml:"admin_authority" json:"admin_authority"`
}

// ServiceAuthConfig is the shared credential callers present in
// x-auth-basic. An empty user disables the check.
type ServiceAuthConfig struct {
	User           string             `env:"USER" yaml:"user" json:"user"`
	Password       permissions.Secret `env:"PASSWORD" yaml:"password" json:"-"`
	ExemptPrefixes []string           `env:"EXEMPT_PREFIXES" envDefault:"/admin/" yaml:"exempt_prefixes" json:"exempt_prefixes"`
}

// ServiceConfig is everything `authcore serve` reads.
//
//	SERVER_ADDR=:8080
//	AUTH_JWKS_URLS=...        AUTH_ISSUERS=...        AUTH_AUDIENCES=...
//	PERMISSIONS_BASE_URL=...  PERMISSIONS_REFRESH_INTERVAL=5m
//	REDIS_URI=redis://cache:6379/0
//	POSTGRES_URI=postgres://...
//	TELEMETRY_ENABLED=true    TELEMETRY_OTLP_ENDPOINT=collector:4317
type ServiceConfig struct {
	Server      ServerConfig         `env:"SERVER" yaml:"server" json:"server"`
	Auth        auth.ProvidersConfig `env:"AUTH" yaml:"auth" json:"auth"`
	ServiceAuth ServiceAuthConfig    `env:"SERVICE_AUTH" yaml:"service_auth" json:"service_auth"`
	Permissions permissions.Config   `env:"PERMISSIONS" yaml:"permissions" json:"permissions"`
	Redis       redis.Config         `env:"REDIS" yaml:"redis" json:"redis"`
	Postgres    postgres.Config      `env:"POSTGRES" yaml:"postgres" json:"postgres"`
	Telemetry   telemetry.Config     `env:"TELEMETRY" yaml:"telemetry" json:"telemetry"`
}

// Validate checks every section. Optional stores are only validated when
// configured.
func (c *ServiceConfig) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Permissions.Validate(); err != nil {
		return err
	}
	if c.Permissions.Source == permissions.SourceSQL && !c.Postgres.Enabled() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: the sql permissions source requires POSTGRES_URI or POSTGRES_HOST")
	}
	if c.ServiceAuth.User != "" && c.ServiceAuth.Password.Value() == "" {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: service auth password is required when a user is set")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return sserr.New(sserr.CodeInternalConfiguration, "config: server shutdown timeout must be positive")
	}
	return c.Telemetry.Validate()
}

// validateConfig is the subset read by `authcore validate`.
type validateConfig struct {
	Auth auth.ProvidersConfig `env:"AUTH" yaml:"auth" json:"auth"`
}

func (c *validateConfig) Validate() error {
	return c.Auth.Validate()
}
