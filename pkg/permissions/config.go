package permissions

import (
	"net/url"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

const (
	// DefaultTimeout bounds one permissions-service request.
	DefaultTimeout = 5 * time.Second

	// DefaultRefreshInterval is how often the cache is invalidated.
	DefaultRefreshInterval = 5 * time.Minute
)

// Source kinds selectable by [Config.Source].
const (
	SourceHTTP = "http"
	SourceSQL  = "sql"
)

// Secret is a string that never prints its value.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the underlying secret.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config describes where permissions come from and how long they are
// cached.
//
//	PERMISSIONS_BASE_URL=https://perms.internal
//	PERMISSIONS_USER=authcore
//	PERMISSIONS_PASSWORD=...
//	PERMISSIONS_FORWARD_CREDENTIAL=true
type Config struct {
	// Source is "http" (the permissions service) or "sql" (a
	// role_permissions table reached through the Postgres client).
	Source string `env:"SOURCE" envDefault:"http" yaml:"source" json:"source"`

	BaseURL  string `env:"BASE_URL" yaml:"base_url" json:"base_url"`
	User     string `env:"USER" yaml:"user" json:"user"`
	Password Secret `env:"PASSWORD" yaml:"password" json:"-"`

	// ForwardCredential sends the caller's Authorization header along with
	// the service credential.
	ForwardCredential bool `env:"FORWARD_CREDENTIAL" envDefault:"false" yaml:"forward_credential" json:"forward_credential"`

	Timeout         time.Duration `env:"TIMEOUT" envDefault:"5s" yaml:"timeout" json:"timeout"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5m" yaml:"refresh_interval" json:"refresh_interval"`

	// AppName prefixes the cache refresh event name.
	AppName string `env:"APP_NAME" envDefault:"authcore" yaml:"app_name" json:"app_name"`
}

// Validate checks the settings for the selected source.
func (c *Config) Validate() error {
	switch c.Source {
	case "", SourceHTTP:
		if strings.TrimSpace(c.BaseURL) == "" {
			return sserr.New(sserr.CodeInternalConfiguration, "permissions: base URL is required")
		}
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return sserr.Newf(sserr.CodeInternalConfiguration,
				"permissions: base URL %q must be an absolute http(s) URL", c.BaseURL)
		}
	case SourceSQL:
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration, "permissions: unknown source %q", c.Source)
	}
	if c.Timeout < 0 || c.RefreshInterval < 0 {
		return sserr.New(sserr.CodeInternalConfiguration, "permissions: durations must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
}
