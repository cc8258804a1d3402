package auth

import (
	"fmt"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// ProvidersConfig lists the identity providers as three parallel lists.
// Entry i of each list describes provider i.
//
//	AUTH_JWKS_URLS=https://a/jwks,https://b/jwks
//	AUTH_ISSUERS=https://a,https://b
//	AUTH_AUDIENCES=svc-a,svc-b
type ProvidersConfig struct {
	JWKSURLs  []string `env:"JWKS_URLS" yaml:"jwks_urls" json:"jwks_urls"`
	Issuers   []string `env:"ISSUERS" yaml:"issuers" json:"issuers"`
	Audiences []string `env:"AUDIENCES" yaml:"audiences" json:"audiences"`

	MaxKeys      int           `env:"MAX_KEYS" envDefault:"5" yaml:"max_keys" json:"max_keys"`
	KeyTTL       time.Duration `env:"KEY_TTL" envDefault:"60m" yaml:"key_ttl" json:"key_ttl"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s" yaml:"fetch_timeout" json:"fetch_timeout"`
	ClockSkew    time.Duration `env:"CLOCK_SKEW" yaml:"clock_skew" json:"clock_skew"`
}

// ProviderConfig is one provider tuple.
type ProviderConfig struct {
	Name     string
	JWKSURL  string
	Issuer   string
	Audience string
}

// Validate fails fast with [sserr.CodeInternalConfiguration] when the lists
// differ in length, are empty, or hold malformed entries.
func (c *ProvidersConfig) Validate() error {
	n := len(c.JWKSURLs)
	if n == 0 {
		return sserr.New(sserr.CodeInternalConfiguration, "auth: at least one JWKS URL is required")
	}
	if len(c.Issuers) != n || len(c.Audiences) != n {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"auth: provider lists must have equal length, got %d JWKS URLs, %d issuers, %d audiences",
			n, len(c.Issuers), len(c.Audiences))
	}
	for i := range n {
		if err := validateEndpoint(c.JWKSURLs[i]); err != nil {
			return err
		}
		if strings.TrimSpace(c.Issuers[i]) == "" || strings.TrimSpace(c.Audiences[i]) == "" {
			return sserr.Newf(sserr.CodeInternalConfiguration,
				"auth: provider %d has an empty issuer or audience", i)
		}
	}
	if c.MaxKeys < 0 || c.KeyTTL < 0 || c.FetchTimeout < 0 || c.ClockSkew < 0 {
		return sserr.New(sserr.CodeInternalConfiguration, "auth: cache sizes and durations must not be negative")
	}
	return nil
}

// Providers zips the lists into tuples. Call Validate first.
func (c *ProvidersConfig) Providers() []ProviderConfig {
	out := make([]ProviderConfig, len(c.JWKSURLs))
	for i := range out {
		out[i] = ProviderConfig{
			Name:     fmt.Sprintf("%s#%d", c.Issuers[i], i),
			JWKSURL:  c.JWKSURLs[i],
			Issuer:   c.Issuers[i],
			Audience: c.Audiences[i],
		}
	}
	return out
}
