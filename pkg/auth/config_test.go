package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

func validProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		JWKSURLs:     []string{"https://a.example/jwks", "https://b.example/jwks"},
		Issuers:      []string{fixtures.IssuerA, fixtures.IssuerB},
		Audiences:    []string{fixtures.AudienceA, fixtures.AudienceB},
		MaxKeys:      5,
		KeyTTL:       time.Hour,
		FetchTimeout: time.Second,
	}
}

func TestProvidersConfig_Validate(t *testing.T) {
	t.Parallel()
	valid := validProvidersConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ProvidersConfig)
	}{
		{"no providers", func(c *ProvidersConfig) { *c = ProvidersConfig{} }},
		{"short issuers", func(c *ProvidersConfig) { c.Issuers = c.Issuers[:1] }},
		{"short audiences", func(c *ProvidersConfig) { c.Audiences = c.Audiences[:1] }},
		{"relative url", func(c *ProvidersConfig) { c.JWKSURLs[0] = "/jwks" }},
		{"blank issuer", func(c *ProvidersConfig) { c.Issuers[1] = " " }},
		{"blank audience", func(c *ProvidersConfig) { c.Audiences[0] = "" }},
		{"negative ttl", func(c *ProvidersConfig) { c.KeyTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validProvidersConfig()
			tt.mutate(&cfg)
			testutil.RequireErrorCode(t, cfg.Validate(), sserr.CodeInternalConfiguration)
		})
	}
}

func TestProvidersConfig_Providers(t *testing.T) {
	t.Parallel()
	cfg := validProvidersConfig()
	got := cfg.Providers()
	require.Len(t, got, 2)
	assert.Equal(t, ProviderConfig{
		Name:     fixtures.IssuerB + "#1",
		JWKSURL:  "https://b.example/jwks",
		Issuer:   fixtures.IssuerB,
		Audience: fixtures.AudienceB,
	}, got[1])
}
