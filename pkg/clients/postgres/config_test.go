package postgres

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_Defaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, SSLModeRequire, cfg.SSLMode)
	assert.Equal(t, DefaultMaxConns, cfg.MaxConns)
}

func TestConfig_Validate_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"scheme", Config{URI: "mysql://localhost/db"}},
		{"port", Config{Port: -1}},
		{"sslmode", Config{SSLMode: "sometimes"}},
		{"root cert", Config{SSLRootCert: filepath.Join(os.TempDir(), "missing-ca.pem")}},
		{"conns", Config{MaxConns: 1, MinConns: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestConfig_ConnectionString(t *testing.T) {
	t.Parallel()
	cfg := Config{Host: "db", Port: 5433, Database: "perm", User: "svc", Password: "p@ss", SSLMode: SSLModeDisable}
	require.NoError(t, cfg.Validate())

	u, err := url.Parse(cfg.ConnectionString())
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5433", u.Host)
	assert.Equal(t, "/perm", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "10", u.Query().Get("connect_timeout"))

	uriCfg := Config{URI: "postgres://a@b/c"}
	assert.Equal(t, "postgres://a@b/c", uriCfg.ConnectionString())
}

func TestConfig_TLSConfig_NoRootCert(t *testing.T) {
	t.Parallel()
	cfg := Config{SSLMode: SSLModeVerifyFull}
	tlsCfg, err := cfg.tlsConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestSecret_Redacted(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[REDACTED]", Secret("x").String())
	assert.Equal(t, "x", Secret("x").Value())
}
