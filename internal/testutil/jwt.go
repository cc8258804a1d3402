package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SigningKey is a private key with the kid and algorithm used to sign test
// tokens.
type SigningKey struct {
	KID     string
	Alg     string
	Private crypto.Signer
}

// Public returns the verification key.
func (k SigningKey) Public() crypto.PublicKey {
	return k.Private.Public()
}

// NewRSAKey generates a 2048-bit RS256 key.
func NewRSAKey(t testing.TB, kid string) SigningKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return SigningKey{KID: kid, Alg: "RS256", Private: key}
}

// NewECKey generates a P-256 ES256 key.
func NewECKey(t testing.TB, kid string) SigningKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate EC key")
	return SigningKey{KID: kid, Alg: "ES256", Private: key}
}

// JWK returns the public half of k as a JWKS entry.
func (k SigningKey) JWK() map[string]any {
	switch pub := k.Public().(type) {
	case *rsa.PublicKey:
		return map[string]any{
			"kty": "RSA",
			"kid": k.KID,
			"alg": k.Alg,
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		return map[string]any{
			"kty": "EC",
			"kid": k.KID,
			"alg": k.Alg,
			"use": "sig",
			"crv": pub.Curve.Params().Name,
			"x":   base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, size))),
			"y":   base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, size))),
		}
	default:
		return nil
	}
}

// JWKSDocument renders keys as a JWKS JSON document.
func JWKSDocument(t testing.TB, keys ...SigningKey) []byte {
	t.Helper()
	entries := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k.JWK())
	}
	b, err := json.Marshal(map[string]any{"keys": entries})
	require.NoError(t, err)
	return b
}

// JWKSServer serves a mutable key set and counts requests.
type JWKSServer struct {
	*httptest.Server

	mu     sync.RWMutex
	keys   []SigningKey
	status int
	delay  time.Duration
	hits   atomic.Int64
}

// NewJWKSServer starts a JWKS endpoint serving keys. It is closed when the
// test finishes.
func NewJWKSServer(t testing.TB, keys ...SigningKey) *JWKSServer {
	t.Helper()
	s := &JWKSServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.hits.Add(1)
		s.mu.RLock()
		keys, status, delay := s.keys, s.status, s.delay
		s.mu.RUnlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(JWKSDocument(t, keys...))
	}))
	t.Cleanup(s.Close)
	return s
}

// Hits returns the number of requests served.
func (s *JWKSServer) Hits() int64 {
	return s.hits.Load()
}

// SetKeys replaces the served key set.
func (s *JWKSServer) SetKeys(keys ...SigningKey) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// SetStatus makes the server answer with status and an empty body.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetDelay delays every response.
func (s *JWKSServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// SignToken signs claims with key, setting the kid header. An empty KID
// leaves the header out.
func SignToken(t testing.TB, key SigningKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.GetSigningMethod(key.Alg), claims)
	if key.KID != "" {
		tok.Header["kid"] = key.KID
	}
	signed, err := tok.SignedString(key.Private)
	require.NoError(t, err, "failed to sign token")
	return signed
}

// Claims returns a claim set that passes validation for issuer and
// audience, expiring in one hour, with the given roles.
func Claims(issuer, audience, subject string, roles ...string) jwt.MapClaims {
	rs := make([]any, len(roles))
	for i, r := range roles {
		rs[i] = r
	}
	return jwt.MapClaims{
		"iss":   issuer,
		"aud":   audience,
		"sub":   subject,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"roles": rs,
	}
}
