package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// DefaultServiceAuthExemptPrefix is the path prefix that does not require a
// service credential.
const DefaultServiceAuthExemptPrefix = "/admin/"

// ServiceCredentialOption configures [ServiceCredentialMiddleware].
type ServiceCredentialOption func(*serviceCredential)

type serviceCredential struct {
	user, password string
	exempt         []string
}

// WithExemptPrefixes replaces the exempt path prefixes.
func WithExemptPrefixes(prefixes ...string) ServiceCredentialOption {
	return func(s *serviceCredential) { s.exempt = prefixes }
}

// ServiceCredentialMiddleware requires the x-auth-basic header to carry
// the configured service credential on every path outside the exempt
// prefixes. Failures are answered with 400.
func ServiceCredentialMiddleware(user, password string, opts ...ServiceCredentialOption) func(http.Handler) http.Handler {
	cfg := &serviceCredential{
		user:     user,
		password: password,
		exempt:   []string{DefaultServiceAuthExemptPrefix},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if err := cfg.check(r.Header.Get(HeaderServiceAuth)); err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *serviceCredential) isExempt(path string) bool {
	for _, p := range s.exempt {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (s *serviceCredential) check(header string) error {
	user, password, err := ParseBasicCredentials(header)
	if err != nil {
		return err
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return sserr.New(sserr.CodeServiceCredentialInvalid, "auth: service credential does not match")
	}
	return nil
}
