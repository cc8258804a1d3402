package auth

import (
	"encoding/base64"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// Header names. gRPC metadata keys are the lowercase forms.
const (
	HeaderAuthorization  = "Authorization"
	HeaderServiceAuth    = "x-auth-basic"
	HeaderConversationID = "INS-ConversationId"
)

const (
	bearerPrefix = "Bearer "
	basicPrefix  = "Basic "
)

// ExtractBearerToken returns the token of a "Bearer <token>" header value.
// The scheme is case-insensitive. Anything else yields "".
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// BasicAuthHeader encodes user and password as a "Basic" header value.
func BasicAuthHeader(user, password string) string {
	return basicPrefix + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// ParseBasicCredentials decodes a "Basic base64(user:password)" header
// value. Failures are [sserr.CodeServiceCredentialInvalid].
func ParseBasicCredentials(header string) (user, password string, err error) {
	if header == "" {
		return "", "", sserr.New(sserr.CodeServiceCredentialInvalid, "auth: service credential is missing")
	}
	if len(header) <= len(basicPrefix) || !strings.EqualFold(header[:len(basicPrefix)], basicPrefix) {
		return "", "", sserr.New(sserr.CodeServiceCredentialInvalid, "auth: service credential must use the Basic scheme")
	}
	decoded, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(basicPrefix):]))
	if decErr != nil {
		return "", "", sserr.Wrap(decErr, sserr.CodeServiceCredentialInvalid, "auth: service credential is not valid base64")
	}
	user, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", sserr.New(sserr.CodeServiceCredentialInvalid, "auth: service credential is malformed")
	}
	return user, password, nil
}

// PropagatingRoundTripper copies the conversation id from the request
// context onto outbound requests.
type PropagatingRoundTripper struct {
	wrapped http.RoundTripper
}

// NewPropagatingRoundTripper wraps transport, or http.DefaultTransport when
// nil.
func NewPropagatingRoundTripper(transport http.RoundTripper) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &PropagatingRoundTripper{wrapped: transport}
}

// RoundTrip implements http.RoundTripper.
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	id, ok := ConversationIDFromContext(r.Context())
	if !ok || r.Header.Get(HeaderConversationID) != "" {
		return t.wrapped.RoundTrip(r)
	}
	clone := r.Clone(r.Context())
	clone.Header.Set(HeaderConversationID, id)
	return t.wrapped.RoundTrip(clone)
}
