package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// maxTokenSize rejects oversized tokens before any parsing.
const maxTokenSize = 8192

// signingMethods are the asymmetric algorithms accepted for verification.
var signingMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}

// rejection is the diagnostic reason a candidate did not verify. It is
// logged and never returned to callers.
type rejection string

const (
	rejectSignature       rejection = "invalid_signature"
	rejectIssuer          rejection = "invalid_issuer"
	rejectAudience        rejection = "invalid_audience"
	rejectExpired         rejection = "expired"
	rejectMalformedExpiry rejection = "malformed_expiry"
	rejectMissingExpiry   rejection = "missing_expiry"
)

// TokenValidator turns a raw bearer token into an [Identity].
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// Validator verifies tokens against the candidates returned by a
// [Resolver]. It is safe for concurrent use.
type Validator struct {
	resolver Resolver
	mapper   *IdentityMapper
	parser   *jwt.Parser
	leeway   time.Duration
	now      func() time.Time

	tracer trace.Tracer
	logger *slog.Logger
}

var _ TokenValidator = (*Validator)(nil)

// ValidatorOption configures a [Validator].
type ValidatorOption func(*Validator)

// WithClockSkew extends every token's expiry by d.
func WithClockSkew(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithIdentityMapper replaces the default mapper.
func WithIdentityMapper(m *IdentityMapper) ValidatorOption {
	return func(v *Validator) {
		if m != nil {
			v.mapper = m
		}
	}
}

// NewValidator returns a validator resolving keys through resolver.
func NewValidator(resolver Resolver, opts ...ValidatorOption) (*Validator, error) {
	if resolver == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: validator requires a resolver")
	}
	v := &Validator{
		resolver: resolver,
		mapper:   NewIdentityMapper(),
		parser: jwt.NewParser(
			jwt.WithValidMethods(signingMethods),
			jwt.WithoutClaimsValidation(),
			jwt.WithJSONNumber(),
		),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate decodes token and maps its claims to an identity.
func (v *Validator) Validate(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.Decode(ctx, token)
	if err != nil {
		return nil, err
	}
	return v.mapper.Map(claims, token)
}

// Decode verifies token and returns its claims. Candidates are tried in
// resolution order and the first full match wins. Failures are:
//
//   - [sserr.CodeCredentialsMissing]: empty token
//   - [sserr.CodeCredentialsInvalid]: unparseable token or every candidate rejected
//   - [sserr.CodeMissingKeyID]: no kid header
//   - [sserr.CodeUnknownKey]: no provider serves the kid
func (v *Validator) Decode(ctx context.Context, token string) (Claims, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Validate")
	defer span.End()

	claims, err := v.decode(ctx, span, token)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return claims, nil
}

func (v *Validator) decode(ctx context.Context, span trace.Span, token string) (Claims, error) {
	if token == "" {
		return nil, sserr.New(sserr.CodeCredentialsMissing, "auth: no bearer credential")
	}
	if len(token) > maxTokenSize {
		return nil, sserr.New(sserr.CodeCredentialsInvalid, "auth: unable to validate credentials")
	}

	unverified, _, err := v.parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeCredentialsInvalid, "auth: unable to validate credentials")
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, sserr.New(sserr.CodeMissingKeyID, "auth: token has no key id")
	}
	span.SetAttributes(attribute.String("auth.kid", kid))

	candidates, err := v.resolver.Resolve(ctx, kid)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnknownKey, "auth: token key id cannot be resolved").
			WithDetail("kid", kid)
	}
	span.SetAttributes(attribute.Int("auth.candidates", len(candidates)))

	now := v.now()
	for _, cand := range candidates {
		claims, reason := v.verify(token, cand, now)
		if reason != "" {
			v.logger.WarnContext(ctx, "auth: token candidate rejected",
				"provider", cand.Provider,
				"kid", kid,
				"reason", string(reason),
			)
			continue
		}
		span.SetAttributes(attribute.String("auth.provider", cand.Provider))
		return Claims(claims), nil
	}
	return nil, sserr.New(sserr.CodeCredentialsInvalid, "auth: unable to validate credentials")
}

// verify checks the signature of token against cand, then its claims.
func (v *Validator) verify(token string, cand KeyAndClaims, now time.Time) (jwt.MapClaims, rejection) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return cand.PublicKey, nil
	})
	if err != nil {
		return nil, rejectSignature
	}
	if reason := checkClaims(claims, cand, now, v.leeway); reason != "" {
		return nil, reason
	}
	return claims, ""
}

// checkClaims validates iss, aud and exp. A token is live while
// now < exp + leeway.
func checkClaims(claims jwt.MapClaims, cand KeyAndClaims, now time.Time, leeway time.Duration) rejection {
	if iss, _ := claims["iss"].(string); iss != cand.Issuer {
		return rejectIssuer
	}
	if !audienceContains(claims["aud"], cand.Audience) {
		return rejectAudience
	}

	raw, ok := claims["exp"]
	if !ok || raw == nil {
		return rejectMissingExpiry
	}
	num, ok := raw.(json.Number)
	if !ok {
		return rejectMalformedExpiry
	}
	exp, err := num.Int64()
	if err != nil {
		return rejectMalformedExpiry
	}
	if !now.Before(time.Unix(exp, 0).Add(leeway)) {
		return rejectExpired
	}
	return ""
}

func audienceContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
