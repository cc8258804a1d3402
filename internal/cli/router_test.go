package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubValidator struct{}

func (stubValidator) Validate(_ context.Context, token string) (*auth.Identity, error) {
	if token != "good" {
		return nil, sserr.New(sserr.CodeCredentialsInvalid, "bad token")
	}
	return auth.NewIdentity(auth.IdentityFields{
		Subject:     fixtures.Subject,
		DisplayName: fixtures.DisplayName,
		Username:    fixtures.Username,
		Authorities: auth.MapRoles([]string{fixtures.Importer}),
	}), nil
}

// stubExpander grants perms to every identity, or fails with err.
type stubExpander struct {
	perms []string
	err   error
}

func (s stubExpander) Expand(_ context.Context, identity *auth.Identity, _ string) (*auth.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]auth.Authority, len(s.perms))
	for i, p := range s.perms {
		out[i] = auth.SimpleAuthority(p)
	}
	return identity.WithAuthorities(out), nil
}

type countingInvalidator struct {
	calls atomic.Int32
	err   error
}

func (c *countingInvalidator) InvalidateAll(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func newTestRouter(expander stubExpander, inv *countingInvalidator, checks ...healthCheck) http.Handler {
	return newRouter(routerDeps{
		validator:      stubValidator{},
		expander:       expander,
		invalidator:    inv,
		serviceUser:    fixtures.ServiceUser,
		servicePass:    fixtures.ServicePassword,
		exemptPrefixes: []string{"/admin/"},
		allowedOrigins: []string{"https://app.stricklysoft.test"},
		adminAuthority: "authcore.admin",
		checks:         checks,
	})
}

func request(method, path, token string, withServiceAuth bool) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(auth.HeaderAuthorization, "Bearer "+token)
	}
	if withServiceAuth {
		req.Header.Set(auth.HeaderServiceAuth, auth.BasicAuthHeader(fixtures.ServiceUser, fixtures.ServicePassword))
	}
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	t.Parallel()
	ok := healthCheck{name: "redis", check: func(context.Context) error { return nil }}
	down := healthCheck{name: "postgres", check: func(context.Context) error { return errors.New("connection refused") }}

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		rec := do(newTestRouter(stubExpander{}, &countingInvalidator{}, ok), request(http.MethodGet, "/health", "", false))
		require.Equal(t, http.StatusOK, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["redis"])
	})

	t.Run("dependency down", func(t *testing.T) {
		t.Parallel()
		rec := do(newTestRouter(stubExpander{}, &countingInvalidator{}, ok, down), request(http.MethodGet, "/health", "", false))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unavailable", body.Status)
		assert.Equal(t, "connection refused", body.Checks["postgres"])
	})
}

// ---------------------------------------------------------------------------
// /v1/whoami
// ---------------------------------------------------------------------------

func TestWhoami_ReturnsExpandedIdentity(t *testing.T) {
	t.Parallel()
	h := newTestRouter(stubExpander{perms: []string{"read", "write"}}, &countingInvalidator{})

	req := request(http.MethodGet, "/v1/whoami", "good", true)
	req.Header.Set(auth.HeaderConversationID, "conv-1")
	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "conv-1", rec.Header().Get(auth.HeaderConversationID))
	assert.Contains(t, rec.Body.String(), `"conversation_id":"conv-1"`)
	assert.Contains(t, rec.Body.String(), `"subject":"`+fixtures.Subject+`"`)
	assert.Contains(t, rec.Body.String(), `"authorities":[{"name":"read"},{"name":"write"}]`)
}

func TestWhoami_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		expander    stubExpander
		token       string
		serviceAuth bool
		status      int
		message     string
	}{
		{"missing service credential", stubExpander{perms: []string{"read"}}, "good", false, http.StatusBadRequest, auth.MessageBadServiceAuth},
		{"missing token", stubExpander{perms: []string{"read"}}, "", true, http.StatusUnauthorized, auth.MessageInvalidCredential},
		{"invalid token", stubExpander{perms: []string{"read"}}, "forged", true, http.StatusUnauthorized, auth.MessageInvalidCredential},
		{"no permissions", stubExpander{err: sserr.New(sserr.CodeNoPermissions, "none")}, "good", true, http.StatusUnauthorized, auth.MessagePermissionsEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestRouter(tt.expander, &countingInvalidator{})
			rec := do(h, request(http.MethodGet, "/v1/whoami", tt.token, tt.serviceAuth))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

// ---------------------------------------------------------------------------
// /admin/permissions/invalidate
// ---------------------------------------------------------------------------

func TestInvalidate(t *testing.T) {
	t.Parallel()

	t.Run("admin without service credential", func(t *testing.T) {
		t.Parallel()
		inv := &countingInvalidator{}
		h := newTestRouter(stubExpander{perms: []string{"authcore.admin"}}, inv)

		rec := do(h, request(http.MethodPost, "/admin/permissions/invalidate", "good", false))
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Equal(t, int32(1), inv.calls.Load())
	})

	t.Run("missing authority", func(t *testing.T) {
		t.Parallel()
		inv := &countingInvalidator{}
		h := newTestRouter(stubExpander{perms: []string{"read"}}, inv)

		rec := do(h, request(http.MethodPost, "/admin/permissions/invalidate", "good", false))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Zero(t, inv.calls.Load())
	})

	t.Run("store purge failure", func(t *testing.T) {
		t.Parallel()
		inv := &countingInvalidator{err: sserr.New(sserr.CodeInternalStore, "purge failed")}
		h := newTestRouter(stubExpander{perms: []string{"authcore.admin"}}, inv)

		rec := do(h, request(http.MethodPost, "/admin/permissions/invalidate", "good", false))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, int32(1), inv.calls.Load())
	})
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()
	h := newTestRouter(stubExpander{}, &countingInvalidator{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/whoami", nil)
	req.Header.Set("Origin", "https://app.stricklysoft.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := do(h, req)

	assert.Equal(t, "https://app.stricklysoft.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisabledWithoutOrigins(t *testing.T) {
	t.Parallel()
	h := newRouter(routerDeps{validator: stubValidator{}, expander: stubExpander{}, invalidator: &countingInvalidator{}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec := do(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

func TestTracing_RecordsServerSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newTestRouter(stubExpander{perms: []string{"read"}}, &countingInvalidator{})
	rec := do(h, request(http.MethodGet, "/v1/whoami", "forged", true))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/whoami", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.Int("http.response.status_code", http.StatusUnauthorized))
}
