package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// Code
// ===========================================================================

func TestCode_Category(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want string
	}{
		{CodeValidation, "VAL"},
		{CodeServiceCredentialInvalid, "VAL"},
		{CodeCredentialsInvalid, "AUTH"},
		{CodeNoPermissions, "AUTH"},
		{CodeAuthorizationDenied, "AUTHZ"},
		{CodeNoProviderForKey, "NF"},
		{CodeInternalConfiguration, "INT"},
		{CodeUnavailableDependency, "UNAVAIL"},
		{CodeTimeoutDependency, "TIMEOUT"},
		{Code("NOUNDERSCORE"), "NOUNDERSCORE"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

// ===========================================================================
// Error
// ===========================================================================

func TestError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AUTH_007: Roles are empty", New(CodeNoRoles, "Roles are empty").Error())

	wrapped := Wrap(errors.New("connection refused"), CodeUnavailableDependency, "permissions: request failed")
	assert.Equal(t, "UNAVAIL_002: permissions: request failed: connection refused", wrapped.Error())
}

func TestError_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidationFormat, http.StatusBadRequest},
		{CodeCredentialsMissing, http.StatusUnauthorized},
		{CodeAuthorizationDenied, http.StatusForbidden},
		{CodeKeyNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
		{CodeUnavailableDependency, http.StatusServiceUnavailable},
		{CodeTimeoutDependency, http.StatusGatewayTimeout},
		{Code("WEIRD_001"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus())
		})
	}
}

func TestError_Unwrap_SupportsErrorsIs(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("sentinel")
	err := Wrap(sentinel, CodeInternal, "outer")
	assert.ErrorIs(t, err, sentinel)
}

func TestError_WithDetail_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()
	orig := New(CodeMalformedIdentity, "auth: required claim missing").WithDetail("claim", "sub")
	next := orig.WithDetail("reason", "missing")

	assert.Len(t, orig.Details, 1)
	assert.Equal(t, map[string]any{"claim": "sub", "reason": "missing"}, next.Details)
	assert.Equal(t, orig.Code, next.Code)
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := Wrap(errors.New("boom"), CodeInternal, "failed").WithDetail("k", "v")

	assert.Equal(t, "INT_001: failed: boom", fmt.Sprintf("%v", err))
	assert.Equal(t, "INT_001: failed: boom", fmt.Sprintf("%s", err))
	assert.Equal(t, `"INT_001: failed: boom"`, fmt.Sprintf("%q", err))

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, `Code: "INT_001"`)
	assert.Contains(t, detailed, "Details: map[k:v]")
	assert.Contains(t, detailed, "Cause: boom")
}

// ===========================================================================
// Constructors
// ===========================================================================

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrap(nil, CodeInternal, "x"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "x %d", 1))
}

func TestConstructors_Codes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CodeValidation, Validation("v").Code)
	assert.Equal(t, "field 3", Validationf("field %d", 3).Message)
	assert.Equal(t, CodeAuthentication, Unauthorized("u").Code)
	assert.Equal(t, CodeAuthorizationDenied, Forbidden("f").Code)
	assert.Equal(t, CodeInternal, Internal("i").Code)
	assert.Equal(t, CodeUnavailableDependency, Unavailable("u").Code)
	assert.Equal(t, "key kid-1", Newf(CodeKeyNotFound, "key %s", "kid-1").Message)
}

func TestFromError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromError(nil))

	own := New(CodeNoRoles, "Roles are empty")
	assert.Same(t, own, FromError(fmt.Errorf("context: %w", own)))

	foreign := FromError(errors.New("plain"))
	require.NotNil(t, foreign)
	assert.Equal(t, CodeInternal, foreign.Code)
}

// ===========================================================================
// Checks
// ===========================================================================

func TestChecks_Categories(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidation(New(CodeServiceCredentialInvalid, "x")))
	assert.True(t, IsAuthentication(New(CodeCredentialsInvalid, "x")))
	assert.True(t, IsAuthorization(New(CodeAuthorizationDenied, "x")))
	assert.True(t, IsNotFound(New(CodeKeyNotFound, "x")))
	assert.True(t, IsConflict(New(CodeConflict, "x")))
	assert.True(t, IsInternal(New(CodeInternalConfiguration, "x")))
	assert.True(t, IsUnavailable(New(CodeUnavailableDependency, "x")))
	assert.True(t, IsTimeout(New(CodeTimeoutDependency, "x")))

	assert.False(t, IsAuthentication(errors.New("plain")))
	assert.False(t, IsAuthentication(nil))
}

func TestGetCode_ThroughFmtWrap(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("handler: %w", New(CodeNoPermissions, "Permissions are empty"))
	assert.Equal(t, CodeNoPermissions, GetCode(err))
	assert.True(t, HasCode(err, CodeNoPermissions))
	assert.Equal(t, Code(""), GetCode(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", New(CodeUnavailableDependency, "x"), true},
		{"timeout", New(CodeTimeoutDependency, "x"), true},
		{"credentials invalid", New(CodeCredentialsInvalid, "x"), false},
		{"internal", New(CodeInternal, "x"), false},
		{"foreign", errors.New("x"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
