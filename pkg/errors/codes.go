package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned and may be used for alerting and dashboards.
type Code string

const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required value is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a value has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside its accepted range.
	CodeValidationRange Code = "VAL_004"

	// CodeServiceCredentialInvalid indicates the service-to-service basic
	// credential header is missing, malformed or does not match.
	CodeServiceCredentialInvalid Code = "VAL_005"
)

const (
	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeCredentialsMissing indicates the request carried no bearer
	// credential, or carried one with an unrecognised scheme.
	CodeCredentialsMissing Code = "AUTH_002"

	// CodeCredentialsInvalid is the single externally visible outcome of a
	// token that could not be verified against any candidate key.
	CodeCredentialsInvalid Code = "AUTH_003"

	// CodeMissingKeyID indicates the token header has no key id.
	CodeMissingKeyID Code = "AUTH_004"

	// CodeUnknownKey indicates no configured provider could supply the key
	// named by the token header.
	CodeUnknownKey Code = "AUTH_005"

	// CodeMalformedIdentity indicates a verified token is missing a required
	// claim or carries one with the wrong shape.
	CodeMalformedIdentity Code = "AUTH_006"

	// CodeNoRoles indicates the authenticated identity carries no roles.
	CodeNoRoles Code = "AUTH_007"

	// CodeNoPermissions indicates the identity's roles expand to no
	// permissions.
	CodeNoPermissions Code = "AUTH_008"
)

const (
	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates the identity lacks an authority
	// required by the route.
	CodeAuthorizationDenied Code = "AUTHZ_002"
)

const (
	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeKeyNotFound indicates a single provider's key set has no key with
	// the requested id.
	CodeKeyNotFound Code = "NF_002"

	// CodeNoProviderForKey indicates a full provider scan found no provider
	// holding the requested key id.
	CodeNoProviderForKey Code = "NF_003"
)

const (
	// CodeConflict indicates an operation conflicts with the current state,
	// such as an invalid lifecycle transition.
	CodeConflict Code = "CONF_001"
)

const (
	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalStore indicates a cache store or database operation failed.
	CodeInternalStore Code = "INT_002"

	// CodeInternalConfiguration indicates invalid or inconsistent
	// configuration.
	CodeInternalConfiguration Code = "INT_003"
)

const (
	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a remote dependency (key
	// distribution endpoint, permissions service, store) is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"
)

const (
	// CodeTimeout indicates a general timeout.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutStore indicates a cache store or database call timed out.
	CodeTimeoutStore Code = "TIMEOUT_002"

	// CodeTimeoutDependency indicates a remote dependency call timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the code as a string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore, e.g. "AUTH".
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
