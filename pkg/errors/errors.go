// Package errors defines the structured error type shared by every package in
// the auth core. Errors carry a stable machine-readable [Code], a short
// message, an optional cause and optional details.
//
// # Categories
//
// The code prefix selects the category and, through [Error.HTTPStatus], the
// transport status a boundary adapter would use by default:
//
//   - VAL: invalid input or configuration values (400)
//   - AUTH: the caller could not be authenticated (401)
//   - AUTHZ: the caller is authenticated but not allowed (403)
//   - NF: a key, provider or resource could not be found (404)
//   - CONF: the operation conflicts with current state (409)
//   - INT: unexpected internal failure or bad configuration (500)
//   - UNAVAIL: a remote dependency could not be reached (503)
//   - TIMEOUT: a remote dependency did not answer in time (504)
//
// UNAVAIL and TIMEOUT errors are retryable; see [IsRetryable].
//
// # Usage
//
//	err := errors.New(errors.CodeNoRoles, "Roles are empty")
//
//	if errors.HasCode(err, errors.CodeNoRoles) {
//	    // reject the request
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("request rejected", "code", e.Code, "message", e.Message)
//	}
//
// Callers normally import the package under the alias sserr to avoid a clash
// with the standard library errors package.
package errors
