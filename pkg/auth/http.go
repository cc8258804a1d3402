package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// Public messages written at the transport boundary.
const (
	MessageRolesEmpty        = "Roles are empty"
	MessagePermissionsEmpty  = "Permissions are empty"
	MessageInvalidCredential = "Unable to validate credentials"
	MessageAccessDenied      = "Access denied"
	MessageBadServiceAuth    = "Invalid service credential"
)

// PublicMessage returns the status and short message a caller may see for
// err. Internal reasons are never included.
func PublicMessage(err error) (int, string) {
	switch {
	case sserr.HasCode(err, sserr.CodeNoRoles):
		return http.StatusUnauthorized, MessageRolesEmpty
	case sserr.HasCode(err, sserr.CodeNoPermissions):
		return http.StatusUnauthorized, MessagePermissionsEmpty
	case sserr.HasCode(err, sserr.CodeServiceCredentialInvalid):
		return http.StatusBadRequest, MessageBadServiceAuth
	case sserr.IsAuthorization(err):
		return http.StatusForbidden, MessageAccessDenied
	default:
		return http.StatusUnauthorized, MessageInvalidCredential
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError logs err with its internal code and writes the public status
// and message as JSON.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := PublicMessage(err)
	ctx := r.Context()

	attrs := []any{
		"code", sserr.GetCode(err).String(),
		"status", status,
		"path", r.URL.Path,
		"error", err,
	}
	if id, ok := ConversationIDFromContext(ctx); ok {
		attrs = append(attrs, "conversation_id", id)
	}
	slog.WarnContext(ctx, "auth: request rejected", attrs...)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: http.StatusText(status), Message: message})
}

// Middleware is the first pipeline stage. It validates the bearer token,
// then stores the identity and the raw credential in the request context.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(HeaderAuthorization)
			token := ExtractBearerToken(header)
			if token == "" {
				WriteError(w, r, sserr.New(sserr.CodeCredentialsMissing, "auth: missing or invalid authorization header"))
				return
			}

			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx = ContextWithCredential(ctx, header)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthority admits requests whose identity holds at least one of
// names. A missing identity is 401, a missing authority 403.
func RequireAuthority(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, r, sserr.New(sserr.CodeCredentialsMissing, "auth: no identity in request"))
				return
			}
			for _, n := range names {
				if identity.HasAuthority(n) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, r, sserr.Forbidden("auth: identity lacks required authority").
				WithDetail("required", names))
		})
	}
}
