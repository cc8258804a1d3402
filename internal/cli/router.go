package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/permissions"
)

const healthTimeout = 3 * time.Second

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

type routerDeps struct {
	validator   auth.TokenValidator
	expander    permissions.Expanding
	invalidator permissions.Invalidator

	serviceUser    string
	servicePass    string
	exemptPrefixes []string

	allowedOrigins []string
	adminAuthority string

	checks []healthCheck
	logger *slog.Logger
}

// newRouter mounts:
//
//	GET  /health                       no authentication
//	GET  /v1/whoami                    service credential, token, permissions
//	POST /admin/permissions/invalidate token, permissions, admin authority
func newRouter(d routerDeps) http.Handler {
	if d.logger == nil {
		d.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(tracing)
	if len(d.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{
				auth.HeaderAuthorization,
				auth.HeaderServiceAuth,
				auth.HeaderConversationID,
				"Content-Type",
			},
			ExposedHeaders: []string{auth.HeaderConversationID},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler(d.checks))

	r.Group(func(r chi.Router) {
		r.Use(auth.ConversationMiddleware)
		if d.serviceUser != "" {
			r.Use(auth.ServiceCredentialMiddleware(d.serviceUser, d.servicePass,
				auth.WithExemptPrefixes(d.exemptPrefixes...)))
		}
		r.Use(auth.Middleware(d.validator))
		r.Use(permissions.Middleware(d.expander))

		r.Get("/v1/whoami", whoamiHandler)
		r.With(auth.RequireAuthority(d.adminAuthority)).
			Post("/admin/permissions/invalidate", invalidateHandler(d.invalidator, d.logger))
	})
	return r
}

type whoamiResponse struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Identity       *auth.Identity `json:"identity"`
}

func whoamiHandler(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())
	id, _ := auth.ConversationIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, whoamiResponse{ConversationID: id, Identity: identity})
}

func invalidateHandler(inv permissions.Invalidator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := inv.InvalidateAll(r.Context()); err != nil {
			// The in-process cache is already cleared; only the shared store
			// may still hold entries.
			logger.ErrorContext(r.Context(), "cli: permission cache invalidation incomplete", "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"status": "partial"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
