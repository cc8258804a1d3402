package permissions

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// PermissionLookup resolves a role to its permissions. *Cache implements it.
type PermissionLookup interface {
	Lookup(ctx context.Context, role, credential string) ([]string, error)
}

// Expander replaces an identity's roles with the permissions they grant.
type Expander struct {
	lookup PermissionLookup
	tracer trace.Tracer
	logger *slog.Logger
}

// ExpanderOption configures an [Expander].
type ExpanderOption func(*Expander)

// WithExpanderLogger sets the logger.
func WithExpanderLogger(logger *slog.Logger) ExpanderOption {
	return func(e *Expander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExpander returns an expander resolving roles through lookup.
func NewExpander(lookup PermissionLookup, opts ...ExpanderOption) (*Expander, error) {
	if lookup == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "permissions: expander requires a lookup")
	}
	e := &Expander{lookup: lookup, tracer: otel.Tracer(tracerName), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Expand returns a new identity whose authorities are exactly the
// de-duplicated permissions of its roles, in first-seen order. identity is
// not modified. Failures are [sserr.CodeNoRoles], [sserr.CodeNoPermissions]
// or the lookup's error.
func (e *Expander) Expand(ctx context.Context, identity *auth.Identity, credential string) (*auth.Identity, error) {
	ctx, span := e.tracer.Start(ctx, "permissions.Expand")
	defer span.End()

	roles := identity.RoleNames()
	span.SetAttributes(attribute.Int("permissions.roles", len(roles)))
	if len(roles) == 0 {
		err := sserr.New(sserr.CodeNoRoles, "permissions: identity has no roles")
		finishSpan(span, err)
		return nil, err
	}

	seen := make(map[string]struct{})
	var perms []string
	for _, role := range roles {
		granted, err := e.lookup.Lookup(ctx, role, credential)
		if err != nil {
			finishSpan(span, err)
			return nil, err
		}
		for _, p := range granted {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		err := sserr.New(sserr.CodeNoPermissions, "permissions: roles grant no permissions").
			WithDetail("roles", roles)
		finishSpan(span, err)
		return nil, err
	}

	authorities := make([]auth.Authority, len(perms))
	for i, p := range perms {
		authorities[i] = auth.SimpleAuthority(p)
	}
	span.SetAttributes(attribute.Int("permissions.granted", len(perms)))
	span.SetStatus(codes.Ok, "")

	e.logger.DebugContext(ctx, "permissions: identity expanded",
		"subject", identity.Subject(),
		"roles", len(roles),
		"permissions", len(perms),
	)
	return identity.WithAuthorities(authorities), nil
}
