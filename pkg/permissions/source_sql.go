package permissions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

const selectPermissions = `SELECT permission FROM role_permissions WHERE role = $1 ORDER BY permission`

// Querier runs a query. *postgres.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SQLSource reads permissions from a role_permissions(role, permission)
// table. The caller credential is not used.
type SQLSource struct {
	db     Querier
	tracer trace.Tracer
}

var _ Source = (*SQLSource)(nil)

// NewSQLSource returns a source querying db.
func NewSQLSource(db Querier) (*SQLSource, error) {
	if db == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "permissions: SQL source requires a database")
	}
	return &SQLSource{db: db, tracer: otel.Tracer(tracerName)}, nil
}

// Permissions implements [Source]. A role without rows yields an empty
// list.
func (s *SQLSource) Permissions(ctx context.Context, role, _ string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "permissions.SQLSource.Permissions",
		trace.WithAttributes(attribute.String("permissions.role", role)),
	)
	defer span.End()

	rows, err := s.db.Query(ctx, selectPermissions, role)
	if err != nil {
		finishSpan(span, err)
		return nil, storeError(err, "permissions: query failed", role)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		finishSpan(span, err)
		return nil, storeError(err, "permissions: failed to read rows", role)
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, nil
}

// storeError keeps an existing store code and marks anything else as
// unavailable.
func storeError(err error, message, role string) error {
	if ssErr, ok := sserr.AsError(err); ok {
		return sserr.Wrap(ssErr, ssErr.Code, message).WithDetail("role", role)
	}
	return sserr.Wrap(err, sserr.CodeUnavailableDependency, message).WithDetail("role", role)
}
