// Package permissions is the second stage of the request pipeline. It
// replaces the roles of an authenticated identity with the permissions
// those roles grant.
//
//	auth.Middleware → permissions.Middleware → handler
//
// Permissions come from a [Source] (the permissions service, or a SQL
// table) through a [Cache] that is emptied wholesale by a [Scheduler].
package permissions

import (
	"context"
	"net/http"

	"google.golang.org/grpc"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// Expanding is the contract of the second pipeline stage. *Expander
// implements it.
type Expanding interface {
	Expand(ctx context.Context, identity *auth.Identity, credential string) (*auth.Identity, error)
}

// Middleware expands the identity placed in the context by
// [auth.Middleware]. A request without an identity is rejected.
func Middleware(expander Expanding) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := expandContext(r.Context(), expander)
			if err != nil {
				auth.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UnaryServerInterceptor is the gRPC form of [Middleware]. Install it after
// [auth.UnaryServerInterceptor].
func UnaryServerInterceptor(expander Expanding) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := expandContext(ctx, expander)
		if err != nil {
			return nil, auth.RejectGRPC(ctx, info.FullMethod, err)
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming form of [UnaryServerInterceptor].
func StreamServerInterceptor(expander Expanding) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := expandContext(ss.Context(), expander)
		if err != nil {
			return auth.RejectGRPC(ctx, info.FullMethod, err)
		}
		return handler(srv, &auth.WrappedServerStream{ServerStream: ss, Ctx: ctx})
	}
}

func expandContext(ctx context.Context, expander Expanding) (context.Context, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return ctx, sserr.New(sserr.CodeCredentialsMissing, "permissions: no authenticated identity")
	}
	credential, _ := auth.CredentialFromContext(ctx)

	expanded, err := expander.Expand(ctx, identity, credential)
	if err != nil {
		return ctx, err
	}
	return auth.ContextWithIdentity(ctx, expanded), nil
}
