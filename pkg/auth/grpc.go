package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

var (
	mdAuthorization  = strings.ToLower(HeaderAuthorization)
	mdConversationID = strings.ToLower(HeaderConversationID)
)

// GRPCStatus converts err to a status carrying only the public message.
func GRPCStatus(err error) error {
	code, message := grpcCode(err)
	return status.Error(code, message)
}

func grpcCode(err error) (codes.Code, string) {
	httpStatus, message := PublicMessage(err)
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.InvalidArgument, message
	case http.StatusForbidden:
		return codes.PermissionDenied, message
	default:
		return codes.Unauthenticated, message
	}
}

// UnaryServerInterceptor authenticates each call from its "authorization"
// metadata and stores the identity in the handler context.
func UnaryServerInterceptor(validator TokenValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticateGRPC(ctx, validator, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming form of [UnaryServerInterceptor].
func StreamServerInterceptor(validator TokenValidator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticateGRPC(ss.Context(), validator, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &WrappedServerStream{ServerStream: ss, Ctx: ctx})
	}
}

// UnaryClientInterceptor copies the conversation id and credential from the
// context to outgoing metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(outgoingMetadata(ctx), method, req, reply, cc, opts...)
	}
}

func outgoingMetadata(ctx context.Context) context.Context {
	var pairs []string
	if id, ok := ConversationIDFromContext(ctx); ok {
		pairs = append(pairs, mdConversationID, id)
	}
	if cred, ok := CredentialFromContext(ctx); ok {
		pairs = append(pairs, mdAuthorization, cred)
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func authenticateGRPC(ctx context.Context, validator TokenValidator, method string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	id := firstMD(md, mdConversationID)
	if id == "" {
		id = uuid.NewString()
	}
	ctx = ContextWithConversationID(ctx, id)

	header := firstMD(md, mdAuthorization)
	token := ExtractBearerToken(header)
	if token == "" {
		return ctx, rejectGRPC(ctx, method, sserr.New(sserr.CodeCredentialsMissing, "auth: missing or invalid authorization metadata"))
	}

	identity, err := validator.Validate(ctx, token)
	if err != nil {
		return ctx, rejectGRPC(ctx, method, err)
	}
	ctx = ContextWithIdentity(ctx, identity)
	return ContextWithCredential(ctx, header), nil
}

// RejectGRPC logs err and returns its public status. Later pipeline stages
// use it so every rejection is reported the same way.
func RejectGRPC(ctx context.Context, method string, err error) error {
	return rejectGRPC(ctx, method, err)
}

func rejectGRPC(ctx context.Context, method string, err error) error {
	attrs := []any{"code", sserr.GetCode(err).String(), "method", method, "error", err}
	if id, ok := ConversationIDFromContext(ctx); ok {
		attrs = append(attrs, "conversation_id", id)
	}
	slog.WarnContext(ctx, "auth: call rejected", attrs...)
	return GRPCStatus(err)
}

func firstMD(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// WrappedServerStream overrides the context of a grpc.ServerStream.
type WrappedServerStream struct {
	grpc.ServerStream
	Ctx context.Context
}

// Context returns the enriched context.
func (w *WrappedServerStream) Context() context.Context {
	return w.Ctx
}
