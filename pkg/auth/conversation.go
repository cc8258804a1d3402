package auth

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConversationMiddleware reads the INS-ConversationId header, generating a
// UUID when absent. The id is stored in the context, echoed on the
// response and added to the active span.
func ConversationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderConversationID)
		if id == "" {
			id = uuid.NewString()
		}
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("conversation.id", id))
		w.Header().Set(HeaderConversationID, id)
		next.ServeHTTP(w, r.WithContext(ContextWithConversationID(r.Context(), id)))
	})
}
