package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationMiddleware_UsesIncomingID(t *testing.T) {
	t.Parallel()
	var got string
	handler := ConversationMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = ConversationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderConversationID, "conv-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "conv-123", got)
	assert.Equal(t, "conv-123", rec.Header().Get(HeaderConversationID))
}

func TestConversationMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()
	var got string
	handler := ConversationMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = ConversationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(got)
	require.NoError(t, err, "generated id should be a UUID")
	assert.Equal(t, got, rec.Header().Get(HeaderConversationID))
}
