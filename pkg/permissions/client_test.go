package permissions

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

func newTestClient(t *testing.T, srv *permService, forward bool) (*Client, *eventLog) {
	t.Helper()
	events := &eventLog{}
	c, err := NewClient(Config{
		BaseURL:           srv.URL + "/",
		User:              fixtures.ServiceUser,
		Password:          fixtures.ServicePassword,
		ForwardCredential: forward,
		Timeout:           time.Second,
	}, WithClientRecorder(events))
	require.NoError(t, err)
	return c, events
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	t.Parallel()
	for _, base := range []string{"", "perms.internal", "ftp://perms"} {
		_, err := NewClient(Config{BaseURL: base})
		testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration, "base %q", base)
	}
}

func TestClient_Permissions(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, map[string]string{fixtures.Importer: `["read","write"]`})
	c, events := newTestClient(t, srv, false)

	perms, err := c.Permissions(context.Background(), fixtures.Importer, "Bearer caller")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, perms)

	basic, authorization := srv.headers()
	assert.Equal(t, auth.BasicAuthHeader(fixtures.ServiceUser, fixtures.ServicePassword), basic)
	assert.Empty(t, authorization, "credential is not forwarded unless enabled")
	assert.Empty(t, events.names())
}

func TestClient_Permissions_ForwardsCredential(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, map[string]string{fixtures.Importer: `["read"]`})
	c, _ := newTestClient(t, srv, true)

	_, err := c.Permissions(context.Background(), fixtures.Importer, "Bearer caller")
	require.NoError(t, err)
	_, authorization := srv.headers()
	assert.Equal(t, "Bearer caller", authorization)
}

func TestClient_Permissions_EscapesRole(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, map[string]string{"a b": `["x"]`})
	c, _ := newTestClient(t, srv, false)

	perms, err := c.Permissions(context.Background(), "a b", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, perms)
}

func TestClient_Permissions_EmptyBodies(t *testing.T) {
	t.Parallel()
	for _, body := range []string{"null", "", "[]"} {
		srv := newPermService(t, map[string]string{"role": body})
		c, _ := newTestClient(t, srv, false)

		perms, err := c.Permissions(context.Background(), "role", "")
		require.NoError(t, err, "body %q", body)
		assert.NotNil(t, perms)
		assert.Empty(t, perms, "body %q", body)
	}
}

func TestClient_Permissions_MalformedBody(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, map[string]string{"role": `{"not":"a list"}`})
	c, events := newTestClient(t, srv, false)

	_, err := c.Permissions(context.Background(), "role", "")
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Empty(t, events.names())
}

func TestClient_Permissions_ServerError(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, nil)
	srv.setStatus(http.StatusBadGateway)
	c, events := newTestClient(t, srv, false)

	_, err := c.Permissions(context.Background(), "role", "")
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
	assert.True(t, sserr.IsRetryable(err))
	assert.Equal(t, []string{RetryEventName}, events.names())
}

func TestClient_Permissions_ClientErrorIsNotRetryable(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, nil)
	srv.setStatus(http.StatusForbidden)
	c, events := newTestClient(t, srv, false)

	_, err := c.Permissions(context.Background(), "role", "")
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.False(t, sserr.IsRetryable(err))
	assert.Empty(t, events.names())
}

func TestClient_Permissions_TransportFailure(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, nil)
	c, events := newTestClient(t, srv, false)
	srv.Close()

	_, err := c.Permissions(context.Background(), "role", "")
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
	assert.Equal(t, []string{RetryEventName}, events.names())
}

func TestClient_Permissions_Timeout(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, nil)
	srv.setDelay(200 * time.Millisecond)
	events := &eventLog{}
	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, WithClientRecorder(events))
	require.NoError(t, err)

	_, err = c.Permissions(context.Background(), "role", "")
	testutil.RequireErrorCode(t, err, sserr.CodeTimeoutDependency)
	assert.Equal(t, []string{RetryEventName}, events.names())
}

func TestClient_Permissions_PropagatesConversationID(t *testing.T) {
	t.Parallel()
	srv := newPermService(t, nil)
	c, _ := newTestClient(t, srv, false)

	ctx := auth.ContextWithConversationID(context.Background(), "conv-1")
	_, err := c.Permissions(ctx, "role", "")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", srv.conversationID())
}
