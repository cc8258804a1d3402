package auth

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authcore/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

func TestNewKeyCache_RejectsInvalidURL(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not a url", "ftp://keys.example/jwks", "/relative/jwks"} {
		_, err := NewKeyCache(raw)
		testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration, "url %q", raw)
	}
}

func TestKeyCache_Get_FetchesAndCaches(t *testing.T) {
	t.Parallel()
	key := testutil.NewRSAKey(t, fixtures.KIDA)
	srv := testutil.NewJWKSServer(t, key)

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	pub, err := cache.Get(context.Background(), fixtures.KIDA)
	require.NoError(t, err)
	assert.Equal(t, key.Public(), pub)

	pub, err = cache.Get(context.Background(), fixtures.KIDA)
	require.NoError(t, err)
	assert.Equal(t, key.Public(), pub)

	assert.Equal(t, int64(1), srv.Hits(), "second lookup should be served from cache")
	assert.Equal(t, 1, cache.Len())
}

func TestKeyCache_Get_ECKey(t *testing.T) {
	t.Parallel()
	key := testutil.NewECKey(t, fixtures.KIDB)
	srv := testutil.NewJWKSServer(t, key)

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	pub, err := cache.Get(context.Background(), fixtures.KIDB)
	require.NoError(t, err)
	ecPub, ok := pub.(*ecdsa.PublicKey)
	require.True(t, ok, "expected *ecdsa.PublicKey, got %T", pub)
	assert.True(t, ecPub.Equal(key.Public()))
}

func TestKeyCache_Get_EmptyKID(t *testing.T) {
	t.Parallel()
	cache, err := NewKeyCache("https://keys.example/jwks")
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "")
	testutil.RequireErrorCode(t, err, sserr.CodeMissingKeyID)
}

func TestKeyCache_Get_UnknownKID(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t, testutil.NewRSAKey(t, fixtures.KIDA))

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "missing")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound)
	assert.Equal(t, 0, cache.Len(), "failures must not be cached")
}

func TestKeyCache_Get_EndpointFailure(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	srv.SetStatus(http.StatusServiceUnavailable)

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), fixtures.KIDA)
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
	assert.True(t, sserr.IsRetryable(err))

	// No retry within a single Get.
	assert.Equal(t, int64(1), srv.Hits())
}

func TestKeyCache_Get_FetchTimeout(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t, testutil.NewRSAKey(t, fixtures.KIDA))
	srv.SetDelay(200 * time.Millisecond)

	cache, err := NewKeyCache(srv.URL, WithFetchTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), fixtures.KIDA)
	testutil.RequireErrorCode(t, err, sserr.CodeTimeoutDependency)
}

func TestKeyCache_Get_CallerCancellation(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t, testutil.NewRSAKey(t, fixtures.KIDA))
	srv.SetDelay(100 * time.Millisecond)

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = cache.Get(ctx, fixtures.KIDA)
	testutil.RequireErrorCode(t, err, sserr.CodeTimeoutDependency)

	// The abandoned fetch still completes and fills the cache.
	require.Eventually(t, func() bool { return cache.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestKeyCache_Get_SingleFlight(t *testing.T) {
	t.Parallel()
	key := testutil.NewRSAKey(t, fixtures.KIDA)
	srv := testutil.NewJWKSServer(t, key)
	srv.SetDelay(50 * time.Millisecond)

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background(), fixtures.KIDA)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), srv.Hits(), "concurrent misses should share one fetch")
}

func TestKeyCache_Get_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	a := testutil.NewRSAKey(t, "a")
	b := testutil.NewRSAKey(t, "b")
	c := testutil.NewRSAKey(t, "c")
	srv := testutil.NewJWKSServer(t, a, b, c)

	cache, err := NewKeyCache(srv.URL, WithMaxKeys(2))
	require.NoError(t, err)
	ctx := context.Background()

	for _, kid := range []string{"a", "b", "a", "c"} {
		_, err := cache.Get(ctx, kid)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int64(3), srv.Hits())

	// "a" was used more recently than "b", so "b" was evicted.
	_, err = cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), srv.Hits())
	_, err = cache.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(4), srv.Hits())
}

func TestKeyCache_Get_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t, testutil.NewRSAKey(t, fixtures.KIDA))

	cache, err := NewKeyCache(srv.URL, WithKeyTTL(30*time.Millisecond))
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), fixtures.KIDA)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, err = cache.Get(context.Background(), fixtures.KIDA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), srv.Hits(), "expired key should be refetched")
}

func TestKeyCache_Get_RotatedKeyIsFetched(t *testing.T) {
	t.Parallel()
	first := testutil.NewRSAKey(t, "k1")
	srv := testutil.NewJWKSServer(t, first)

	cache, err := NewKeyCache(srv.URL)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), "k1")
	require.NoError(t, err)

	second := testutil.NewRSAKey(t, "k2")
	srv.SetKeys(first, second)

	pub, err := cache.Get(context.Background(), "k2")
	require.NoError(t, err)
	assert.Equal(t, second.Public(), pub)
}

func TestFetchKey_SkipsEncryptionKeys(t *testing.T) {
	t.Parallel()
	srv := staticServer(t, `{"keys":[{"kty":"RSA","kid":"enc","use":"enc","n":"AQAB","e":"AQAB"}]}`)

	_, err := fetchKey(context.Background(), http.DefaultClient, srv.URL, "enc")
	testutil.RequireErrorCode(t, err, sserr.CodeKeyNotFound)
}

func TestFetchKey_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv := staticServer(t, `{"keys":`)

	_, err := fetchKey(context.Background(), http.DefaultClient, srv.URL, fixtures.KIDA)
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}

func staticServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
