package auth

import (
	"context"
	"crypto"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

const (
	// DefaultMaxKeys is the per-provider key cache capacity.
	DefaultMaxKeys = 5

	// DefaultKeyTTL is how long a fetched key is trusted before re-fetching.
	DefaultKeyTTL = 60 * time.Minute

	// DefaultFetchTimeout bounds one key-distribution request.
	DefaultFetchTimeout = 5 * time.Second
)

// CachedKey is a verification key held by a [KeyCache].
type CachedKey struct {
	KeyID     string
	PublicKey crypto.PublicKey
	FetchedAt time.Time
}

// KeySource resolves a key id to a verification key. [*KeyCache]
// implements it.
type KeySource interface {
	Get(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// KeyCache is a bounded, time-expiring cache of verification keys backed by
// one key-distribution endpoint. Concurrent misses for the same kid share a
// single fetch. A KeyCache is safe for concurrent use.
type KeyCache struct {
	jwksURL      string
	client       HTTPClient
	maxKeys      int
	ttl          time.Duration
	fetchTimeout time.Duration

	keys   *expirable.LRU[string, *CachedKey]
	flight singleflight.Group

	tracer trace.Tracer
	logger *slog.Logger
}

var _ KeySource = (*KeyCache)(nil)

// KeyCacheOption configures a [KeyCache].
type KeyCacheOption func(*KeyCache)

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(client HTTPClient) KeyCacheOption {
	return func(c *KeyCache) { c.client = client }
}

// WithMaxKeys sets the capacity. Values below 1 keep the default.
func WithMaxKeys(n int) KeyCacheOption {
	return func(c *KeyCache) {
		if n > 0 {
			c.maxKeys = n
		}
	}
}

// WithKeyTTL sets the entry lifetime. Values below or equal to zero keep
// the default.
func WithKeyTTL(ttl time.Duration) KeyCacheOption {
	return func(c *KeyCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout bounds each fetch independently of the caller's context.
func WithFetchTimeout(d time.Duration) KeyCacheOption {
	return func(c *KeyCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithKeyCacheLogger sets the logger.
func WithKeyCacheLogger(logger *slog.Logger) KeyCacheOption {
	return func(c *KeyCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewKeyCache returns a cache for the absolute http(s) jwksURL.
func NewKeyCache(jwksURL string, opts ...KeyCacheOption) (*KeyCache, error) {
	if err := validateEndpoint(jwksURL); err != nil {
		return nil, err
	}
	c := &KeyCache{
		jwksURL:      jwksURL,
		client:       http.DefaultClient,
		maxKeys:      DefaultMaxKeys,
		ttl:          DefaultKeyTTL,
		fetchTimeout: DefaultFetchTimeout,
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.keys = expirable.NewLRU[string, *CachedKey](c.maxKeys, nil, c.ttl)
	return c, nil
}

// URL returns the key-distribution endpoint.
func (c *KeyCache) URL() string {
	return c.jwksURL
}

// Len returns the number of live entries.
func (c *KeyCache) Len() int {
	return c.keys.Len()
}

// Get returns the key for kid, fetching it on a miss. A kid the endpoint
// does not serve fails with [sserr.CodeKeyNotFound]; transport failures
// are [sserr.CodeUnavailableDependency] or [sserr.CodeTimeoutDependency].
// Get performs one fetch attempt and never retries.
func (c *KeyCache) Get(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, sserr.New(sserr.CodeMissingKeyID, "auth: key id is required")
	}
	if cached, ok := c.keys.Get(kid); ok {
		return cached.PublicKey, nil
	}

	ctx, span := c.tracer.Start(ctx, "auth.KeyCache.Get",
		trace.WithAttributes(
			attribute.String("auth.kid", kid),
			attribute.String("auth.jwks_url", c.jwksURL),
		),
	)
	defer span.End()

	ch := c.flight.DoChan(kid, func() (any, error) {
		// The shared fetch outlives any single caller's cancellation.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, kid)
	})

	select {
	case <-ctx.Done():
		err := remoteError(ctx.Err(), "auth: key fetch abandoned")
		finishSpan(span, err)
		return nil, err
	case res := <-ch:
		if res.Err != nil {
			finishSpan(span, res.Err)
			return nil, res.Err
		}
		span.SetAttributes(attribute.Bool("auth.shared_fetch", res.Shared))
		return res.Val.(*CachedKey).PublicKey, nil
	}
}

func (c *KeyCache) fetch(ctx context.Context, kid string) (*CachedKey, error) {
	// Another flight may have filled the entry between the miss and now.
	if cached, ok := c.keys.Get(kid); ok {
		return cached, nil
	}

	pub, err := fetchKey(ctx, c.client, c.jwksURL, kid)
	if err != nil {
		return nil, err
	}
	entry := &CachedKey{KeyID: kid, PublicKey: pub, FetchedAt: time.Now()}
	if evicted := c.keys.Add(kid, entry); evicted {
		c.logger.Debug("auth: key cache evicted least recently used key",
			"jwks_url", c.jwksURL,
		)
	}
	c.logger.Debug("auth: fetched signing key", "kid", kid, "jwks_url", c.jwksURL)
	return entry, nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "auth: invalid key endpoint %q", raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"auth: key endpoint %q must be an absolute http(s) URL", raw)
	}
	return nil
}
