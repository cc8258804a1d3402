package auth

import (
	"context"
	"crypto"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// Provider is one configured identity provider: a key source plus the
// issuer and audience its tokens must assert.
type Provider struct {
	Name     string
	Issuer   string
	Audience string
	Keys     KeySource
}

// KeyAndClaims is one verification candidate for a key id.
type KeyAndClaims struct {
	Provider  string
	Issuer    string
	Audience  string
	PublicKey crypto.PublicKey
}

// Resolver returns the verification candidates for a key id.
type Resolver interface {
	Resolve(ctx context.Context, kid string) ([]KeyAndClaims, error)
}

// ProviderRegistry resolves key ids across all configured providers.
//
// The first successful scan for a kid records which providers served it.
// Later lookups only consult those providers. The index never shrinks; if
// every indexed provider stops serving a kid, the registry rescans all
// providers and appends any new owners.
type ProviderRegistry struct {
	providers []Provider

	mu    sync.RWMutex
	index map[string][]int

	scans  singleflight.Group
	tracer trace.Tracer
	logger *slog.Logger
}

var _ Resolver = (*ProviderRegistry)(nil)

// RegistryOption configures a [ProviderRegistry].
type RegistryOption func(*ProviderRegistry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *ProviderRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewProviderRegistry returns a registry scanning providers in the given
// order. Every provider needs a key source, issuer and audience.
func NewProviderRegistry(providers []Provider, opts ...RegistryOption) (*ProviderRegistry, error) {
	if len(providers) == 0 {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: at least one provider is required")
	}
	for i, p := range providers {
		if p.Keys == nil || p.Issuer == "" || p.Audience == "" {
			return nil, sserr.Newf(sserr.CodeInternalConfiguration,
				"auth: provider %d requires keys, issuer and audience", i)
		}
	}
	r := &ProviderRegistry{
		providers: slices.Clone(providers),
		index:     make(map[string][]int),
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewProviderRegistryFromConfig validates cfg and builds one [KeyCache] per
// provider.
func NewProviderRegistryFromConfig(cfg ProvidersConfig, client HTTPClient, opts ...RegistryOption) (*ProviderRegistry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	probe := &ProviderRegistry{logger: slog.Default()}
	for _, opt := range opts {
		opt(probe)
	}

	providers := make([]Provider, 0, len(cfg.JWKSURLs))
	for _, pc := range cfg.Providers() {
		cacheOpts := []KeyCacheOption{
			WithMaxKeys(cfg.MaxKeys),
			WithKeyTTL(cfg.KeyTTL),
			WithFetchTimeout(cfg.FetchTimeout),
			WithKeyCacheLogger(probe.logger),
		}
		if client != nil {
			cacheOpts = append(cacheOpts, WithHTTPClient(client))
		}
		keys, err := NewKeyCache(pc.JWKSURL, cacheOpts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, Provider{
			Name:     pc.Name,
			Issuer:   pc.Issuer,
			Audience: pc.Audience,
			Keys:     keys,
		})
	}
	return NewProviderRegistry(providers, opts...)
}

// Providers returns the configured providers in scan order.
func (r *ProviderRegistry) Providers() []Provider {
	return slices.Clone(r.providers)
}

// IndexedProviders returns the names of providers known to serve kid.
func (r *ProviderRegistry) IndexedProviders(kid string) []string {
	idx := r.indexed(kid)
	names := make([]string, len(idx))
	for i, p := range idx {
		names[i] = r.providers[p].Name
	}
	return names
}

// Resolve returns one candidate per provider that serves kid, in
// configuration order. It fails with [sserr.CodeNoProviderForKey] when no
// provider serves it.
func (r *ProviderRegistry) Resolve(ctx context.Context, kid string) ([]KeyAndClaims, error) {
	ctx, span := r.tracer.Start(ctx, "auth.Registry.Resolve",
		trace.WithAttributes(attribute.String("auth.kid", kid)),
	)
	defer span.End()

	if kid == "" {
		err := sserr.New(sserr.CodeMissingKeyID, "auth: key id is required")
		finishSpan(span, err)
		return nil, err
	}

	if idx := r.indexed(kid); len(idx) > 0 {
		span.SetAttributes(attribute.Bool("auth.index_hit", true))
		if found := r.collect(ctx, kid, idx); len(found) > 0 {
			return found, nil
		}
		r.logger.WarnContext(ctx, "auth: indexed providers no longer serve key, rescanning",
			"kid", kid,
			"providers", r.IndexedProviders(kid),
		)
	}

	// The scan is shared by every caller waiting on kid, so one caller
	// leaving must not cut it short. KeyCache bounds each fetch.
	ch := r.scans.DoChan(kid, func() (any, error) {
		return r.scan(context.WithoutCancel(ctx), kid)
	})
	select {
	case <-ctx.Done():
		err := sserr.Wrap(ctx.Err(), sserr.CodeTimeoutDependency, "auth: key resolution abandoned").
			WithDetail("kid", kid)
		finishSpan(span, err)
		return nil, err
	case res := <-ch:
		if res.Err != nil {
			finishSpan(span, res.Err)
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]KeyAndClaims)), nil
	}
}

// scan asks every provider for kid and indexes the ones that answer.
func (r *ProviderRegistry) scan(ctx context.Context, kid string) ([]KeyAndClaims, error) {
	all := make([]int, len(r.providers))
	for i := range all {
		all[i] = i
	}
	found := r.collect(ctx, kid, all)
	if len(found) == 0 {
		return nil, sserr.New(sserr.CodeNoProviderForKey,
			"auth: invalid security configuration, no provider serves key").
			WithDetail("kid", kid)
	}
	return found, nil
}

// collect fetches kid from the given providers and indexes each success.
// Per-provider failures are logged and skipped.
func (r *ProviderRegistry) collect(ctx context.Context, kid string, providers []int) []KeyAndClaims {
	var found []KeyAndClaims
	for _, i := range providers {
		p := r.providers[i]
		pub, err := p.Keys.Get(ctx, kid)
		if err != nil {
			if sserr.HasCode(err, sserr.CodeKeyNotFound) {
				r.logger.DebugContext(ctx, "auth: provider does not serve key",
					"provider", p.Name, "kid", kid)
			} else {
				r.logger.WarnContext(ctx, "auth: provider key lookup failed",
					"provider", p.Name, "kid", kid, "error", err)
			}
			continue
		}
		r.addToIndex(kid, i)
		found = append(found, KeyAndClaims{
			Provider:  p.Name,
			Issuer:    p.Issuer,
			Audience:  p.Audience,
			PublicKey: pub,
		})
	}
	return found
}

func (r *ProviderRegistry) indexed(kid string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.index[kid])
}

func (r *ProviderRegistry) addToIndex(kid string, provider int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.index[kid], provider) {
		return
	}
	// Keep configuration order so candidates are always tried the same way.
	idx := append(r.index[kid], provider)
	slices.Sort(idx)
	r.index[kid] = idx
}
