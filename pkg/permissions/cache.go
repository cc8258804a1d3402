package permissions

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// generation is one lifetime of the cache between invalidations.
type generation struct {
	id uint64

	mu      sync.RWMutex
	entries map[string][]string
}

func newGeneration(id uint64) *generation {
	return &generation{id: id, entries: make(map[string][]string)}
}

func (g *generation) get(role string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	perms, ok := g.entries[role]
	return perms, ok
}

func (g *generation) put(role string, perms []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[role] = perms
}

func (g *generation) len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Cache memoises role to permission lookups until the next
// [Cache.InvalidateAll]. Entries have no TTL. Concurrent misses for one
// role share a single source call.
//
// InvalidateAll swaps in an empty generation. Lookups that were in flight
// complete against the old generation and their results are discarded
// with it.
type Cache struct {
	source Source
	store  Store

	current atomic.Pointer[generation]
	flight  singleflight.Group

	recorder  EventRecorder
	eventName string

	tracer trace.Tracer
	logger *slog.Logger
}

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithStore adds a shared second-level store.
func WithStore(s Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

// WithCacheRecorder sets the event recorder.
func WithCacheRecorder(r EventRecorder) CacheOption {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithAppName sets the prefix of the refresh event name.
func WithAppName(name string) CacheOption {
	return func(c *Cache) { c.eventName = CacheRefreshedEventName(name) }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache returns an empty cache over source.
func NewCache(source Source, opts ...CacheOption) (*Cache, error) {
	if source == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "permissions: cache requires a source")
	}
	c := &Cache{
		source:    source,
		eventName: CacheRefreshedEventName(""),
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recorder == nil {
		c.recorder = NewSpanEventRecorder(c.logger)
	}
	c.current.Store(newGeneration(0))
	return c, nil
}

// Len returns the number of cached roles.
func (c *Cache) Len() int {
	return c.current.Load().len()
}

// Lookup returns the permissions of role. A hit makes no remote call.
// The returned slice is a copy.
func (c *Cache) Lookup(ctx context.Context, role, credential string) ([]string, error) {
	gen := c.current.Load()
	if perms, ok := gen.get(role); ok {
		return slices.Clone(perms), nil
	}

	ctx, span := c.tracer.Start(ctx, "permissions.Lookup",
		trace.WithAttributes(attribute.String("permissions.role", role)),
	)
	defer span.End()

	key := strconv.FormatUint(gen.id, 10) + "/" + role
	ch := c.flight.DoChan(key, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), gen, role, credential)
	})

	select {
	case <-ctx.Done():
		err := sserr.Wrap(ctx.Err(), sserr.CodeTimeoutDependency, "permissions: lookup abandoned")
		finishSpan(span, err)
		return nil, err
	case res := <-ch:
		if res.Err != nil {
			finishSpan(span, res.Err)
			return nil, res.Err
		}
		span.SetAttributes(attribute.Bool("permissions.shared_lookup", res.Shared))
		return slices.Clone(res.Val.([]string)), nil
	}
}

func (c *Cache) fill(ctx context.Context, gen *generation, role, credential string) ([]string, error) {
	if perms, ok := gen.get(role); ok {
		return perms, nil
	}

	if c.store != nil {
		perms, ok, err := c.store.Get(ctx, role)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "permissions: shared store read failed", "role", role, "error", err)
		case ok:
			gen.put(role, perms)
			return perms, nil
		}
	}

	perms, err := c.source.Permissions(ctx, role, credential)
	if err != nil {
		return nil, err
	}
	if c.current.Load() != gen {
		// Invalidated while fetching: the answer may predate the refresh, so
		// it is returned to the waiting callers but never stored.
		return perms, nil
	}
	gen.put(role, perms)

	if c.store != nil {
		if err := c.store.Set(ctx, role, perms); err != nil {
			c.logger.WarnContext(ctx, "permissions: shared store write failed", "role", role, "error", err)
		}
	}
	return perms, nil
}

// InvalidateAll discards every entry at once and records one refresh
// event. With a shared store configured the store is purged too.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	old := c.current.Load()
	for !c.current.CompareAndSwap(old, newGeneration(old.id+1)) {
		old = c.current.Load()
	}
	dropped := old.len()

	var err error
	if c.store != nil {
		if err = c.store.Purge(ctx); err != nil {
			c.logger.WarnContext(ctx, "permissions: shared store purge failed", "error", err)
		}
	}

	c.recorder.Record(ctx, c.eventName, attribute.Int("permissions.dropped", dropped))
	c.logger.InfoContext(ctx, "permissions: cache invalidated", "dropped", dropped)
	return err
}
