package cli

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/permissions"
)

// app is the wired request pipeline plus the resources it owns.
type app struct {
	handler   http.Handler
	scheduler *permissions.Scheduler
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp connects the optional stores and assembles:
//
//	registry → validator → auth stage
//	source → [redis store] → cache → expander → permissions stage
//	cache → scheduler
func buildApp(ctx context.Context, cfg ServiceConfig, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	var checks []healthCheck

	registry, err := auth.NewProviderRegistryFromConfig(cfg.Auth, nil, auth.WithRegistryLogger(logger))
	if err != nil {
		return nil, err
	}
	validator, err := auth.NewValidator(registry,
		auth.WithClockSkew(cfg.Auth.ClockSkew),
		auth.WithValidatorLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	recorder := permissions.NewSpanEventRecorder(logger)

	var source permissions.Source
	switch cfg.Permissions.Source {
	case permissions.SourceSQL:
		pg, err := postgres.NewClient(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		checks = append(checks, healthCheck{name: "postgres", check: pg.Health})

		if source, err = permissions.NewSQLSource(pg); err != nil {
			return nil, err
		}
	default:
		if source, err = permissions.NewClient(cfg.Permissions,
			permissions.WithClientRecorder(recorder),
			permissions.WithClientLogger(logger),
		); err != nil {
			return nil, err
		}
	}

	cacheOpts := []permissions.CacheOption{
		permissions.WithCacheRecorder(recorder),
		permissions.WithAppName(cfg.Permissions.AppName),
		permissions.WithCacheLogger(logger),
	}
	if cfg.Redis.Enabled() {
		rc, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		checks = append(checks, healthCheck{name: "redis", check: rc.Health})

		store, err := permissions.NewRedisStore(rc, permissions.DefaultStoreKey)
		if err != nil {
			return nil, err
		}
		cacheOpts = append(cacheOpts, permissions.WithStore(store))
	}

	cache, err := permissions.NewCache(source, cacheOpts...)
	if err != nil {
		return nil, err
	}
	expander, err := permissions.NewExpander(cache, permissions.WithExpanderLogger(logger))
	if err != nil {
		return nil, err
	}
	if a.scheduler, err = permissions.NewScheduler(cache, cfg.Permissions.RefreshInterval, logger); err != nil {
		return nil, err
	}
	checks = append(checks, healthCheck{name: a.scheduler.Name(), check: a.scheduler.Health})

	a.handler = newRouter(routerDeps{
		validator:      validator,
		expander:       expander,
		invalidator:    cache,
		serviceUser:    cfg.ServiceAuth.User,
		servicePass:    cfg.ServiceAuth.Password.Value(),
		exemptPrefixes: cfg.ServiceAuth.ExemptPrefixes,
		allowedOrigins: cfg.Server.AllowedOrigins,
		adminAuthority: cfg.Server.AdminAuthority,
		checks:         checks,
		logger:         logger,
	})
	return a, nil
}
