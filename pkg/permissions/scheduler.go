package permissions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authcore/pkg/lifecycle"
)

// Invalidator is cleared on every scheduler tick. *Cache implements it.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Scheduler invalidates a cache on a fixed interval. Its lifecycle is
// managed by an embedded [lifecycle.BaseService]; it can be restarted after
// Stop.
type Scheduler struct {
	*lifecycle.BaseService

	target   Invalidator
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewScheduler returns a stopped scheduler. interval must be positive.
func NewScheduler(target Invalidator, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "permissions: scheduler requires a target")
	}
	if interval <= 0 {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"permissions: refresh interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{target: target, interval: interval, logger: logger}

	svc, err := lifecycle.NewServiceBuilder("permissions-scheduler").
		WithLogger(logger).
		WithOnStart(s.launch).
		WithOnStop(s.halt).
		Build()
	if err != nil {
		return nil, err
	}
	s.BaseService = svc
	return s, nil
}

// Interval returns the refresh interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) launch(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	return nil
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.target.InvalidateAll(context.Background()); err != nil {
				s.logger.Warn("permissions: scheduled invalidation failed", "error", err)
			}
		}
	}
}

// halt signals the loop and waits for it to exit or ctx to end.
func (s *Scheduler) halt(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}

	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "permissions: scheduler did not stop in time")
	}
}
