package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authcore/pkg/lifecycle"

// StateChangeHandler is called synchronously, under the service's state
// mutex, after every successful transition. Handlers must not call
// lifecycle methods on the same service. Panics are recovered and logged.
type StateChangeHandler func(old, new State)

// Hook runs during Start or Stop, outside the state mutex. A non-nil error
// moves the service to [StateFailed].
type Hook func(ctx context.Context) error

// Service is the contract implemented by background services.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() State
	Health(ctx context.Context) error
}

// BaseService is a thread-safe [Service] built from hooks. Create one with
// [NewServiceBuilder].
type BaseService struct {
	name string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart Hook
	onStop  Hook

	stateHandlers []StateChangeHandler
}

var _ Service = (*BaseService)(nil)

// Name returns the service name.
func (s *BaseService) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *BaseService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Uptime returns the time since the service entered [StateRunning], or zero
// when it is not running.
func (s *BaseService) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt == nil || s.state != StateRunning {
		return 0
	}
	return time.Since(*s.startedAt)
}

// Health returns nil when the service is running and a
// [sserr.CodeUnavailable] error otherwise.
func (s *BaseService) Health(_ context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service %q is not running, current state is %q", s.name, state)
	}
	return nil
}

// SetState validates and applies a transition, then notifies handlers.
// Returns a [sserr.CodeConflict] error when the transition is not allowed.
func (s *BaseService) SetState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}
	s.state = new

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(new),
					)
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

// Start moves the service through Starting to Running, running the OnStart
// hook in between. A canceled context returns a [sserr.CodeTimeout] error
// without touching state.
func (s *BaseService) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fail(span, sserr.Wrap(err, sserr.CodeTimeout,
			"lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			return fail(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return fail(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop moves the service through Stopping to Stopped, running the OnStop
// hook in between. Stop on a terminal or never-started service is a no-op.
func (s *BaseService) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if state := s.State(); state.IsTerminal() || state == StateUnknown {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fail(span, sserr.Wrap(err, sserr.CodeTimeout,
			"lifecycle: stop canceled before execution"))
	}
	if err := s.SetState(StateStopping); err != nil {
		return fail(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.SetState(StateFailed)
			return fail(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: stop hook failed"))
		}
	}

	if err := s.SetState(StateStopped); err != nil {
		return fail(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *BaseService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("service.name", s.name)),
	)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ServiceBuilder constructs a [BaseService].
//
//	svc, err := lifecycle.NewServiceBuilder("permissions-scheduler").
//	    WithOnStart(sched.run).
//	    WithOnStop(sched.halt).
//	    Build()
type ServiceBuilder struct {
	name          string
	logger        *slog.Logger
	onStart       Hook
	onStop        Hook
	stateHandlers []StateChangeHandler
}

// NewServiceBuilder returns a builder for a service with the given name.
func NewServiceBuilder(name string) *ServiceBuilder {
	return &ServiceBuilder{name: name}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func (b *ServiceBuilder) WithLogger(logger *slog.Logger) *ServiceBuilder {
	b.logger = logger
	return b
}

// WithOnStart sets the hook run during Start.
func (b *ServiceBuilder) WithOnStart(h Hook) *ServiceBuilder {
	b.onStart = h
	return b
}

// WithOnStop sets the hook run during Stop.
func (b *ServiceBuilder) WithOnStop(h Hook) *ServiceBuilder {
	b.onStop = h
	return b
}

// OnStateChange registers a handler. Handlers run in registration order.
func (b *ServiceBuilder) OnStateChange(h StateChangeHandler) *ServiceBuilder {
	if h != nil {
		b.stateHandlers = append(b.stateHandlers, h)
	}
	return b
}

// Build validates the builder and returns the service.
func (b *ServiceBuilder) Build() (*BaseService, error) {
	if strings.TrimSpace(b.name) == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseService{
		name:          b.name,
		state:         StateUnknown,
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
		onStart:       b.onStart,
		onStop:        b.onStop,
		stateHandlers: append([]StateChangeHandler(nil), b.stateHandlers...),
	}, nil
}
