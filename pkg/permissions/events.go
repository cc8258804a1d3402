package permissions

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RetryEventName is recorded when the permissions service cannot be
// reached.
const RetryEventName = "PermissionsRetryEvent"

// CacheRefreshedEventName returns the event recorded once per cache
// invalidation: appName without spaces or dashes, followed by
// "PermissionsCacheRefreshed".
func CacheRefreshedEventName(appName string) string {
	name := strings.NewReplacer(" ", "", "-", "").Replace(appName)
	return name + "PermissionsCacheRefreshed"
}

// EventRecorder records named diagnostic events.
type EventRecorder interface {
	Record(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// SpanEventRecorder adds events to the active span. Without a recording
// span it starts a short span named after the event.
type SpanEventRecorder struct {
	tracer trace.Tracer
	logger *slog.Logger
}

var _ EventRecorder = (*SpanEventRecorder)(nil)

// NewSpanEventRecorder returns a recorder using the global tracer provider.
func NewSpanEventRecorder(logger *slog.Logger) *SpanEventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpanEventRecorder{tracer: otel.Tracer(tracerName), logger: logger}
}

// Record implements [EventRecorder].
func (r *SpanEventRecorder) Record(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		ctx, span = r.tracer.Start(ctx, name)
		defer span.End()
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))

	args := make([]any, 0, len(attrs)+1)
	args = append(args, "event", name)
	for _, a := range attrs {
		args = append(args, slog.Any(string(a.Key), a.Value.AsInterface()))
	}
	r.logger.InfoContext(ctx, "permissions: event recorded", args...)
}
