package permissions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// permService is a fake permissions service. Responses are raw bodies
// keyed by role; unknown roles get "[]".
type permService struct {
	*httptest.Server

	mu        sync.Mutex
	bodies    map[string]string
	status    int
	delay     time.Duration
	lastBasic string
	lastAuth  string
	lastConv  string

	hits atomic.Int64
}

func newPermService(t *testing.T, bodies map[string]string) *permService {
	t.Helper()
	s := &permService{bodies: bodies, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		role := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/roles/"), "/permissions")

		s.mu.Lock()
		s.lastBasic = r.Header.Get("x-auth-basic")
		s.lastAuth = r.Header.Get("Authorization")
		s.lastConv = r.Header.Get("INS-ConversationId")
		body, ok := s.bodies[role]
		status, delay := s.status, s.delay
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if !ok {
			body = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *permService) setStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *permService) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *permService) headers() (basic, authorization string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBasic, s.lastAuth
}

func (s *permService) conversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastConv
}

// recordedEvent is one call to eventLog.Record.
type recordedEvent struct {
	name  string
	attrs []attribute.KeyValue
}

// eventLog is an EventRecorder that keeps every event.
type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *eventLog) Record(_ context.Context, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{name: name, attrs: attrs})
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.name
	}
	return out
}

// countingSource is an in-memory Source.
type countingSource struct {
	mu    sync.Mutex
	perms map[string][]string
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (s *countingSource) Permissions(_ context.Context, role, _ string) ([]string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]string{}, s.perms[role]...), nil
}

func (s *countingSource) set(role string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms[role] = perms
}
