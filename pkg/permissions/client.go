package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authcore/pkg/errors"
)

// maxResponseSize caps how much of a permissions response is read.
const maxResponseSize = 1 << 20

// Source returns the permission names granted to a role. credential is the
// caller's raw Authorization header value and may be empty.
type Source interface {
	Permissions(ctx context.Context, role, credential string) ([]string, error)
}

// HTTPClient is the client used to reach the permissions service.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads permissions from the permissions service:
//
//	GET {base}/roles/{role}/permissions
//	x-auth-basic: Basic base64(user:password)
//	Authorization: <caller credential, when forwarding is enabled>
//
// Each call makes one request. Transport failures are retryable errors and
// are recorded as [RetryEventName] events.
type Client struct {
	baseURL  string
	basic    string
	forward  bool
	timeout  time.Duration
	http     HTTPClient
	recorder EventRecorder

	tracer trace.Tracer
	logger *slog.Logger
}

var _ Source = (*Client)(nil)

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c HTTPClient) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithClientRecorder sets the event recorder.
func WithClientRecorder(r EventRecorder) ClientOption {
	return func(cl *Client) {
		if r != nil {
			cl.recorder = r
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient returns a client for cfg.BaseURL.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg.Source = SourceHTTP
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		basic:   auth.BasicAuthHeader(cfg.User, cfg.Password.Value()),
		forward: cfg.ForwardCredential,
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: auth.NewPropagatingRoundTripper(nil)},
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recorder == nil {
		c.recorder = NewSpanEventRecorder(c.logger)
	}
	return c, nil
}

// Permissions implements [Source]. A null body is an empty list.
func (c *Client) Permissions(ctx context.Context, role, credential string) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "permissions.Client.Permissions",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("permissions.role", role)),
	)
	defer span.End()

	perms, err := c.fetch(ctx, role, credential)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("permissions.count", len(perms)))
	return perms, nil
}

func (c *Client) fetch(ctx context.Context, role, credential string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/roles/" + url.PathEscape(role) + "/permissions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "permissions: failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(auth.HeaderServiceAuth, c.basic)
	if c.forward && credential != "" {
		req.Header.Set(auth.HeaderAuthorization, credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.retryable(ctx, role, err, "permissions: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, c.retryable(ctx, role,
			sserr.Newf(sserr.CodeUnavailableDependency, "permissions: service returned status %d", resp.StatusCode),
			"permissions: service unavailable")
	case resp.StatusCode != http.StatusOK:
		return nil, sserr.Newf(sserr.CodeInternal,
			"permissions: service returned status %d", resp.StatusCode).
			WithDetail("role", role)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.retryable(ctx, role, err, "permissions: failed to read response")
	}

	var perms []string
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &perms); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeInternal, "permissions: response is not a JSON string array").
				WithDetail("role", role)
		}
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, nil
}

// retryable records a retry event and returns a timeout or unavailable
// error wrapping err.
func (c *Client) retryable(ctx context.Context, role string, err error, message string) error {
	code := sserr.CodeUnavailableDependency
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = sserr.CodeTimeoutDependency
	}
	c.logger.WarnContext(ctx, "permissions: service call failed",
		"role", role,
		"error", err,
	)
	c.recorder.Record(ctx, RetryEventName,
		attribute.String("permissions.role", role),
		attribute.String("error.code", code.String()),
	)
	if ssErr, ok := sserr.AsError(err); ok && ssErr.Code == code {
		return ssErr.WithDetail("role", role)
	}
	return sserr.Wrap(err, code, message).WithDetail("role", role)
}
