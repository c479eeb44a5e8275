package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

var (
	// ErrTransient marks transport failures that may succeed on retry
	// (network errors, timeouts, 408, 429, 5xx). Transports wrap it.
	ErrTransient = errors.New("submission: transient failure")
	// ErrMalformedResponse marks backend replies that cannot be interpreted.
	// It aborts the flow.
	ErrMalformedResponse = errors.New("submission: malformed backend response")
	// ErrNoTransport is returned when the client has no transport.
	ErrNoTransport = errors.New("submission: transport is required")
)

// Kind classifies a submission result.
type Kind string

const (
	KindAccepted         Kind = "accepted"
	KindRejected         Kind = "rejected"
	KindTransientFailure Kind = "transient_failure"
)

// Result is the interpreted backend reply. Only transient failures may be
// retried without the user editing anything.
type Result struct {
	Kind        Kind   `json:"kind"`
	ReferenceID string `json:"referenceId,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Attempts    int    `json:"attempts"`
}

// Retryable reports whether the result can be retried as is.
func (r Result) Retryable() bool {
	return r.Kind == KindTransientFailure
}

// Request is a single submission call.
type Request struct {
	Kind      string
	SessionID string
	Payload   map[string]any
}

// Response mirrors the backend body `{success, referenceId?, message?}`.
type Response struct {
	Success     bool   `json:"success"`
	ReferenceID string `json:"referenceId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Transport posts a request to the backend. Implementations wrap retryable
// failures with ErrTransient; any other error is treated as fatal.
type Transport interface {
	Submit(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts a function into a Transport.
type TransportFunc func(ctx context.Context, req Request) (Response, error)

// Submit delegates to the underlying function.
func (fn TransportFunc) Submit(ctx context.Context, req Request) (Response, error) {
	return fn(ctx, req)
}

// Option configures a Client.
type Option func(*Client)

// WithEngine sets the engine used to decide field visibility.
func WithEngine(engine *validation.Engine) Option {
	return func(c *Client) {
		if engine != nil {
			c.engine = engine
		}
	}
}

// WithMaxTries bounds the number of transport calls per Submit. One disables
// retries.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackOff supplies the retry schedule. The factory is called once per
// Submit so schedules never leak between calls.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Client) {
		if factory != nil {
			c.backoff = factory
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client serialises sessions into backend payloads and interprets replies.
type Client struct {
	transport Transport
	engine    *validation.Engine
	maxTries  uint
	backoff   func() backoff.BackOff
	logger    *zap.Logger
}

// NewClient constructs a Client. Transient failures are retried three times
// with exponential backoff by default.
func NewClient(transport Transport, options ...Option) *Client {
	c := &Client{
		transport: transport,
		engine:    validation.New(),
		maxTries:  3,
		backoff:   defaultBackOff,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// Submit posts the visible answers of def. Rejections and exhausted
// transient failures are results; malformed replies and other transport
// faults are errors.
func (c *Client) Submit(ctx context.Context, def model.Definition, sessionID string, answers map[string]string) (Result, error) {
	if c.transport == nil {
		return Result{}, ErrNoTransport
	}
	req := Request{
		Kind:      def.Kind,
		SessionID: sessionID,
		Payload:   BuildPayload(def, c.engine, answers),
	}

	attempts := 0
	operation := func() (Response, error) {
		attempts++
		resp, err := c.transport.Submit(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrTransient) {
			c.logger.Warn("submission attempt failed",
				zap.String("kind", def.Kind),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return resp, err
		}
		return resp, backoff.Permanent(err)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		if errors.Is(err, ErrTransient) {
			return Result{Kind: KindTransientFailure, Reason: err.Error(), Attempts: attempts}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("submission: %w", ctxErr)
		}
		return Result{}, fmt.Errorf("submission: submit %s: %w", def.Kind, err)
	}
	return interpret(resp, attempts)
}

func interpret(resp Response, attempts int) (Result, error) {
	if resp.Success {
		ref := strings.TrimSpace(resp.ReferenceID)
		if ref == "" {
			return Result{}, fmt.Errorf("%w: accepted without referenceId", ErrMalformedResponse)
		}
		return Result{Kind: KindAccepted, ReferenceID: ref, Attempts: attempts}, nil
	}
	reason := strings.TrimSpace(resp.Message)
	if reason == "" {
		reason = "Your application could not be accepted."
	}
	return Result{Kind: KindRejected, Reason: reason, Attempts: attempts}, nil
}
