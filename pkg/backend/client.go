package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/otp"
	"github.com/goliatone/go-formwizard/pkg/submission"
)

// Header names sent with every request.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSession   = "X-Wizard-Session"
)

var (
	// ErrTransient is the same sentinel submission.Client retries on.
	ErrTransient = submission.ErrTransient
	// ErrMalformedResponse is returned for bodies that cannot be decoded.
	ErrMalformedResponse = submission.ErrMalformedResponse
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHeader adds a static header, for example an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if key != "" {
			c.headers.Set(key, value)
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

// WithRequestIDs overrides the request id generator.
func WithRequestIDs(next func() string) Option {
	return func(c *Client) {
		if next != nil {
			c.requestID = next
		}
	}
}

// Client speaks the application and passcode endpoints. It implements both
// submission.Transport and otp.Backend.
type Client struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	headers   http.Header
	session   string
	requestID func() string
	logger    *zap.Logger
}

var (
	_ submission.Transport = (*Client)(nil)
	_ otp.Backend          = (*Client)(nil)
)

// New constructs a Client rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:      parsed,
		http:      http.DefaultClient,
		timeout:   15 * time.Second,
		headers:   make(http.Header),
		requestID: uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ForSession returns a copy that tags every request with sessionID.
func (c *Client) ForSession(sessionID string) *Client {
	clone := *c
	clone.headers = c.headers.Clone()
	clone.session = sessionID
	return &clone
}

// Submit implements submission.Transport.
func (c *Client) Submit(ctx context.Context, req submission.Request) (submission.Response, error) {
	kind := strings.Trim(req.Kind, "/")
	if kind == "" {
		return submission.Response{}, errors.New("backend: application kind is required")
	}
	var out applicationResponse
	if err := c.post(ctx, "/applications/"+kind, req.SessionID, req.Payload, &out); err != nil {
		return submission.Response{}, err
	}
	if out.Success == nil {
		return submission.Response{}, fmt.Errorf("%w: /applications/%s: missing success", ErrMalformedResponse, kind)
	}
	return submission.Response{
		Success:     *out.Success,
		ReferenceID: out.ReferenceID,
		Message:     out.Message,
	}, nil
}

// applicationResponse keeps success nullable so that bodies without it
// ({}, null, unrelated shapes) are reported as malformed.
type applicationResponse struct {
	Success     *bool  `json:"success"`
	ReferenceID string `json:"referenceId,omitempty"`
	Message     string `json:"message,omitempty"`
}

type issueRequest struct {
	Contact string `json:"contact"`
}

type challengeRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code,omitempty"`
}

type issueResponse struct {
	ChallengeID      string `json:"challengeId"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

type verifyResponse struct {
	Verified *bool  `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// Issue implements otp.Backend.
func (c *Client) Issue(ctx context.Context, contact string) (otp.Issued, error) {
	var out issueResponse
	if err := c.post(ctx, "/otp/issue", "", issueRequest{Contact: contact}, &out); err != nil {
		return otp.Issued{}, err
	}
	return out.issued()
}

// Resend implements otp.Backend.
func (c *Client) Resend(ctx context.Context, challengeID string) (otp.Issued, error) {
	var out issueResponse
	if err := c.post(ctx, "/otp/resend", "", challengeRequest{ChallengeID: challengeID}, &out); err != nil {
		return otp.Issued{}, err
	}
	return out.issued()
}

// Verify implements otp.Backend.
func (c *Client) Verify(ctx context.Context, challengeID, code string) (otp.Verification, error) {
	var out verifyResponse
	if err := c.post(ctx, "/otp/verify", "", challengeRequest{ChallengeID: challengeID, Code: code}, &out); err != nil {
		return otp.Verification{}, err
	}
	if out.Verified == nil {
		return otp.Verification{}, fmt.Errorf("%w: /otp/verify: missing verified", ErrMalformedResponse)
	}
	if *out.Verified {
		return otp.Verification{Verified: true}, nil
	}
	switch out.Reason {
	case "", otp.ReasonInvalid:
		return otp.Verification{Reason: otp.ReasonInvalid}, nil
	case otp.ReasonExpired, otp.ReasonLocked:
		return otp.Verification{Reason: out.Reason}, nil
	default:
		return otp.Verification{}, fmt.Errorf("%w: unknown verify reason %q", ErrMalformedResponse, out.Reason)
	}
}

func (r issueResponse) issued() (otp.Issued, error) {
	if strings.TrimSpace(r.ChallengeID) == "" {
		return otp.Issued{}, fmt.Errorf("%w: missing challengeId", ErrMalformedResponse)
	}
	if r.ExpiresInSeconds < 0 {
		return otp.Issued{}, fmt.Errorf("%w: negative expiresInSeconds", ErrMalformedResponse)
	}
	return otp.Issued{
		ChallengeID: r.ChallengeID,
		ExpiresIn:   time.Duration(r.ExpiresInSeconds) * time.Second,
	}, nil
}

func (c *Client) post(ctx context.Context, path, sessionID string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: encode %s: %w", path, err)
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: build %s: %w", path, err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	requestID := c.requestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if sessionID == "" {
		sessionID = c.session
	}
	if sessionID != "" {
		req.Header.Set(HeaderSession, sessionID)
	}

	logger := c.logger.With(zap.String("path", path), zap.String("request_id", requestID))
	started := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("backend request failed", zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrTransient, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	logger.Debug("backend response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if transientStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: %s: status %d", ErrTransient, path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrTransient, path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: status %d: %v", ErrMalformedResponse, path, resp.StatusCode, err)
	}
	return nil
}

// transientStatus reports statuses worth retrying without user action.
func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
