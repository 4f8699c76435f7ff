// Package transport sends serialized provider requests over HTTP.
// It performs exactly one network exchange per Send and never retries.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hpn/hpn-unillm/internal/domain"
)

const (
	// DefaultUserAgent is sent when the request carries none.
	DefaultUserAgent = "hpn-unillm/1.0"

	// maxErrorBody limits how much of a failed streaming response is buffered.
	maxErrorBody = 64 * 1024

	// maxResponseBody limits a single-shot response body.
	maxResponseBody = 32 * 1024 * 1024
)

// Request is a fully serialized HTTP exchange to perform.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout bounds the whole exchange, or the time to response headers when Stream is set.
	Timeout time.Duration

	// Stream asks for an incremental event stream instead of a buffered body.
	Stream bool
}

// Response is the raw result of a Send.
type Response struct {
	StatusCode int
	Header     http.Header

	// Body is the buffered body. For a successful stream it is nil.
	Body []byte

	// Stream is set only for a streaming request that got a 2xx status.
	Stream *EventStream
}

// Sender performs one network exchange.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Client is the default HTTP Sender.
type Client struct {
	http      *http.Client
	logger    *slog.Logger
	userAgent string
}

// ClientOption is a functional option for configuring Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a Client with a pooled transport.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:      NewHTTPClient(),
		logger:    slog.Default(),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns an *http.Client with tuned connection pooling.
// It sets no overall timeout; Send bounds each exchange through its context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Send performs the exchange described by req.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Stream {
		return c.sendStream(ctx, req)
	}
	return c.sendOnce(ctx, req)
}

func (c *Client) sendOnce(ctx context.Context, req Request) (*Response, error) {
	reqCtx, cancel := withOptionalTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := c.newHTTPRequest(reqCtx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.logger.Debug("sending request",
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.Redacted()),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, "send", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, classify(ctx, "read", err)
	}

	c.logger.Debug("response received",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("latency", time.Since(start)),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) sendStream(ctx context.Context, req Request) (*Response, error) {
	// The stream outlives this call, so the timeout only guards the wait for headers.
	streamCtx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if req.Timeout > 0 {
		timer = time.AfterFunc(req.Timeout, cancel)
	}
	stopTimer := func() bool {
		return timer == nil || timer.Stop()
	}

	httpReq, err := c.newHTTPRequest(streamCtx, req)
	if err != nil {
		stopTimer()
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("opening stream",
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.Redacted()),
	)

	resp, err := c.http.Do(httpReq)
	if !stopTimer() && err == nil {
		// Headers arrived just as the timer fired; the context is already gone.
		resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		if ctx.Err() == nil && errors.Is(err, context.Canceled) {
			err = fmt.Errorf("no response headers within %s: %w", req.Timeout, context.DeadlineExceeded)
		}
		return nil, classify(ctx, "send", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return nil, classify(ctx, "read", readErr)
		}
		c.logger.Debug("stream rejected", slog.Int("status", resp.StatusCode))
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}, nil
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Stream:     newEventStream(ctx, resp.Body, cancel),
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, domain.NewTransportError("build", fmt.Errorf("failed to create http request: %w", err), false)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("User-Agent") == "" && c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	return httpReq, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify turns a network failure into a *domain.TransportError. parent is
// the caller's context: when it is done the caller gave up and a retry is pointless.
func classify(parent context.Context, op string, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return domain.NewTransportError(op, parentErr, false)
	}
	return domain.NewTransportError(op, err, isTransient(err))
}

// isTransient reports whether a network error might go away on its own.
func isTransient(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		certInvalid      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
	)
	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &hostnameErr),
		errors.As(err, &certInvalid),
		errors.As(err, &verifyErr):
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}
	return true
}
