package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpn/hpn-unillm/internal/domain"
)

// maxErrorMessage bounds how much of a non-JSON error body ends up in an error.
const maxErrorMessage = 512

// base holds what every adapter needs to build a request.
type base struct {
	kind    domain.ProviderKind
	apiKey  domain.Secret
	baseURL string
	headers map[string]string
}

// Option is a functional option shared by all adapters.
type Option func(*base)

// WithBaseURL overrides the provider's public endpoint. Empty keeps the default.
func WithBaseURL(url string) Option {
	return func(b *base) {
		if url != "" {
			b.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHeaders adds headers sent on every request.
func WithHeaders(headers map[string]string) Option {
	return func(b *base) {
		if len(headers) == 0 {
			return
		}
		if b.headers == nil {
			b.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			b.headers[k] = v
		}
	}
}

func newBase(kind domain.ProviderKind, apiKey domain.Secret, defaultURL string, opts []Option) base {
	b := base{kind: kind, apiKey: apiKey, baseURL: defaultURL}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// newRequest builds a wire request with a JSON body and the common headers.
// Auth headers are added by the caller.
func (b *base) newRequest(method, url string, payload any) (WireRequest, error) {
	req := WireRequest{
		Method: method,
		URL:    url,
		Header: make(http.Header),
	}
	req.Header.Set("Accept", "application/json")

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return WireRequest{}, fmt.Errorf("failed to marshal %s request: %w", b.kind, err)
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (b *base) unsupported(param, reason string) error {
	return &domain.UnsupportedParameterError{Provider: b.kind, Parameter: param, Reason: reason}
}

func (b *base) malformed(reason string, err error) error {
	return &domain.MalformedResponseError{Provider: b.kind, Reason: reason, Err: err}
}

// decode unmarshals a JSON body, reporting failures as malformed responses.
func (b *base) decode(body []byte, v any) error {
	if len(body) == 0 {
		return b.malformed("empty body", nil)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return b.malformed("invalid JSON", err)
	}
	return nil
}

// usage builds a validated Usage, reporting inconsistent counters as malformed.
func (b *base) usage(prompt, completion, total int) (domain.Usage, error) {
	u, err := domain.NewUsage(prompt, completion, total)
	if err != nil {
		return domain.Usage{}, b.malformed("usage", err)
	}
	return u, nil
}

// providerError maps an error response. parse extracts the provider's code and
// message from the body; when it fails the raw body becomes the message.
func (b *base) providerError(resp WireResponse, parse func([]byte) (code, message string, ok bool)) *domain.ProviderError {
	code, message, ok := parse(resp.Body)
	if !ok {
		code = http.StatusText(resp.StatusCode)
		message = truncate(strings.TrimSpace(string(resp.Body)), maxErrorMessage)
	}
	pe := domain.NewProviderError(b.kind, resp.StatusCode, code, message)
	if resp.Header != nil {
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return pe
}

// parseRetryAfter parses a Retry-After header value in seconds or HTTP-date
// form. It returns zero when the value is absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func metadata(id, model, rawReason string) map[string]any {
	meta := map[string]any{}
	if id != "" {
		meta[domain.MetaID] = id
	}
	if model != "" {
		meta[domain.MetaModel] = model
	}
	if rawReason != "" {
		meta[domain.MetaRawFinishReason] = rawReason
	}
	return meta
}
