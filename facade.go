package unillm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hpn/hpn-unillm/internal/adapter"
	"github.com/hpn/hpn-unillm/internal/cache"
	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/hpn/hpn-unillm/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hpn/hpn-unillm"

// Span attribute keys.
const (
	attrProvider         = attribute.Key("llm.provider")
	attrModel            = attribute.Key("llm.model")
	attrAttempts         = attribute.Key("llm.attempts")
	attrStream           = attribute.Key("llm.stream")
	attrFinishReason     = attribute.Key("llm.finish_reason")
	attrPromptTokens     = attribute.Key("llm.usage.prompt_tokens")
	attrCompletionTokens = attribute.Key("llm.usage.completion_tokens")
	attrChunks           = attribute.Key("llm.stream.chunks")
	attrCacheHit         = attribute.Key("llm.cache_hit")
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Facade drives adapter and transport for each call. It holds only
// immutable collaborators and is safe for concurrent use.
type Facade struct {
	sender transport.Sender
	logger *slog.Logger
	tracer trace.Tracer
	sleep  Sleeper
	cache  *cache.ResponseCache

	// Used only to build the default sender.
	httpClient *http.Client
	userAgent  string
}

// Option is a functional option for configuring Facade.
type Option func(*Facade)

// WithSender replaces the HTTP transport.
func WithSender(s transport.Sender) Option {
	return func(f *Facade) {
		if s != nil {
			f.sender = s
		}
	}
}

// WithHTTPClient sends through client instead of the built-in pooled one,
// for proxies, custom TLS or instrumented transports. Ignored when
// WithSender is also given.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Facade) {
		f.httpClient = client
	}
}

// WithUserAgent overrides the User-Agent header sent to providers.
// Ignored when WithSender is also given.
func WithUserAgent(ua string) Option {
	return func(f *Facade) {
		f.userAgent = ua
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Facade) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(f *Facade) {
		if tp != nil {
			f.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(f *Facade) {
		if s != nil {
			f.sleep = s
		}
	}
}

// WithResponseCache serves repeated non-streaming completions from c.
// Only successful responses are stored.
func WithResponseCache(c *cache.ResponseCache) Option {
	return func(f *Facade) {
		f.cache = c
	}
}

// New creates a Facade. Without options it sends over a pooled HTTP client,
// logs to slog.Default and traces through the global tracer provider.
func New(opts ...Option) *Facade {
	f := &Facade{
		logger: slog.Default(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.sender == nil {
		topts := []transport.ClientOption{
			transport.WithLogger(f.logger),
			transport.WithHTTPClient(f.httpClient),
		}
		if f.userAgent != "" {
			topts = append(topts, transport.WithUserAgent(f.userAgent))
		}
		f.sender = transport.NewClient(topts...)
	}
	return f
}

var (
	defaultFacade     *Facade
	defaultFacadeOnce sync.Once
)

// Default returns the shared Facade used by the package-level functions.
func Default() *Facade {
	defaultFacadeOnce.Do(func() {
		defaultFacade = New()
	})
	return defaultFacade
}

// Complete runs req against the provider described by cfg using the default Facade.
func Complete(ctx context.Context, cfg ProviderConfig, req Request) (Response, error) {
	return Default().Complete(ctx, cfg, req)
}

// Stream starts a streamed completion using the default Facade.
func Stream(ctx context.Context, cfg ProviderConfig, req Request) (*ChunkStream, error) {
	return Default().Stream(ctx, cfg, req)
}

// ListModels lists the provider's models using the default Facade.
func ListModels(ctx context.Context, cfg ProviderConfig) ([]Model, error) {
	return Default().ListModels(ctx, cfg)
}

// CheckModel checks a model id using the default Facade.
func CheckModel(ctx context.Context, cfg ProviderConfig, id string) (Model, error) {
	return Default().CheckModel(ctx, cfg, id)
}

// prepare validates the inputs shared by every call and resolves the adapter.
func (f *Facade) prepare(cfg ProviderConfig, req *Request) (adapter.Adapter, error) {
	if req != nil && req.IsZero() {
		return nil, fmt.Errorf("%w: request was not built with NewRequest", domain.ErrInvalidRequest)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return adapter.New(cfg)
}

// Complete sends req and returns the unified response, retrying transient
// failures under cfg's retry policy. A request with the streaming flag set
// is streamed and aggregated.
func (f *Facade) Complete(ctx context.Context, cfg ProviderConfig, req Request) (Response, error) {
	if req.Streaming() {
		stream, err := f.Stream(ctx, cfg, req)
		if err != nil {
			return Response{}, err
		}
		return stream.Collect()
	}

	ctx, span := f.startSpan(ctx, "unillm.Complete", cfg.Kind, req.Model(), false)
	defer span.End()

	a, err := f.prepare(cfg, &req)
	if err != nil {
		return Response{}, failSpan(span, err)
	}

	wire, err := a.Serialize(req, false)
	if err != nil {
		return Response{}, failSpan(span, err)
	}

	var key string
	if f.cache != nil {
		key = cache.Key(cfg.Kind, wire.URL, wire.Body, cfg.Credential)
		if resp, ok := f.cache.Get(key); ok {
			f.logger.Debug("serving cached response",
				slog.String("provider", string(cfg.Kind)),
				slog.String("model", req.Model()),
			)
			span.SetAttributes(attrCacheHit.Bool(true))
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}
	}

	var resp Response
	attempts, err := f.withRetry(ctx, cfg, "complete", func(ctx context.Context) error {
		raw, err := f.sender.Send(ctx, toTransport(wire, cfg.EffectiveTimeout(), false))
		if err != nil {
			return err
		}
		resp, err = a.Deserialize(fromTransport(raw))
		return err
	})
	span.SetAttributes(attrAttempts.Int(attempts))
	if err != nil {
		return Response{}, failSpan(span, err)
	}

	span.SetAttributes(
		attrFinishReason.String(string(resp.FinishReason)),
		attrPromptTokens.Int(resp.Usage.Prompt),
		attrCompletionTokens.Int(resp.Usage.Completion),
	)
	if f.cache != nil {
		f.cache.Set(key, resp)
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Stream starts a streamed completion. Retries happen only until response
// headers arrive; once chunks flow, errors surface through the stream.
// The caller must Close the returned stream or drain it to the final chunk.
func (f *Facade) Stream(ctx context.Context, cfg ProviderConfig, req Request) (*ChunkStream, error) {
	ctx, span := f.startSpan(ctx, "unillm.Stream", cfg.Kind, req.Model(), true)

	a, err := f.prepare(cfg, &req)
	if err != nil {
		err = failSpan(span, err)
		span.End()
		return nil, err
	}

	wire, err := a.Serialize(req, true)
	if err != nil {
		err = failSpan(span, err)
		span.End()
		return nil, err
	}

	var events *transport.EventStream
	attempts, err := f.withRetry(ctx, cfg, "stream", func(ctx context.Context) error {
		raw, err := f.sender.Send(ctx, toTransport(wire, cfg.EffectiveTimeout(), true))
		if err != nil {
			return err
		}
		if raw.Stream == nil {
			// Error statuses arrive buffered; let the adapter build the ProviderError.
			if _, err := a.Deserialize(fromTransport(raw)); err != nil {
				return err
			}
			return &domain.MalformedResponseError{
				Provider: cfg.Kind,
				Reason:   fmt.Sprintf("status %d without an event stream", raw.StatusCode),
			}
		}
		events = raw.Stream
		return nil
	})
	span.SetAttributes(attrAttempts.Int(attempts))
	if err != nil {
		err = failSpan(span, err)
		span.End()
		return nil, err
	}

	return newChunkStream(events, a.NewChunkDecoder(), cfg.Kind, req.Model(), span, f.logger), nil
}

// ListModels returns the models the provider offers to this credential.
func (f *Facade) ListModels(ctx context.Context, cfg ProviderConfig) ([]Model, error) {
	ctx, span := f.startSpan(ctx, "unillm.ListModels", cfg.Kind, "", false)
	defer span.End()

	a, err := f.prepare(cfg, nil)
	if err != nil {
		return nil, failSpan(span, err)
	}

	wire := a.ModelsRequest()
	var models []Model
	attempts, err := f.withRetry(ctx, cfg, "list_models", func(ctx context.Context) error {
		raw, err := f.sender.Send(ctx, toTransport(wire, cfg.EffectiveTimeout(), false))
		if err != nil {
			return err
		}
		models, err = a.DeserializeModels(fromTransport(raw))
		return err
	})
	span.SetAttributes(attrAttempts.Int(attempts))
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return models, nil
}

// CheckModel reports whether the provider lists id, returning its entry.
// A missing model is an error wrapping ErrModelNotFound.
func (f *Facade) CheckModel(ctx context.Context, cfg ProviderConfig, id string) (Model, error) {
	models, err := f.ListModels(ctx, cfg)
	if err != nil {
		return Model{}, err
	}
	want := strings.TrimPrefix(id, "models/")
	for _, m := range models {
		if m.ID == id || m.ID == want {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %s has no model %q", domain.ErrModelNotFound, cfg.Kind, id)
}

func (f *Facade) startSpan(ctx context.Context, name string, kind ProviderKind, model string, stream bool) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attrProvider.String(string(kind)),
		attrStream.Bool(stream),
	}
	if model != "" {
		attrs = append(attrs, attrModel.String(model))
	}
	return f.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// failSpan records err on span and returns it unchanged.
func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func toTransport(w adapter.WireRequest, timeout time.Duration, stream bool) transport.Request {
	return transport.Request{
		Method:  w.Method,
		URL:     w.URL,
		Header:  w.Header.Clone(),
		Body:    w.Body,
		Timeout: timeout,
		Stream:  stream,
	}
}

func fromTransport(r *transport.Response) adapter.WireResponse {
	return adapter.WireResponse{
		StatusCode: r.StatusCode,
		Header:     r.Header,
		Body:       r.Body,
	}
}
