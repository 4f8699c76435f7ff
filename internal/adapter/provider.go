// Package adapter translates between the unified request/response model and
// each provider's wire format. Adapters are pure: they build and parse
// payloads but never perform I/O.
package adapter

import (
	"fmt"
	"net/http"

	"github.com/hpn/hpn-unillm/internal/domain"
)

// WireRequest is a serialized provider request, ready for the transport.
type WireRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// WireResponse is a raw provider response as received by the transport.
type WireResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Adapter converts unified requests into provider requests and back.
// All provider-specific schema knowledge lives behind this interface.
type Adapter interface {
	// Kind returns the provider this adapter speaks to.
	Kind() domain.ProviderKind

	// Serialize builds the wire request. It fails with
	// *domain.UnsupportedParameterError before anything is sent when the
	// request uses an option the provider cannot express.
	Serialize(req domain.Request, stream bool) (WireRequest, error)

	// Deserialize parses a complete response. Status codes >= 400 become
	// *domain.ProviderError; missing required fields become
	// *domain.MalformedResponseError.
	Deserialize(resp WireResponse) (domain.Response, error)

	// NewChunkDecoder returns a decoder for one stream. Decoders are stateful
	// and must not be shared between streams.
	NewChunkDecoder() ChunkDecoder

	// ModelsRequest builds the request listing available models.
	ModelsRequest() WireRequest

	// DeserializeModels parses a model listing.
	DeserializeModels(resp WireResponse) ([]domain.Model, error)
}

// ChunkDecoder turns stream events into unified chunks.
type ChunkDecoder interface {
	// Decode maps one event. ok is false for events that carry no chunk
	// (keep-alives, bookkeeping). In-stream provider errors are returned as
	// *domain.ProviderError.
	Decode(event string, data []byte) (chunk domain.StreamChunk, ok bool, err error)

	// End is called when the stream ends without a final chunk. It returns a
	// final chunk when the provider already signalled completion.
	End() (domain.StreamChunk, bool)
}

// New returns the adapter for cfg.Kind. The mapping is total over the
// supported kinds; anything else is a *domain.ConfigError.
func New(cfg domain.ProviderConfig) (Adapter, error) {
	opts := []Option{
		WithBaseURL(cfg.Endpoint),
		WithHeaders(cfg.Headers),
	}

	switch cfg.Kind {
	case domain.ProviderOpenAI:
		return NewOpenAIAdapter(cfg.Credential, opts...), nil
	case domain.ProviderAnthropic:
		return NewAnthropicAdapter(cfg.Credential, opts...), nil
	case domain.ProviderGemini:
		return NewGeminiAdapter(cfg.Credential, opts...), nil
	default:
		return nil, &domain.ConfigError{
			Op:  "resolve_adapter",
			Err: fmt.Errorf("%w: %q", domain.ErrUnknownProvider, cfg.Kind),
		}
	}
}
