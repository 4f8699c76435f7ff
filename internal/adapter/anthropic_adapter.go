package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hpn/hpn-unillm/internal/domain"
)

const (
	// DefaultAnthropicBaseURL is the default Anthropic API endpoint.
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"

	// AnthropicVersion is the API version header value.
	AnthropicVersion = "2023-06-01"

	// DefaultAnthropicMaxTokens is sent when the request sets no limit; the API requires one.
	DefaultAnthropicMaxTokens = 4096

	anthropicMaxTemperature = 1.0
)

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct {
	base
}

// NewAnthropicAdapter creates a new AnthropicAdapter with the given API key.
func NewAnthropicAdapter(apiKey domain.Secret, opts ...Option) *AnthropicAdapter {
	return &AnthropicAdapter{base: newBase(domain.ProviderAnthropic, apiKey, DefaultAnthropicBaseURL, opts)}
}

// Kind returns the provider identifier.
func (a *AnthropicAdapter) Kind() domain.ProviderKind {
	return domain.ProviderAnthropic
}

// Serialize builds a Messages API request.
func (a *AnthropicAdapter) Serialize(req domain.Request, stream bool) (WireRequest, error) {
	payload, err := a.mapToAnthropicRequest(req, stream)
	if err != nil {
		return WireRequest{}, err
	}

	wire, err := a.newRequest(http.MethodPost, a.baseURL+"/messages", payload)
	if err != nil {
		return WireRequest{}, err
	}
	a.authorize(wire.Header)
	return wire, nil
}

func (a *AnthropicAdapter) authorize(h http.Header) {
	h.Set("x-api-key", a.apiKey.Reveal())
	h.Set("anthropic-version", AnthropicVersion)
}

// mapToAnthropicRequest converts a unified request to Anthropic format.
// Leading system messages become the top-level system prompt.
func (a *AnthropicAdapter) mapToAnthropicRequest(req domain.Request, stream bool) (AnthropicRequest, error) {
	p := req.Params()

	switch {
	case p.FrequencyPenalty != nil:
		return AnthropicRequest{}, a.unsupported("frequency_penalty", "")
	case p.PresencePenalty != nil:
		return AnthropicRequest{}, a.unsupported("presence_penalty", "")
	case p.Seed != nil:
		return AnthropicRequest{}, a.unsupported("seed", "")
	case p.Temperature != nil && *p.Temperature > anthropicMaxTemperature:
		return AnthropicRequest{}, a.unsupported("temperature", fmt.Sprintf("must be at most %g", anthropicMaxTemperature))
	}

	out := AnthropicRequest{
		Model:         req.Model(),
		MaxTokens:     DefaultAnthropicMaxTokens,
		Temperature:   p.Temperature,
		TopP:          p.TopP,
		TopK:          p.TopK,
		StopSequences: p.Stop,
		Stream:        stream,
	}
	if p.MaxTokens != nil {
		out.MaxTokens = *p.MaxTokens
	}
	if p.User != "" {
		out.Metadata = &AnthropicMetadata{UserID: p.User}
	}

	var system []string
	for _, m := range req.Messages() {
		if m.Role == domain.RoleSystem {
			if len(out.Messages) > 0 {
				return AnthropicRequest{}, a.unsupported("messages", "system message after the conversation started")
			}
			system = append(system, m.Content)
			continue
		}
		out.Messages = append(out.Messages, AnthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	if len(out.Messages) == 0 {
		return AnthropicRequest{}, a.unsupported("messages", "at least one user or assistant message is required")
	}
	out.System = strings.Join(system, "\n\n")

	return out, nil
}

// Deserialize parses a Messages API response.
func (a *AnthropicAdapter) Deserialize(resp WireResponse) (domain.Response, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.Response{}, a.providerError(resp, parseAnthropicError)
	}

	var msg AnthropicResponse
	if err := a.decode(resp.Body, &msg); err != nil {
		return domain.Response{}, err
	}
	if msg.Type == "error" {
		var e AnthropicErrorResponse
		_ = json.Unmarshal(resp.Body, &e)
		return domain.Response{}, anthropicErrorFromDetail(e.Error)
	}
	return a.mapToUnifiedResponse(msg)
}

// mapToUnifiedResponse converts an Anthropic response to the unified model.
func (a *AnthropicAdapter) mapToUnifiedResponse(msg AnthropicResponse) (domain.Response, error) {
	if msg.Content == nil {
		return domain.Response{}, a.malformed("missing content", nil)
	}

	usage, err := a.usage(msg.Usage.prompt(), msg.Usage.OutputTokens, 0)
	if err != nil {
		return domain.Response{}, err
	}

	var segments []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			segments = append(segments, block.Text)
		}
	}

	meta := metadata(msg.ID, msg.Model, msg.StopReason)
	if msg.StopSequence != nil {
		meta["stop_sequence"] = *msg.StopSequence
	}
	if msg.Usage.CacheReadInputTokens > 0 {
		meta["cache_read_input_tokens"] = msg.Usage.CacheReadInputTokens
	}
	if msg.Usage.CacheCreationInputTokens > 0 {
		meta["cache_creation_input_tokens"] = msg.Usage.CacheCreationInputTokens
	}

	return domain.NewResponse(segments, usage, mapAnthropicStopReason(msg.StopReason), meta), nil
}

// mapAnthropicStopReason converts Anthropic stop reasons to the unified enum.
func mapAnthropicStopReason(reason string) domain.FinishReason {
	switch reason {
	case "max_tokens":
		return domain.FinishLength
	case "stop_sequence":
		return domain.FinishStopSequence
	case "refusal":
		return domain.FinishContentFilter
	default:
		// "end_turn", "tool_use", "pause_turn" and anything new
		return domain.FinishCompleted
	}
}

func parseAnthropicError(body []byte) (string, string, bool) {
	var e AnthropicErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return "", "", false
	}
	return e.Error.Type, e.Error.Message, true
}

// anthropicErrorFromDetail maps an error event received mid-stream.
func anthropicErrorFromDetail(d AnthropicErrorDetail) *domain.ProviderError {
	pe := domain.NewProviderError(domain.ProviderAnthropic, 0, d.Type, d.Message)
	switch d.Type {
	case "overloaded_error", "api_error", "rate_limit_error":
		pe.SetRetryable(true)
	}
	return pe
}

// NewChunkDecoder returns a decoder for one Messages stream.
func (a *AnthropicAdapter) NewChunkDecoder() ChunkDecoder {
	return &anthropicChunkDecoder{adapter: a}
}

// anthropicChunkDecoder accumulates usage across message_start and
// message_delta, and emits the final chunk on message_stop.
type anthropicChunkDecoder struct {
	adapter    *AnthropicAdapter
	prompt     int
	completion int
	stopReason string
	sawUsage   bool
}

func (d *anthropicChunkDecoder) Decode(event string, data []byte) (domain.StreamChunk, bool, error) {
	var ev AnthropicStreamEvent
	if err := d.adapter.decode(data, &ev); err != nil {
		return domain.StreamChunk{}, false, err
	}
	kind := ev.Type
	if kind == "" {
		kind = event
	}

	switch kind {
	case "message_start":
		if ev.Message != nil {
			d.prompt = ev.Message.Usage.prompt()
			d.completion = ev.Message.Usage.OutputTokens
			d.sawUsage = true
		}
		return domain.StreamChunk{}, false, nil

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "text" && ev.ContentBlock.Text != "" {
			return domain.StreamChunk{Delta: ev.ContentBlock.Text}, true, nil
		}
		return domain.StreamChunk{}, false, nil

	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			return domain.StreamChunk{Delta: ev.Delta.Text}, true, nil
		}
		return domain.StreamChunk{}, false, nil

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			d.stopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			// Counters in message_delta are cumulative.
			d.completion = ev.Usage.OutputTokens
			if p := ev.Usage.prompt(); p > 0 {
				d.prompt = p
			}
			d.sawUsage = true
		}
		return domain.StreamChunk{}, false, nil

	case "message_stop":
		chunk, err := d.final()
		return chunk, err == nil, err

	case "error":
		var detail AnthropicErrorDetail
		if ev.Error != nil {
			detail = *ev.Error
		}
		return domain.StreamChunk{}, false, anthropicErrorFromDetail(detail)

	default:
		// ping, content_block_stop, and future event types
		return domain.StreamChunk{}, false, nil
	}
}

func (d *anthropicChunkDecoder) End() (domain.StreamChunk, bool) {
	if d.stopReason == "" {
		return domain.StreamChunk{}, false
	}
	chunk, err := d.final()
	return chunk, err == nil
}

func (d *anthropicChunkDecoder) final() (domain.StreamChunk, error) {
	chunk := domain.StreamChunk{
		IsFinal:      true,
		FinishReason: mapAnthropicStopReason(d.stopReason),
	}
	if d.sawUsage {
		u, err := d.adapter.usage(d.prompt, d.completion, 0)
		if err != nil {
			return domain.StreamChunk{}, err
		}
		chunk.Usage = &u
	}
	return chunk, nil
}

// ModelsRequest builds GET /models.
func (a *AnthropicAdapter) ModelsRequest() WireRequest {
	wire, _ := a.newRequest(http.MethodGet, a.baseURL+"/models?limit=1000", nil)
	a.authorize(wire.Header)
	return wire
}

// DeserializeModels parses the model list.
func (a *AnthropicAdapter) DeserializeModels(resp WireResponse) ([]domain.Model, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, a.providerError(resp, parseAnthropicError)
	}

	var list AnthropicModelList
	if err := a.decode(resp.Body, &list); err != nil {
		return nil, err
	}
	if list.Data == nil {
		return nil, a.malformed("missing data", nil)
	}

	models := make([]domain.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, domain.Model{
			ID:          m.ID,
			Provider:    domain.ProviderAnthropic,
			DisplayName: m.DisplayName,
		})
	}
	return models, nil
}
