package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hpn/hpn-unillm/internal/domain"
)

const (
	// DefaultOpenAIBaseURL is the default OpenAI API endpoint.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	openAIMaxStop        = 4
	openAIMaxTemperature = 2.0
	openAIMaxPenalty     = 2.0

	openAIDone = "[DONE]"
)

// OpenAIAdapter speaks the OpenAI Chat Completions API.
type OpenAIAdapter struct {
	base
}

// NewOpenAIAdapter creates a new OpenAIAdapter with the given API key.
func NewOpenAIAdapter(apiKey domain.Secret, opts ...Option) *OpenAIAdapter {
	return &OpenAIAdapter{base: newBase(domain.ProviderOpenAI, apiKey, DefaultOpenAIBaseURL, opts)}
}

// Kind returns the provider identifier.
func (a *OpenAIAdapter) Kind() domain.ProviderKind {
	return domain.ProviderOpenAI
}

// Serialize builds a chat completion request.
func (a *OpenAIAdapter) Serialize(req domain.Request, stream bool) (WireRequest, error) {
	payload, err := a.mapToOpenAIRequest(req, stream)
	if err != nil {
		return WireRequest{}, err
	}

	wire, err := a.newRequest(http.MethodPost, a.baseURL+"/chat/completions", payload)
	if err != nil {
		return WireRequest{}, err
	}
	a.authorize(wire.Header)
	return wire, nil
}

func (a *OpenAIAdapter) authorize(h http.Header) {
	h.Set("Authorization", "Bearer "+a.apiKey.Reveal())
}

// mapToOpenAIRequest converts a unified request to OpenAI format.
func (a *OpenAIAdapter) mapToOpenAIRequest(req domain.Request, stream bool) (OpenAIRequest, error) {
	p := req.Params()

	if p.TopK != nil {
		return OpenAIRequest{}, a.unsupported("top_k", "")
	}
	if len(p.Stop) > openAIMaxStop {
		return OpenAIRequest{}, a.unsupported("stop", fmt.Sprintf("at most %d sequences", openAIMaxStop))
	}
	if p.Temperature != nil && *p.Temperature > openAIMaxTemperature {
		return OpenAIRequest{}, a.unsupported("temperature", fmt.Sprintf("must be at most %g", openAIMaxTemperature))
	}
	if p.FrequencyPenalty != nil && (*p.FrequencyPenalty < -openAIMaxPenalty || *p.FrequencyPenalty > openAIMaxPenalty) {
		return OpenAIRequest{}, a.unsupported("frequency_penalty", "must be between -2 and 2")
	}
	if p.PresencePenalty != nil && (*p.PresencePenalty < -openAIMaxPenalty || *p.PresencePenalty > openAIMaxPenalty) {
		return OpenAIRequest{}, a.unsupported("presence_penalty", "must be between -2 and 2")
	}

	msgs := req.Messages()
	out := OpenAIRequest{
		Model:            req.Model(),
		Messages:         make([]OpenAIMessage, 0, len(msgs)),
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		TopP:             p.TopP,
		Stop:             p.Stop,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
		Seed:             p.Seed,
		User:             p.User,
		Stream:           stream,
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, OpenAIMessage{Role: string(m.Role), Content: m.Content})
	}
	if stream {
		out.StreamOptions = &OpenAIStreamOptions{IncludeUsage: true}
	}
	return out, nil
}

// Deserialize parses a chat completion response.
func (a *OpenAIAdapter) Deserialize(resp WireResponse) (domain.Response, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.Response{}, a.providerError(resp, parseOpenAIError)
	}

	var oaResp OpenAIResponse
	if err := a.decode(resp.Body, &oaResp); err != nil {
		return domain.Response{}, err
	}
	return a.mapToUnifiedResponse(oaResp)
}

// mapToUnifiedResponse converts an OpenAI response to the unified model.
func (a *OpenAIAdapter) mapToUnifiedResponse(resp OpenAIResponse) (domain.Response, error) {
	if resp.Error != nil {
		return domain.Response{}, openAIErrorFromDetail(*resp.Error)
	}
	if len(resp.Choices) == 0 {
		return domain.Response{}, a.malformed("missing choices", nil)
	}

	var usage domain.Usage
	if resp.Usage != nil {
		var err error
		usage, err = a.usage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
		if err != nil {
			return domain.Response{}, err
		}
	}

	choice := resp.Choices[0]
	raw := ""
	if choice.FinishReason != nil {
		raw = *choice.FinishReason
	}

	var segments []string
	if choice.Message.Content != "" {
		segments = []string{choice.Message.Content}
	}

	meta := metadata(resp.ID, resp.Model, raw)
	if resp.SystemFingerprint != "" {
		meta["system_fingerprint"] = resp.SystemFingerprint
	}
	if resp.Created != 0 {
		meta["created"] = resp.Created
	}

	return domain.NewResponse(segments, usage, mapOpenAIFinishReason(raw), meta), nil
}

// mapOpenAIFinishReason converts OpenAI finish reasons to the unified enum.
func mapOpenAIFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	default:
		// "stop", "tool_calls", "function_call" and anything new
		return domain.FinishCompleted
	}
}

func parseOpenAIError(body []byte) (string, string, bool) {
	var e OpenAIError
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return "", "", false
	}
	return openAIErrorCode(e.Error), e.Error.Message, true
}

func openAIErrorCode(d OpenAIErrorDetail) string {
	if d.Code != nil && *d.Code != "" {
		return *d.Code
	}
	return d.Type
}

// openAIErrorFromDetail maps an error object found inside a 2xx body or stream.
func openAIErrorFromDetail(d OpenAIErrorDetail) *domain.ProviderError {
	pe := domain.NewProviderError(domain.ProviderOpenAI, 0, openAIErrorCode(d), d.Message)
	if d.Type == "server_error" || openAIErrorCode(d) == "rate_limit_exceeded" {
		pe.SetRetryable(true)
	}
	return pe
}

// NewChunkDecoder returns a decoder for one chat completion stream.
func (a *OpenAIAdapter) NewChunkDecoder() ChunkDecoder {
	return &openAIChunkDecoder{adapter: a}
}

type openAIChunkDecoder struct {
	adapter *OpenAIAdapter
	reason  string
	usage   *domain.Usage
}

func (d *openAIChunkDecoder) Decode(_ string, data []byte) (domain.StreamChunk, bool, error) {
	if string(data) == openAIDone {
		return d.final(), true, nil
	}

	var chunk OpenAIResponse
	if err := d.adapter.decode(data, &chunk); err != nil {
		return domain.StreamChunk{}, false, err
	}
	if chunk.Error != nil {
		return domain.StreamChunk{}, false, openAIErrorFromDetail(*chunk.Error)
	}

	if chunk.Usage != nil {
		u, err := d.adapter.usage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.TotalTokens)
		if err != nil {
			return domain.StreamChunk{}, false, err
		}
		d.usage = &u
	}

	var delta string
	for _, c := range chunk.Choices {
		if c.Index != 0 {
			continue
		}
		delta += c.Delta.Content
		if c.FinishReason != nil && *c.FinishReason != "" {
			d.reason = *c.FinishReason
		}
	}
	if delta == "" {
		return domain.StreamChunk{}, false, nil
	}
	return domain.StreamChunk{Delta: delta}, true, nil
}

// End salvages streams from compatible servers that omit the [DONE] sentinel.
func (d *openAIChunkDecoder) End() (domain.StreamChunk, bool) {
	if d.reason == "" {
		return domain.StreamChunk{}, false
	}
	return d.final(), true
}

func (d *openAIChunkDecoder) final() domain.StreamChunk {
	return domain.StreamChunk{
		IsFinal:      true,
		FinishReason: mapOpenAIFinishReason(d.reason),
		Usage:        d.usage,
	}
}

// ModelsRequest builds GET /models.
func (a *OpenAIAdapter) ModelsRequest() WireRequest {
	wire, _ := a.newRequest(http.MethodGet, a.baseURL+"/models", nil)
	a.authorize(wire.Header)
	return wire
}

// DeserializeModels parses the model list.
func (a *OpenAIAdapter) DeserializeModels(resp WireResponse) ([]domain.Model, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, a.providerError(resp, parseOpenAIError)
	}

	var list OpenAIModelList
	if err := a.decode(resp.Body, &list); err != nil {
		return nil, err
	}
	if list.Data == nil {
		return nil, a.malformed("missing data", nil)
	}

	models := make([]domain.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, domain.Model{ID: m.ID, Provider: domain.ProviderOpenAI})
	}
	return models, nil
}
