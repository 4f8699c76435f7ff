package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hpn/hpn-unillm/internal/domain"
)

const (
	// DefaultGeminiBaseURL is the default Gemini API endpoint.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiMaxStop        = 5
	geminiMaxTemperature = 2.0
)

// GeminiAdapter speaks the Google Gemini generateContent API.
type GeminiAdapter struct {
	base
}

// NewGeminiAdapter creates a new GeminiAdapter with the given API key.
func NewGeminiAdapter(apiKey domain.Secret, opts ...Option) *GeminiAdapter {
	return &GeminiAdapter{base: newBase(domain.ProviderGemini, apiKey, DefaultGeminiBaseURL, opts)}
}

// Kind returns the provider identifier.
func (g *GeminiAdapter) Kind() domain.ProviderKind {
	return domain.ProviderGemini
}

// Serialize builds a generateContent (or streamGenerateContent) request.
func (g *GeminiAdapter) Serialize(req domain.Request, stream bool) (WireRequest, error) {
	payload, err := g.mapToGeminiRequest(req)
	if err != nil {
		return WireRequest{}, err
	}

	model := url.PathEscape(g.mapModelName(req.Model()))
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	if stream {
		endpoint = fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.baseURL, model)
	}

	wire, err := g.newRequest(http.MethodPost, endpoint, payload)
	if err != nil {
		return WireRequest{}, err
	}
	g.authorize(wire.Header)
	return wire, nil
}

// authorize sends the key as a header so it never appears in URLs or logs.
func (g *GeminiAdapter) authorize(h http.Header) {
	h.Set("x-goog-api-key", g.apiKey.Reveal())
}

// mapToGeminiRequest converts a unified request to Gemini format.
func (g *GeminiAdapter) mapToGeminiRequest(req domain.Request) (GeminiRequest, error) {
	p := req.Params()

	if p.User != "" {
		return GeminiRequest{}, g.unsupported("user", "")
	}
	if len(p.Stop) > geminiMaxStop {
		return GeminiRequest{}, g.unsupported("stop", fmt.Sprintf("at most %d sequences", geminiMaxStop))
	}
	if p.Temperature != nil && *p.Temperature > geminiMaxTemperature {
		return GeminiRequest{}, g.unsupported("temperature", fmt.Sprintf("must be at most %g", geminiMaxTemperature))
	}

	geminiReq := GeminiRequest{
		Contents: make([]GeminiContent, 0),
	}

	var systemParts []GeminiPart

	// Process messages and handle role mapping
	for _, msg := range req.Messages() {
		switch msg.Role {
		case domain.RoleSystem:
			// Gemini has no system role; all system text goes to systemInstruction
			systemParts = append(systemParts, GeminiPart{Text: msg.Content})
		case domain.RoleUser:
			geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
				Role:  "user",
				Parts: []GeminiPart{{Text: msg.Content}},
			})
		case domain.RoleAssistant:
			// "assistant" maps to Gemini "model"
			geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
				Role:  "model",
				Parts: []GeminiPart{{Text: msg.Content}},
			})
		}
	}

	if len(geminiReq.Contents) == 0 {
		return GeminiRequest{}, g.unsupported("messages", "at least one user or assistant message is required")
	}
	if len(systemParts) > 0 {
		geminiReq.SystemInstruction = &GeminiContent{Parts: systemParts}
	}

	cfg := GeminiGenerationConfig{
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		TopK:             p.TopK,
		MaxOutputTokens:  p.MaxTokens,
		StopSequences:    p.Stop,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Seed:             p.Seed,
	}
	if !cfg.isEmpty() {
		geminiReq.GenerationConfig = &cfg
	}

	return geminiReq, nil
}

// Deserialize parses a generateContent response.
func (g *GeminiAdapter) Deserialize(resp WireResponse) (domain.Response, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.Response{}, g.providerError(resp, parseGeminiError)
	}

	var geminiResp GeminiResponse
	if err := g.decode(resp.Body, &geminiResp); err != nil {
		return domain.Response{}, err
	}
	return g.mapToUnifiedResponse(geminiResp)
}

// mapToUnifiedResponse converts a Gemini response to the unified model.
func (g *GeminiAdapter) mapToUnifiedResponse(resp GeminiResponse) (domain.Response, error) {
	if resp.Error != nil {
		return domain.Response{}, geminiErrorFromDetail(*resp.Error)
	}

	usage, err := g.mapUsage(resp.UsageMetadata)
	if err != nil {
		return domain.Response{}, err
	}

	if len(resp.Candidates) == 0 {
		// A blocked prompt yields no candidates but is a well-formed answer.
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			meta := metadata(resp.ResponseID, resp.ModelVersion, resp.PromptFeedback.BlockReason)
			meta["block_reason"] = resp.PromptFeedback.BlockReason
			return domain.NewResponse(nil, usage, domain.FinishContentFilter, meta), nil
		}
		return domain.Response{}, g.malformed("missing candidates", nil)
	}

	candidate := resp.Candidates[0]
	meta := metadata(resp.ResponseID, resp.ModelVersion, candidate.FinishReason)
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount != usage.Total {
		meta["provider_total_tokens"] = resp.UsageMetadata.TotalTokenCount
	}

	return domain.NewResponse(candidate.textParts(), usage, g.mapFinishReason(candidate.FinishReason), meta), nil
}

// mapUsage derives the unified counters. Thinking tokens count as completion;
// the provider total may include categories the unified model does not track,
// so the total is recomputed.
func (g *GeminiAdapter) mapUsage(u *GeminiUsageMetadata) (domain.Usage, error) {
	if u == nil {
		return domain.Usage{}, nil
	}
	return g.usage(
		u.PromptTokenCount+u.ToolUsePromptTokenCount,
		u.CandidatesTokenCount+u.ThoughtsTokenCount,
		0,
	)
}

// mapModelName strips the "models/" resource prefix some callers pass through.
func (g *GeminiAdapter) mapModelName(model string) string {
	return strings.TrimPrefix(model, "models/")
}

// mapFinishReason converts Gemini finish reasons to the unified enum.
func (g *GeminiAdapter) mapFinishReason(reason string) domain.FinishReason {
	reasonMap := map[string]domain.FinishReason{
		"STOP":                      domain.FinishCompleted,
		"MAX_TOKENS":                domain.FinishLength,
		"SAFETY":                    domain.FinishContentFilter,
		"RECITATION":                domain.FinishContentFilter,
		"BLOCKLIST":                 domain.FinishContentFilter,
		"PROHIBITED_CONTENT":        domain.FinishContentFilter,
		"SPII":                      domain.FinishContentFilter,
		"IMAGE_SAFETY":              domain.FinishContentFilter,
		"MALFORMED_FUNCTION_CALL":   domain.FinishError,
		"OTHER":                     domain.FinishCompleted,
		"FINISH_REASON_UNSPECIFIED": domain.FinishCompleted,
	}

	if mapped, ok := reasonMap[reason]; ok {
		return mapped
	}

	return domain.FinishCompleted
}

func parseGeminiError(body []byte) (string, string, bool) {
	var e GeminiErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return "", "", false
	}
	return e.Error.Status, e.Error.Message, true
}

func geminiErrorFromDetail(d GeminiErrorDetail) *domain.ProviderError {
	return domain.NewProviderError(domain.ProviderGemini, d.Code, d.Status, d.Message)
}

// NewChunkDecoder returns a decoder for one streamGenerateContent stream.
func (g *GeminiAdapter) NewChunkDecoder() ChunkDecoder {
	return &geminiChunkDecoder{adapter: g}
}

// geminiChunkDecoder treats the event whose candidate carries a finishReason as final.
type geminiChunkDecoder struct {
	adapter *GeminiAdapter
	usage   *domain.Usage
}

func (d *geminiChunkDecoder) Decode(_ string, data []byte) (domain.StreamChunk, bool, error) {
	var resp GeminiResponse
	if err := d.adapter.decode(data, &resp); err != nil {
		return domain.StreamChunk{}, false, err
	}
	if resp.Error != nil {
		return domain.StreamChunk{}, false, geminiErrorFromDetail(*resp.Error)
	}

	if resp.UsageMetadata != nil {
		u, err := d.adapter.mapUsage(resp.UsageMetadata)
		if err != nil {
			return domain.StreamChunk{}, false, err
		}
		d.usage = &u
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return domain.StreamChunk{IsFinal: true, FinishReason: domain.FinishContentFilter, Usage: d.usage}, true, nil
		}
		return domain.StreamChunk{}, false, nil
	}

	candidate := resp.Candidates[0]
	chunk := domain.StreamChunk{Delta: strings.Join(candidate.textParts(), "")}
	if candidate.FinishReason != "" {
		chunk.IsFinal = true
		chunk.FinishReason = d.adapter.mapFinishReason(candidate.FinishReason)
		chunk.Usage = d.usage
	}
	if chunk.Delta == "" && !chunk.IsFinal {
		return domain.StreamChunk{}, false, nil
	}
	return chunk, true, nil
}

func (d *geminiChunkDecoder) End() (domain.StreamChunk, bool) {
	return domain.StreamChunk{}, false
}

// ModelsRequest builds GET /models.
func (g *GeminiAdapter) ModelsRequest() WireRequest {
	wire, _ := g.newRequest(http.MethodGet, g.baseURL+"/models?pageSize=1000", nil)
	g.authorize(wire.Header)
	return wire
}

// DeserializeModels parses the model list.
func (g *GeminiAdapter) DeserializeModels(resp WireResponse) ([]domain.Model, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, g.providerError(resp, parseGeminiError)
	}

	var list GeminiModelList
	if err := g.decode(resp.Body, &list); err != nil {
		return nil, err
	}
	if list.Models == nil {
		return nil, g.malformed("missing models", nil)
	}

	models := make([]domain.Model, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, domain.Model{
			ID:          g.mapModelName(m.Name),
			Provider:    domain.ProviderGemini,
			DisplayName: m.DisplayName,
		})
	}
	return models, nil
}

// ============================================================================
// Gemini API Types
// ============================================================================

// GeminiRequest represents a Gemini generateContent request.
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents a content block in Gemini format.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents a part of a content block.
type GeminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

// GeminiGenerationConfig contains generation parameters.
type GeminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
}

func (c GeminiGenerationConfig) isEmpty() bool {
	return c.Temperature == nil && c.TopP == nil && c.TopK == nil && c.MaxOutputTokens == nil &&
		len(c.StopSequences) == 0 && c.FrequencyPenalty == nil && c.PresencePenalty == nil && c.Seed == nil
}

// GeminiResponse represents a Gemini generateContent response or stream event.
type GeminiResponse struct {
	Candidates     []GeminiCandidate     `json:"candidates"`
	PromptFeedback *GeminiPromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *GeminiUsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string                `json:"modelVersion,omitempty"`
	ResponseID     string                `json:"responseId,omitempty"`
	Error          *GeminiErrorDetail    `json:"error,omitempty"`
}

// GeminiCandidate represents a single generated candidate.
type GeminiCandidate struct {
	Content       GeminiContent        `json:"content"`
	FinishReason  string               `json:"finishReason,omitempty"`
	Index         int                  `json:"index"`
	SafetyRatings []GeminiSafetyRating `json:"safetyRatings,omitempty"`
}

// textParts returns the visible text parts, skipping model thoughts.
func (c GeminiCandidate) textParts() []string {
	var parts []string
	for _, p := range c.Content.Parts {
		if p.Thought || p.Text == "" {
			continue
		}
		parts = append(parts, p.Text)
	}
	return parts
}

// GeminiPromptFeedback reports why a prompt was blocked.
type GeminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// GeminiSafetyRating contains safety evaluation for a response.
type GeminiSafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

// GeminiUsageMetadata contains token usage information.
type GeminiUsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	ToolUsePromptTokenCount int `json:"toolUsePromptTokenCount,omitempty"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount,omitempty"`
	TotalTokenCount         int `json:"totalTokenCount"`
}

// GeminiErrorResponse represents an error response from Gemini API.
type GeminiErrorResponse struct {
	Error GeminiErrorDetail `json:"error"`
}

// GeminiErrorDetail contains error details.
type GeminiErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GeminiModelList is the response of GET /models.
type GeminiModelList struct {
	Models        []GeminiModel `json:"models"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

// GeminiModel describes one listed model.
type GeminiModel struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}
