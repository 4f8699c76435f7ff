package domain

import (
	"fmt"
	"strings"
)

// FinishReason says why generation stopped.
type FinishReason string

const (
	FinishCompleted     FinishReason = "completed"
	FinishLength        FinishReason = "length"
	FinishStopSequence  FinishReason = "stop_sequence"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Usage reports token accounting for one call.
// Prompt + Completion == Total always holds for values built with NewUsage.
type Usage struct {
	Prompt     int `json:"prompt_tokens"`
	Completion int `json:"completion_tokens"`
	Total      int `json:"total_tokens"`
}

// NewUsage builds a Usage. A zero total is derived from the parts; a non-zero
// total that disagrees with the parts is an error.
func NewUsage(prompt, completion, total int) (Usage, error) {
	if prompt < 0 || completion < 0 || total < 0 {
		return Usage{}, fmt.Errorf("negative token count (prompt=%d completion=%d total=%d)", prompt, completion, total)
	}
	sum := prompt + completion
	if total == 0 {
		total = sum
	}
	if total != sum {
		return Usage{}, fmt.Errorf("token counts disagree: %d + %d != %d", prompt, completion, total)
	}
	return Usage{Prompt: prompt, Completion: completion, Total: total}, nil
}

// Add returns the sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		Prompt:     u.Prompt + other.Prompt,
		Completion: u.Completion + other.Completion,
		Total:      u.Total + other.Total,
	}
}

// Metadata keys set by adapters.
const (
	MetaID              = "id"
	MetaModel           = "model"
	MetaRawFinishReason = "raw_finish_reason"
)

// Response is the provider-neutral result of a completion.
type Response struct {
	// Text is the concatenation of Segments.
	Text string `json:"text"`

	// Segments are the generated text parts, in order.
	Segments []string `json:"segments,omitempty"`

	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`

	// Metadata carries provider extras. The facade never interprets it.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResponse builds a Response from its segments.
func NewResponse(segments []string, usage Usage, reason FinishReason, meta map[string]any) Response {
	if meta == nil {
		meta = map[string]any{}
	}
	return Response{
		Text:         strings.Join(segments, ""),
		Segments:     segments,
		Usage:        usage,
		FinishReason: reason,
		Metadata:     meta,
	}
}

// StreamChunk is one incremental piece of a streamed completion.
type StreamChunk struct {
	Delta   string `json:"delta"`
	IsFinal bool   `json:"is_final"`

	// FinishReason is set on the final chunk only.
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Usage is set on the final chunk when the provider reports it.
	Usage *Usage `json:"usage,omitempty"`
}
