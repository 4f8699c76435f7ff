package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Role tags a message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single role-tagged conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Params holds the optional generation parameters. A nil field means
// "let the provider decide".
type Params struct {
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	TopK             *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Seed             *int64
	Stop             []string
	User             string
}

func (p Params) clone() Params {
	out := p
	out.Temperature = clonePtr(p.Temperature)
	out.MaxTokens = clonePtr(p.MaxTokens)
	out.TopP = clonePtr(p.TopP)
	out.TopK = clonePtr(p.TopK)
	out.FrequencyPenalty = clonePtr(p.FrequencyPenalty)
	out.PresencePenalty = clonePtr(p.PresencePenalty)
	out.Seed = clonePtr(p.Seed)
	out.Stop = slices.Clone(p.Stop)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Request is a provider-neutral completion request. It is immutable once
// built: accessors return copies.
type Request struct {
	model     string
	messages  []Message
	params    Params
	streaming bool
}

// RequestOption is a functional option for NewRequest.
type RequestOption func(*Request)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) RequestOption {
	return func(r *Request) { r.params.Temperature = &t }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) RequestOption {
	return func(r *Request) { r.params.MaxTokens = &n }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) RequestOption {
	return func(r *Request) { r.params.TopP = &p }
}

// WithTopK sets top-k sampling.
func WithTopK(k int) RequestOption {
	return func(r *Request) { r.params.TopK = &k }
}

// WithFrequencyPenalty sets the frequency penalty.
func WithFrequencyPenalty(p float64) RequestOption {
	return func(r *Request) { r.params.FrequencyPenalty = &p }
}

// WithPresencePenalty sets the presence penalty.
func WithPresencePenalty(p float64) RequestOption {
	return func(r *Request) { r.params.PresencePenalty = &p }
}

// WithSeed sets the sampling seed.
func WithSeed(seed int64) RequestOption {
	return func(r *Request) { r.params.Seed = &seed }
}

// WithStop sets the stop sequences.
func WithStop(stop ...string) RequestOption {
	return func(r *Request) { r.params.Stop = slices.Clone(stop) }
}

// WithUser sets the end-user identifier forwarded to the provider.
func WithUser(user string) RequestOption {
	return func(r *Request) { r.params.User = user }
}

// WithStreaming marks the request as streaming.
func WithStreaming(stream bool) RequestOption {
	return func(r *Request) { r.streaming = stream }
}

// WithParams replaces all generation parameters at once.
func WithParams(p Params) RequestOption {
	return func(r *Request) { r.params = p.clone() }
}

// NewRequest validates and builds a Request. Every failure wraps ErrInvalidRequest.
func NewRequest(model string, messages []Message, opts ...RequestOption) (Request, error) {
	r := Request{
		model:    strings.TrimSpace(model),
		messages: slices.Clone(messages),
	}
	for _, opt := range opts {
		opt(&r)
	}
	// options may share caller slices
	r.params = r.params.clone()

	if err := r.validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func (r Request) validate() error {
	if r.model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if len(r.messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	for i, m := range r.messages {
		if !m.Role.IsValid() {
			return fmt.Errorf("%w: messages[%d] has unknown role %q", ErrInvalidRequest, i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("%w: messages[%d] is empty", ErrInvalidRequest, i)
		}
	}

	p := r.params
	if p.MaxTokens != nil && *p.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	if p.Temperature != nil && *p.Temperature < 0 {
		return fmt.Errorf("%w: temperature cannot be negative", ErrInvalidRequest)
	}
	if p.TopP != nil && (*p.TopP < 0 || *p.TopP > 1) {
		return fmt.Errorf("%w: top_p must be between 0 and 1", ErrInvalidRequest)
	}
	if p.TopK != nil && *p.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidRequest)
	}
	for i, s := range p.Stop {
		if s == "" {
			return fmt.Errorf("%w: stop[%d] is empty", ErrInvalidRequest, i)
		}
	}
	return nil
}

// Model returns the target model identifier.
func (r Request) Model() string { return r.model }

// Messages returns a copy of the conversation.
func (r Request) Messages() []Message { return slices.Clone(r.messages) }

// Params returns a copy of the generation parameters.
func (r Request) Params() Params { return r.params.clone() }

// Streaming reports whether the caller asked for incremental delivery.
func (r Request) Streaming() bool { return r.streaming }

// IsZero reports whether r was never built.
func (r Request) IsZero() bool { return r.model == "" }
