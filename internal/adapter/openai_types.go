package adapter

// OpenAI Chat Completions wire types.

// OpenAIRequest represents an OpenAI chat completion request.
type OpenAIRequest struct {
	// Model specifies which model to use (e.g., "gpt-4o").
	Model string `json:"model"`

	// Messages contains the conversation history.
	Messages []OpenAIMessage `json:"messages"`

	// Temperature controls randomness (0.0-2.0). Optional.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens limits the response length. Optional.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP is nucleus sampling parameter. Optional.
	TopP *float64 `json:"top_p,omitempty"`

	// Stream enables server-sent events for streaming. Optional.
	Stream bool `json:"stream,omitempty"`

	// StreamOptions asks for a trailing usage chunk when streaming. Optional.
	StreamOptions *OpenAIStreamOptions `json:"stream_options,omitempty"`

	// Stop sequences to halt generation (at most 4). Optional.
	Stop []string `json:"stop,omitempty"`

	// PresencePenalty penalizes new tokens based on presence in text. Optional.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// FrequencyPenalty penalizes new tokens based on frequency in text. Optional.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// Seed requests deterministic sampling. Optional.
	Seed *int64 `json:"seed,omitempty"`

	// User is a unique identifier for the end-user. Optional.
	User string `json:"user,omitempty"`
}

// OpenAIStreamOptions configures streaming output.
type OpenAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// OpenAIMessage represents a single message in the conversation.
type OpenAIMessage struct {
	// Role is one of: "system", "user", "assistant".
	Role string `json:"role"`

	// Content is the message text content.
	Content string `json:"content"`
}

// OpenAIResponse represents an OpenAI chat completion response.
type OpenAIResponse struct {
	// ID is the unique identifier for this completion.
	ID string `json:"id"`

	// Object is "chat.completion" or "chat.completion.chunk".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the completion was created.
	Created int64 `json:"created"`

	// Model is the model used for completion.
	Model string `json:"model"`

	// Choices contains the generated completions.
	Choices []OpenAIChoice `json:"choices"`

	// Usage contains token usage statistics. Absent on most stream chunks.
	Usage *OpenAIUsage `json:"usage,omitempty"`

	// SystemFingerprint is the backend configuration fingerprint. Optional.
	SystemFingerprint string `json:"system_fingerprint,omitempty"`

	// Error is set when a stream is aborted by the provider.
	Error *OpenAIErrorDetail `json:"error,omitempty"`
}

// OpenAIChoice represents a single completion choice.
type OpenAIChoice struct {
	// Index is the position of this choice in the list.
	Index int `json:"index"`

	// Message contains the generated message (non-streaming).
	Message OpenAIMessage `json:"message"`

	// Delta contains the incremental message (streaming).
	Delta OpenAIDelta `json:"delta"`

	// FinishReason indicates why the model stopped generating.
	// Values: "stop", "length", "tool_calls", "content_filter", null.
	FinishReason *string `json:"finish_reason"`
}

// OpenAIDelta is the incremental message in a stream chunk.
type OpenAIDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// OpenAIUsage contains token usage statistics.
type OpenAIUsage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`
}

// OpenAIError represents an error response from OpenAI-compatible APIs.
type OpenAIError struct {
	Error OpenAIErrorDetail `json:"error"`
}

// OpenAIErrorDetail contains the error details.
type OpenAIErrorDetail struct {
	// Message is the human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error (e.g., "invalid_request_error").
	Type string `json:"type"`

	// Param is the parameter that caused the error. Optional.
	Param *string `json:"param,omitempty"`

	// Code is the error code. Optional.
	Code *string `json:"code,omitempty"`
}

// OpenAIModelList is the response of GET /models.
type OpenAIModelList struct {
	Object string        `json:"object"`
	Data   []OpenAIModel `json:"data"`
}

// OpenAIModel describes one listed model.
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}
