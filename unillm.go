// Package unillm is a client library that talks to several hosted language
// model APIs through one request/response model.
//
// A call builds a Request, picks a ProviderConfig (usually from LoadConfig)
// and hands both to Complete or Stream:
//
//	settings, err := unillm.LoadConfig("")
//	cfg, err := settings.Provider("anthropic")
//	req, err := unillm.NewRequest("claude-sonnet-4-5",
//		[]unillm.Message{unillm.UserMessage("Hello")},
//		unillm.WithMaxTokens(256),
//	)
//	resp, err := unillm.Complete(ctx, cfg, req)
package unillm

import (
	"github.com/hpn/hpn-unillm/internal/domain"
)

// Request model.
type (
	Request       = domain.Request
	RequestOption = domain.RequestOption
	Message       = domain.Message
	Role          = domain.Role
	Params        = domain.Params
)

// Response model.
type (
	Response     = domain.Response
	StreamChunk  = domain.StreamChunk
	Usage        = domain.Usage
	FinishReason = domain.FinishReason
	Model        = domain.Model
)

// Provider configuration.
type (
	ProviderKind   = domain.ProviderKind
	ProviderConfig = domain.ProviderConfig
	RetryPolicy    = domain.RetryPolicy
	Secret         = domain.Secret
)

// Error taxonomy.
type (
	ConfigError               = domain.ConfigError
	ValidationError           = domain.ValidationError
	UnsupportedParameterError = domain.UnsupportedParameterError
	TransportError            = domain.TransportError
	ProviderError             = domain.ProviderError
	MalformedResponseError    = domain.MalformedResponseError
)

const (
	RoleSystem    = domain.RoleSystem
	RoleUser      = domain.RoleUser
	RoleAssistant = domain.RoleAssistant

	ProviderOpenAI    = domain.ProviderOpenAI
	ProviderAnthropic = domain.ProviderAnthropic
	ProviderGemini    = domain.ProviderGemini

	FinishCompleted     = domain.FinishCompleted
	FinishLength        = domain.FinishLength
	FinishStopSequence  = domain.FinishStopSequence
	FinishContentFilter = domain.FinishContentFilter
	FinishError         = domain.FinishError
)

var (
	ErrInvalidRequest  = domain.ErrInvalidRequest
	ErrUnknownProvider = domain.ErrUnknownProvider
	ErrStreamClosed    = domain.ErrStreamClosed
	ErrModelNotFound   = domain.ErrModelNotFound
)

var (
	NewRequest       = domain.NewRequest
	SystemMessage    = domain.SystemMessage
	UserMessage      = domain.UserMessage
	AssistantMessage = domain.AssistantMessage

	WithTemperature      = domain.WithTemperature
	WithMaxTokens        = domain.WithMaxTokens
	WithTopP             = domain.WithTopP
	WithTopK             = domain.WithTopK
	WithFrequencyPenalty = domain.WithFrequencyPenalty
	WithPresencePenalty  = domain.WithPresencePenalty
	WithSeed             = domain.WithSeed
	WithStop             = domain.WithStop
	WithUser             = domain.WithUser
	WithStreaming        = domain.WithStreaming
	WithParams           = domain.WithParams

	DefaultRetryPolicy = domain.DefaultRetryPolicy

	IsRetryable            = domain.IsRetryable
	IsConfigError          = domain.IsConfigError
	IsUnsupportedParameter = domain.IsUnsupportedParameter
	IsMalformedResponse    = domain.IsMalformedResponse
)
