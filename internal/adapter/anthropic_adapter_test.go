package adapter

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicAdapter_Serialize(t *testing.T) {
	a := NewAnthropicAdapter("sk-ant-test")
	req, err := domain.NewRequest("claude-sonnet-4-5",
		[]domain.Message{
			domain.SystemMessage("You are helpful."),
			domain.SystemMessage("Be brief."),
			domain.UserMessage("Hi"),
			domain.AssistantMessage("Hello!"),
			domain.UserMessage("How are you?"),
		},
		domain.WithTopK(10),
		domain.WithStop("###"),
		domain.WithUser("u-1"),
	)
	require.NoError(t, err)

	wire, err := a.Serialize(req, true)
	require.NoError(t, err)

	assert.Equal(t, DefaultAnthropicBaseURL+"/messages", wire.URL)
	assert.Equal(t, "sk-ant-test", wire.Header.Get("x-api-key"))
	assert.Equal(t, AnthropicVersion, wire.Header.Get("anthropic-version"))
	assert.Empty(t, wire.Header.Get("Authorization"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(wire.Body, &body))
	assert.Equal(t, "You are helpful.\n\nBe brief.", body["system"])
	assert.Equal(t, float64(DefaultAnthropicMaxTokens), body["max_tokens"])
	assert.Equal(t, float64(10), body["top_k"])
	assert.Equal(t, []any{"###"}, body["stop_sequences"])
	assert.Equal(t, map[string]any{"user_id": "u-1"}, body["metadata"])
	assert.Equal(t, true, body["stream"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3, "system messages are lifted out of the list")
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
}

func TestAnthropicAdapter_SerializeMaxTokens(t *testing.T) {
	wire, err := NewAnthropicAdapter("k").Serialize(mustRequest(t, "claude", domain.WithMaxTokens(50)), false)
	require.NoError(t, err)

	var body AnthropicRequest
	require.NoError(t, json.Unmarshal(wire.Body, &body))
	assert.Equal(t, 50, body.MaxTokens)
	assert.False(t, body.Stream)
}

func TestAnthropicAdapter_Unsupported(t *testing.T) {
	tests := []struct {
		name     string
		messages []domain.Message
		opt      domain.RequestOption
		param    string
	}{
		{name: "frequency penalty", opt: domain.WithFrequencyPenalty(0.1), param: "frequency_penalty"},
		{name: "presence penalty", opt: domain.WithPresencePenalty(0.1), param: "presence_penalty"},
		{name: "seed", opt: domain.WithSeed(1), param: "seed"},
		{name: "temperature above 1", opt: domain.WithTemperature(1.5), param: "temperature"},
		{
			name:     "late system message",
			messages: []domain.Message{domain.UserMessage("hi"), domain.SystemMessage("late")},
			param:    "messages",
		},
		{
			name:     "system only",
			messages: []domain.Message{domain.SystemMessage("alone")},
			param:    "messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := tt.messages
			if msgs == nil {
				msgs = []domain.Message{domain.UserMessage("hi")}
			}
			var opts []domain.RequestOption
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			req, err := domain.NewRequest("claude", msgs, opts...)
			require.NoError(t, err)

			_, err = NewAnthropicAdapter("k").Serialize(req, false)
			var ue *domain.UnsupportedParameterError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.param, ue.Parameter)
		})
	}
}

func TestAnthropicAdapter_Deserialize(t *testing.T) {
	body := `{
		"id": "msg_123",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "from Claude!"}],
		"stop_reason": "stop_sequence",
		"stop_sequence": "###",
		"usage": {"input_tokens": 15, "output_tokens": 8, "cache_read_input_tokens": 5}
	}`

	resp, err := NewAnthropicAdapter("k").Deserialize(WireResponse{StatusCode: 200, Body: []byte(body)})
	require.NoError(t, err)

	assert.Equal(t, "Hello from Claude!", resp.Text)
	assert.Equal(t, []string{"Hello ", "from Claude!"}, resp.Segments)
	assert.Equal(t, domain.FinishStopSequence, resp.FinishReason)
	assert.Equal(t, domain.Usage{Prompt: 20, Completion: 8, Total: 28}, resp.Usage)
	assert.Equal(t, "msg_123", resp.Metadata[domain.MetaID])
	assert.Equal(t, "###", resp.Metadata["stop_sequence"])
	assert.Equal(t, 5, resp.Metadata["cache_read_input_tokens"])
}

func TestAnthropicAdapter_StopReasons(t *testing.T) {
	tests := map[string]domain.FinishReason{
		"end_turn":      domain.FinishCompleted,
		"max_tokens":    domain.FinishLength,
		"stop_sequence": domain.FinishStopSequence,
		"refusal":       domain.FinishContentFilter,
		"tool_use":      domain.FinishCompleted,
		"brand_new":     domain.FinishCompleted,
	}
	for raw, want := range tests {
		assert.Equal(t, want, mapAnthropicStopReason(raw), raw)
	}
}

func TestAnthropicAdapter_DeserializeErrors(t *testing.T) {
	a := NewAnthropicAdapter("k")

	_, err := a.Deserialize(WireResponse{
		StatusCode: 529,
		Body:       []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`),
	})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "overloaded_error", pe.Code)
	assert.Equal(t, "Overloaded", pe.Message)
	assert.True(t, pe.Retryable())

	_, err = a.Deserialize(WireResponse{
		StatusCode: 401,
		Body:       []byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`),
	})
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable())

	_, err = a.Deserialize(WireResponse{StatusCode: 200, Body: []byte(`{"id":"msg_1","type":"message","usage":{}}`)})
	assert.True(t, domain.IsMalformedResponse(err), "content is required")
}

func TestAnthropicAdapter_ChunkDecoder(t *testing.T) {
	d := NewAnthropicAdapter("k").NewChunkDecoder()

	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","content":[],"usage":{"input_tokens":25,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"ping", `{"type":"ping"}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"!"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":15}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}

	var chunks []domain.StreamChunk
	for _, ev := range events {
		chunk, ok, err := d.Decode(ev.name, []byte(ev.data))
		require.NoError(t, err, ev.name)
		if ok {
			chunks = append(chunks, chunk)
		}
	}

	require.Len(t, chunks, 3)
	assert.Equal(t, "Hello", chunks[0].Delta)
	assert.Equal(t, "!", chunks[1].Delta)
	assert.False(t, chunks[1].IsFinal)

	final := chunks[2]
	assert.True(t, final.IsFinal)
	assert.Equal(t, domain.FinishCompleted, final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, domain.Usage{Prompt: 25, Completion: 15, Total: 40}, *final.Usage)
}

func TestAnthropicAdapter_ChunkDecoderError(t *testing.T) {
	d := NewAnthropicAdapter("k").NewChunkDecoder()
	_, ok, err := d.Decode("error", []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))

	assert.False(t, ok)
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "overloaded_error", pe.Code)
	assert.True(t, pe.Retryable())
}

func TestAnthropicAdapter_Models(t *testing.T) {
	a := NewAnthropicAdapter("sk-ant")
	req := a.ModelsRequest()
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))

	models, err := a.DeserializeModels(WireResponse{StatusCode: 200, Body: []byte(
		`{"data":[{"id":"claude-sonnet-4-5","type":"model","display_name":"Claude Sonnet 4.5"}],"has_more":false}`,
	)})
	require.NoError(t, err)
	assert.Equal(t, []domain.Model{{ID: "claude-sonnet-4-5", Provider: domain.ProviderAnthropic, DisplayName: "Claude Sonnet 4.5"}}, models)
}
