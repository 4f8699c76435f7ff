package adapter

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hpn/hpn-unillm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoBody plays the provider: it reads a serialized request and answers with
// the last message echoed back and the given usage, in the provider's format.
func echoBody(t *testing.T, kind domain.ProviderKind, wire WireRequest, u domain.Usage) []byte {
	t.Helper()

	var body string
	switch kind {
	case domain.ProviderOpenAI:
		var req OpenAIRequest
		require.NoError(t, json.Unmarshal(wire.Body, &req))
		last := req.Messages[len(req.Messages)-1].Content
		body = fmt.Sprintf(`{"id":"e","model":%q,"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`,
			req.Model, last, u.Prompt, u.Completion, u.Total)
	case domain.ProviderAnthropic:
		var req AnthropicRequest
		require.NoError(t, json.Unmarshal(wire.Body, &req))
		last := req.Messages[len(req.Messages)-1].Content
		body = fmt.Sprintf(`{"id":"e","type":"message","model":%q,"content":[{"type":"text","text":%q}],"stop_reason":"end_turn","usage":{"input_tokens":%d,"output_tokens":%d}}`,
			req.Model, last, u.Prompt, u.Completion)
	case domain.ProviderGemini:
		var req GeminiRequest
		require.NoError(t, json.Unmarshal(wire.Body, &req))
		last := req.Contents[len(req.Contents)-1].Parts[0].Text
		body = fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":%d,"candidatesTokenCount":%d,"totalTokenCount":%d}}`,
			last, u.Prompt, u.Completion, u.Total)
	default:
		t.Fatalf("no echo format for %s", kind)
	}
	return []byte(body)
}

func TestRoundTrip_UsagePreserved(t *testing.T) {
	usages := []domain.Usage{
		{Prompt: 0, Completion: 0, Total: 0},
		{Prompt: 12, Completion: 30, Total: 42},
		{Prompt: 100000, Completion: 1, Total: 100001},
	}

	for _, kind := range domain.AllKinds() {
		for _, u := range usages {
			t.Run(fmt.Sprintf("%s/%d", kind, u.Total), func(t *testing.T) {
				a, err := New(domain.ProviderConfig{Kind: kind, Credential: "k"})
				require.NoError(t, err)

				req, err := domain.NewRequest("echo-model", []domain.Message{
					domain.SystemMessage("Repeat the user."),
					domain.UserMessage("ping ✓"),
				})
				require.NoError(t, err)

				wire, err := a.Serialize(req, false)
				require.NoError(t, err)

				resp, err := a.Deserialize(WireResponse{StatusCode: 200, Body: echoBody(t, kind, wire, u)})
				require.NoError(t, err)

				assert.Equal(t, u, resp.Usage)
				assert.Equal(t, "ping ✓", resp.Text)
				assert.Equal(t, domain.FinishCompleted, resp.FinishReason)
			})
		}
	}
}
