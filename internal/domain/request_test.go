package domain

import (
	"errors"
	"sync"
	"testing"
)

func TestNewRequest_Validation(t *testing.T) {
	hello := []Message{UserMessage("hello")}

	tests := []struct {
		name     string
		model    string
		messages []Message
		opts     []RequestOption
		wantErr  bool
	}{
		{name: "minimal", model: "gpt-4o", messages: hello},
		{name: "blank model", model: "   ", messages: hello, wantErr: true},
		{name: "no messages", model: "gpt-4o", messages: nil, wantErr: true},
		{name: "unknown role", model: "gpt-4o", messages: []Message{{Role: "tool", Content: "x"}}, wantErr: true},
		{name: "empty content", model: "gpt-4o", messages: []Message{UserMessage("")}, wantErr: true},
		{name: "zero max tokens", model: "gpt-4o", messages: hello, opts: []RequestOption{WithMaxTokens(0)}, wantErr: true},
		{name: "negative temperature", model: "gpt-4o", messages: hello, opts: []RequestOption{WithTemperature(-0.1)}, wantErr: true},
		{name: "top_p above one", model: "gpt-4o", messages: hello, opts: []RequestOption{WithTopP(1.5)}, wantErr: true},
		{name: "zero top_k", model: "gpt-4o", messages: hello, opts: []RequestOption{WithTopK(0)}, wantErr: true},
		{name: "empty stop", model: "gpt-4o", messages: hello, opts: []RequestOption{WithStop("END", "")}, wantErr: true},
		{
			name:     "all parameters",
			model:    "gpt-4o",
			messages: []Message{SystemMessage("be brief"), UserMessage("hi"), AssistantMessage("hello"), UserMessage("bye")},
			opts: []RequestOption{
				WithTemperature(0.7), WithMaxTokens(256), WithTopP(0.9), WithTopK(40),
				WithFrequencyPenalty(0.5), WithPresencePenalty(0.2), WithSeed(7),
				WithStop("END"), WithUser("user-1"), WithStreaming(true),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.model, tt.messages, tt.opts...)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("NewRequest() error = %v, want ErrInvalidRequest", err)
				}
				if !req.IsZero() {
					t.Error("failed NewRequest() should return the zero Request")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRequest() unexpected error: %v", err)
			}
			if req.Model() != tt.model {
				t.Errorf("Model() = %q, want %q", req.Model(), tt.model)
			}
		})
	}
}

func TestRequest_Immutable(t *testing.T) {
	msgs := []Message{UserMessage("original")}
	stop := []string{"A"}
	req, err := NewRequest("m", msgs, WithStop(stop...), WithMaxTokens(10))
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}

	// Mutating caller inputs does not leak into the request.
	msgs[0].Content = "changed"
	stop[0] = "B"
	if got := req.Messages()[0].Content; got != "original" {
		t.Errorf("Messages()[0].Content = %q, want original", got)
	}
	if got := req.Params().Stop[0]; got != "A" {
		t.Errorf("Params().Stop[0] = %q, want A", got)
	}

	// Mutating returned copies does not leak either.
	out := req.Messages()
	out[0].Content = "changed again"
	p := req.Params()
	*p.MaxTokens = 99
	p.Stop[0] = "C"

	if got := req.Messages()[0].Content; got != "original" {
		t.Errorf("Messages()[0].Content = %q after mutating copy", got)
	}
	if got := *req.Params().MaxTokens; got != 10 {
		t.Errorf("MaxTokens = %d after mutating copy, want 10", got)
	}
	if got := req.Params().Stop[0]; got != "A" {
		t.Errorf("Stop[0] = %q after mutating copy, want A", got)
	}
}

func TestRequest_ConcurrentReads(t *testing.T) {
	req, err := NewRequest("m", []Message{UserMessage("hi")}, WithStop("x", "y"))
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := req.Params()
			p.Stop[0] = "mutated"
			m := req.Messages()
			m[0].Content = "mutated"
		}()
	}
	wg.Wait()

	if req.Params().Stop[0] != "x" || req.Messages()[0].Content != "hi" {
		t.Error("concurrent readers mutated shared request state")
	}
}
