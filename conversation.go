package unillm

import (
	"context"
	"slices"
	"sync"
)

// Conversation keeps a message history against one provider and model.
type Conversation struct {
	facade *Facade
	cfg    ProviderConfig
	model  string
	opts   []RequestOption

	mu      sync.Mutex
	primer  string
	history []Message
	usage   Usage
}

// NewConversation starts an empty conversation. A nil facade uses Default().
func NewConversation(f *Facade, cfg ProviderConfig, model string, opts ...RequestOption) *Conversation {
	if f == nil {
		f = Default()
	}
	return &Conversation{
		facade: f,
		cfg:    cfg,
		model:  model,
		opts:   slices.Clone(opts),
	}
}

// SetPrimer sets the system message sent ahead of the history. An empty
// primer sends none.
func (c *Conversation) SetPrimer(primer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primer = primer
}

// Ask sends prompt after the history. With persist, the prompt and the answer
// are appended to the history; otherwise the exchange is forgotten. A failed
// call never changes the history.
func (c *Conversation) Ask(ctx context.Context, prompt string, persist bool) (Response, error) {
	c.mu.Lock()
	messages := make([]Message, 0, len(c.history)+2)
	if c.primer != "" {
		messages = append(messages, SystemMessage(c.primer))
	}
	messages = append(messages, c.history...)
	c.mu.Unlock()

	messages = append(messages, UserMessage(prompt))
	req, err := NewRequest(c.model, messages, c.opts...)
	if err != nil {
		return Response{}, err
	}

	resp, err := c.facade.Complete(ctx, c.cfg, req)
	if err != nil {
		return Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage = c.usage.Add(resp.Usage)
	// An empty answer cannot be replayed as a message.
	if persist && resp.Text != "" {
		c.history = append(c.history, UserMessage(prompt), AssistantMessage(resp.Text))
	}
	return resp, nil
}

// Usage is the token usage summed over every successful Ask, persisted or not.
// Reset does not clear it.
func (c *Conversation) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Reset clears the history and keeps the primer.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// History returns a copy of the persisted exchanges, without the primer.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}
