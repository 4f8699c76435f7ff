package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/hpn/hpn-unillm/internal/domain"
)

func testResponse(text string) domain.Response {
	return domain.NewResponse([]string{text}, domain.Usage{Prompt: 1, Completion: 1, Total: 2}, domain.FinishCompleted, map[string]any{"id": "r1"})
}

// TestKey verifies that keys are stable and sensitive to every input.
func TestKey(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`)
	base := Key(domain.ProviderOpenAI, "https://api.openai.com/v1/chat/completions", body, "k1")

	if base != Key(domain.ProviderOpenAI, "https://api.openai.com/v1/chat/completions", body, "k1") {
		t.Error("expected consistent key")
	}

	variants := map[string]string{
		"kind":       Key(domain.ProviderGemini, "https://api.openai.com/v1/chat/completions", body, "k1"),
		"url":        Key(domain.ProviderOpenAI, "https://proxy.example.com/v1/chat/completions", body, "k1"),
		"body":       Key(domain.ProviderOpenAI, "https://api.openai.com/v1/chat/completions", []byte(`{}`), "k1"),
		"credential": Key(domain.ProviderOpenAI, "https://api.openai.com/v1/chat/completions", body, "k2"),
	}
	for name, k := range variants {
		if k == base {
			t.Errorf("changing %s should change the key", name)
		}
	}
}

// TestGetSet tests basic cache get/set operations.
func TestGetSet(t *testing.T) {
	c := New()
	defer c.Close()

	if _, found := c.Get("missing"); found {
		t.Fatal("expected cache miss for new key")
	}

	c.Set("k", testResponse("hello"))
	got, found := c.Get("k")
	if !found {
		t.Fatal("expected cache hit after set")
	}
	if got.Text != "hello" {
		t.Errorf("expected cached text %q, got %q", "hello", got.Text)
	}
	if got.Metadata[MetaCached] != true {
		t.Error("expected cached marker in metadata")
	}

	// Callers cannot reach the stored copy.
	got.Segments[0] = "mutated"
	got.Metadata["id"] = "mutated"
	again, _ := c.Get("k")
	if again.Segments[0] != "hello" || again.Metadata["id"] != "r1" {
		t.Errorf("stored response was modified through a returned copy: %+v", again)
	}
}

// TestExpiration tests that entries expire after TTL.
func TestExpiration(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithTTL(time.Minute))
	defer c.Close()
	c.now = func() time.Time { return now }

	c.Set("k", testResponse("soon gone"))
	if _, found := c.Get("k"); !found {
		t.Fatal("expected hit before TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, found := c.Get("k"); found {
		t.Error("expected miss after TTL")
	}
	if _, _, size := c.Stats(); size != 0 {
		t.Errorf("expected expired entry to be dropped, size=%d", size)
	}
}

// TestCleanup tests the sweep of expired entries.
func TestCleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithTTL(time.Minute))
	defer c.Close()
	c.now = func() time.Time { return now }

	c.Set("old", testResponse("a"))
	now = now.Add(30 * time.Second)
	c.Set("new", testResponse("b"))
	now = now.Add(45 * time.Second)

	c.cleanup()
	if _, _, size := c.Stats(); size != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", size)
	}
}

// TestStats tests cache statistics tracking.
func TestStats(t *testing.T) {
	c := New()
	defer c.Close()

	c.Get("nonexistent")
	c.Set("key1", testResponse("v"))
	c.Get("key1")
	c.Get("key1")

	hits, misses, size := c.Stats()
	if hits != 2 || misses != 1 || size != 1 {
		t.Errorf("expected hits=2 misses=1 size=1, got hits=%d misses=%d size=%d", hits, misses, size)
	}
	if saved := c.TokensSaved(); saved != 4 {
		t.Errorf("expected 4 tokens saved, got %d", saved)
	}
}

// TestConcurrency tests thread safety under concurrent access.
func TestConcurrency(t *testing.T) {
	c := New()
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if id%2 == 0 {
				c.Set("concurrent-key", testResponse("v"))
			} else {
				c.Get("concurrent-key")
			}
		}(i)
	}
	wg.Wait()

	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
