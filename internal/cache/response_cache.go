// Package cache keeps recent completion responses in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hpn/hpn-unillm/internal/domain"
)

const (
	// DefaultTTL is the default time-to-live for cache entries.
	DefaultTTL = 5 * time.Minute

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval = 1 * time.Minute

	// MetaCached marks a response served from the cache.
	MetaCached = "cached"
)

// entry is a cached response with expiration time.
type entry struct {
	response domain.Response
	expireAt time.Time
}

// ResponseCache is a thread-safe TTL cache of completion responses, keyed by
// the serialized provider request.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	hits        int64
	misses      int64
	tokensSaved int64

	stop     chan struct{}
	stopOnce sync.Once
}

// Option is a functional option for configuring ResponseCache.
type Option func(*ResponseCache)

// WithTTL sets a custom TTL for cache entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *ResponseCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResponseCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a ResponseCache and starts its cleanup goroutine.
// Close stops the goroutine.
func New(opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[string]*entry),
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.startCleanup()
	return c
}

// Key hashes everything that determines a provider's answer. The credential
// takes part so callers with different keys never share entries.
func Key(kind domain.ProviderKind, url string, body []byte, credential domain.Secret) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(kind), []byte(url), body, []byte(credential.Reveal())} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached response for key, marked with MetaCached.
func (c *ResponseCache) Get(key string) (domain.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().After(e.expireAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return domain.Response{}, false
	}

	c.hits++
	c.tokensSaved += int64(e.response.Usage.Total)
	resp := clone(e.response)
	resp.Metadata[MetaCached] = true
	return resp, true
}

// Set stores a copy of resp under key with the configured TTL.
func (c *ResponseCache) Set(key string, resp domain.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		response: clone(resp),
		expireAt: c.now().Add(c.ttl),
	}
}

// Stats returns cache hit/miss statistics.
func (c *ResponseCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}

// TokensSaved is the provider-reported token total of every response served
// from the cache instead of the provider.
func (c *ResponseCache) TokensSaved() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokensSaved
}

// Close stops the cleanup goroutine. The cache stays usable.
func (c *ResponseCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *ResponseCache) startCleanup() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes all expired entries from the cache.
func (c *ResponseCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for key, e := range c.entries {
		if now.After(e.expireAt) {
			delete(c.entries, key)
			expired++
		}
	}

	if expired > 0 {
		c.logger.Debug("cache cleanup",
			slog.Int("expired_entries", expired),
			slog.Int("remaining_entries", len(c.entries)),
		)
	}
}

func clone(r domain.Response) domain.Response {
	r.Segments = slices.Clone(r.Segments)
	meta := make(map[string]any, len(r.Metadata)+1)
	maps.Copy(meta, r.Metadata)
	r.Metadata = meta
	return r
}
