package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"climate_bridge/internal/logger"
)

const defaultCacheSize = 64

// CachingSynthesizer remembers synthesized audio per text. The key is
// sha256(voice + ":" + text) so a voice change misses the cache. When full,
// the oldest entry is evicted.
type CachingSynthesizer struct {
	next  Synthesizer
	voice string
	size  int
	log   *logger.Logger

	mu      sync.Mutex
	entries map[string][]byte
	order   []string
	hits    int64
	misses  int64
}

var _ Synthesizer = (*CachingSynthesizer)(nil)

// NewCachingSynthesizer wraps next. size <= 0 takes the default.
func NewCachingSynthesizer(next Synthesizer, voice string, size int, log *logger.Logger) *CachingSynthesizer {
	if size <= 0 {
		size = defaultCacheSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachingSynthesizer{
		next:    next,
		voice:   voice,
		size:    size,
		log:     log,
		entries: make(map[string][]byte, size),
	}
}

func (c *CachingSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := c.hashKey(text)

	c.mu.Lock()
	if audio, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		c.log.Debugw("tts_cache_hit", "key", key[:12], "bytes", len(audio))
		return audio, nil
	}
	c.misses++
	c.mu.Unlock()

	audio, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, audio)
	return audio, nil
}

func (c *CachingSynthesizer) put(key string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = audio
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *CachingSynthesizer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *CachingSynthesizer) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *CachingSynthesizer) hashKey(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}
