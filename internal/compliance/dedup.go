package compliance

import (
	"strings"
	"sync"
	"time"
)

// DedupCache suppresses duplicate final transcript snippets delivered within
// a short window, keyed by the normalized transcript text. The key carries
// no call id: the same final text resent within the TTL is suppressed no
// matter which call delivered it.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
	order   []dedupEntry
}

type dedupEntry struct {
	key  string
	seen time.Time
}

func NewDedupCache(ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &DedupCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// IsDuplicate reports whether this payload repeats a final transcript seen
// within the TTL, recording it as seen otherwise. Only final
// transcription-content events participate; everything else passes through.
func (c *DedupCache) IsDuplicate(p Payload) bool {
	if p.Event() != TranscriptionEvent || !p.IsFinal() {
		return false
	}
	text := p.TranscriptText()
	if text == "" {
		return false
	}
	key := normalizeTranscript(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.sweep(now)

	if seen, ok := c.entries[key]; ok && now.Sub(seen) < c.ttl {
		return true
	}
	c.entries[key] = now
	c.order = append(c.order, dedupEntry{key: key, seen: now})
	return false
}

// sweep drops expired entries from the front of the insertion-ordered queue.
// Re-seen keys leave stale queue entries behind; those are skipped when the
// map holds a newer timestamp.
func (c *DedupCache) sweep(now time.Time) {
	i := 0
	for ; i < len(c.order); i++ {
		e := c.order[i]
		if now.Sub(e.seen) < c.ttl {
			break
		}
		if seen, ok := c.entries[e.key]; ok && seen.Equal(e.seen) {
			delete(c.entries, e.key)
		}
	}
	c.order = c.order[i:]
}

// normalizeTranscript lowercases and collapses whitespace so trivially
// re-spaced duplicates still match.
func normalizeTranscript(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
