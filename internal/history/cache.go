package history

import (
	"context"
	"fmt"
	"sync"

	"cdpHistory/internal/model"
)

// ResultCache runs at most one history computation per key and keeps its
// outcome, failures included, for the lifetime of the cache.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	done    chan struct{}
	records []model.EventRecord
	err     error
}

func NewResultCache() *ResultCache {
	return &ResultCache{entries: make(map[string]*cacheEntry)}
}

// Get returns the result for key, starting compute on first use. The
// computation is detached from ctx cancellation; ctx only bounds the wait.
// Callers get their own deep copy of the records. A panic in compute is
// kept as the entry's error.
func (c *ResultCache) Get(ctx context.Context, key string, compute func(context.Context) ([]model.EventRecord, error)) ([]model.EventRecord, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{done: make(chan struct{})}
		c.entries[key] = entry
		go func(ctx context.Context) {
			defer close(entry.done)
			defer func() {
				if r := recover(); r != nil {
					entry.records, entry.err = nil, fmt.Errorf("history %s panicked: %v", key, r)
				}
			}()
			entry.records, entry.err = compute(ctx)
		}(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case <-entry.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}
	out := make([]model.EventRecord, len(entry.records))
	for i, record := range entry.records {
		out[i] = record.Clone()
	}
	return out, nil
}

// Len returns the number of cached keys.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
