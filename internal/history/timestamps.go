package history

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TimestampResolver memoizes block timestamps for one history computation.
// Concurrent lookups of the same block share a single call to the source.
type TimestampResolver struct {
	source BlockSource
	group  singleflight.Group

	mu       sync.RWMutex
	resolved map[uint64]uint64
}

func NewTimestampResolver(source BlockSource) *TimestampResolver {
	return &TimestampResolver{
		source:   source,
		resolved: make(map[uint64]uint64),
	}
}

// Resolve returns the timestamp of block.
func (r *TimestampResolver) Resolve(ctx context.Context, block uint64) (uint64, error) {
	if ts, ok := r.lookup(block); ok {
		return ts, nil
	}

	v, err, _ := r.group.Do(strconv.FormatUint(block, 10), func() (interface{}, error) {
		// A flight for block may have completed between lookup and Do.
		if ts, ok := r.lookup(block); ok {
			return ts, nil
		}
		ts, err := r.source.BlockTimestamp(ctx, block)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.resolved[block] = ts
		r.mu.Unlock()
		return ts, nil
	})
	if err != nil {
		return 0, &QueryError{Family: "timestamp", Block: block, Err: err}
	}
	return v.(uint64), nil
}

func (r *TimestampResolver) lookup(block uint64) (uint64, bool) {
	r.mu.RLock()
	ts, ok := r.resolved[block]
	r.mu.RUnlock()
	return ts, ok
}
