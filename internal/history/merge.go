package history

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"cdpHistory/internal/model"
)

// merge flattens per-family records, attaches timestamps and orders the result
// by block and precedence, both descending. Ties keep their flattened order.
// Entries of unknown kind are dropped.
func merge(ctx context.Context, perFamily [][]ranked, timestamps *TimestampResolver, concurrency int) ([]model.EventRecord, error) {
	flat := flatten(perFamily)

	stamped := make([]ranked, len(flat))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, entry := range flat {
		g.Go(func() error {
			ts, err := timestamps.Resolve(gctx, entry.record.Block)
			if err != nil {
				return err
			}
			stamped[i] = ranked{record: entry.record.WithTimestamp(ts), rank: entry.rank}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortRanked(stamped)

	out := make([]model.EventRecord, 0, len(stamped))
	for _, entry := range stamped {
		out = append(out, entry.record)
	}
	return out, nil
}

func flatten(perFamily [][]ranked) []ranked {
	var n int
	for _, records := range perFamily {
		n += len(records)
	}
	out := make([]ranked, 0, n)
	for _, records := range perFamily {
		for _, entry := range records {
			if !entry.record.Kind.Valid() {
				continue
			}
			out = append(out, entry)
		}
	}
	return out
}

func sortRanked(entries []ranked) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.record.Block != b.record.Block {
			return a.record.Block > b.record.Block
		}
		return a.rank > b.rank
	})
}
