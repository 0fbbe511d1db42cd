package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}

// SplitQuery splits q into consecutive single-range queries. A nil ToBlock
// is taken to mean latest. An empty range yields no queries.
func SplitQuery(q ethereum.FilterQuery, latest, batchSize uint64) ([]ethereum.FilterQuery, error) {
	var from uint64
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	to := latest
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}
	if to < from {
		return nil, nil
	}

	ranges, err := SplitRange(from, to, batchSize)
	if err != nil {
		return nil, err
	}
	out := make([]ethereum.FilterQuery, 0, len(ranges))
	for _, br := range ranges {
		batch := q
		batch.FromBlock = new(big.Int).SetUint64(br.From)
		batch.ToBlock = new(big.Int).SetUint64(br.To)
		out = append(out, batch)
	}
	return out, nil
}
