package chain

import (
	"errors"
	"fmt"

	"orderScope/internal/model"
)

// SplitRange cuts the inclusive range [from, to] into consecutive batches of
// at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]model.BlockRange, error) {
	switch {
	case batchSize == 0:
		return nil, errors.New("batch size must be greater than zero")
	case to < from:
		return nil, fmt.Errorf("invalid block range %d-%d", from, to)
	}

	ranges := make([]model.BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, model.BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}
