package indexer

import "orderScope/internal/model"

// DefaultInitialLookback bounds the first run on a chain that was never synced.
const DefaultInitialLookback uint64 = 100_000

// startBlock returns the first block of the next order sync.
// A zero cursor means the chain was never synced: begin at current-lookback
// instead of genesis. Otherwise resume at the cursor itself; re-scanning that
// block is harmless because order upserts are idempotent.
func startBlock(status model.SyncStatus, current, lookback uint64) uint64 {
	if status.LastSyncedBlock == 0 {
		if current <= lookback {
			return 0
		}
		return current - lookback
	}
	return status.LastSyncedBlock
}
