package model

import (
	"fmt"
	"time"
)

// SyncKind separates the two independent synchronization categories.
type SyncKind string

const (
	SyncKindMetrics SyncKind = "metrics"
	SyncKindOrders  SyncKind = "orders"
)

// ParseSyncKind validates a user supplied sync kind.
func ParseSyncKind(input string) (SyncKind, error) {
	switch SyncKind(input) {
	case SyncKindMetrics, SyncKindOrders:
		return SyncKind(input), nil
	default:
		return "", fmt.Errorf("unknown sync kind: %q", input)
	}
}

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

func (r BlockRange) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// SyncStatus is the progress cursor for one (kind, chain) pair.
type SyncStatus struct {
	Kind            SyncKind     `json:"kind"`
	ChainID         uint64       `json:"chain_id"`
	LastSyncedBlock uint64       `json:"last_synced_block"`
	LastSyncAt      *time.Time   `json:"last_sync_at,omitempty"`
	Running         bool         `json:"running"`
	LastError       *string      `json:"last_error,omitempty"`
	FailedRanges    []BlockRange `json:"failed_ranges,omitempty"`
	SuccessCount    int64        `json:"success_count"`
	ErrorCount      int64        `json:"error_count"`
}

// SyncOutcome is written back when a sync run releases its cursor.
type SyncOutcome struct {
	// SyncedBlock is merged with the previous cursor using max.
	SyncedBlock  uint64
	Err          error
	FailedRanges []BlockRange
}
