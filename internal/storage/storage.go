package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderScope/internal/model"
)

// ErrNotFound is returned by readers when no row matches.
var ErrNotFound = errors.New("not found")

// UpsertResult classifies the effect of an order upsert.
type UpsertResult int

const (
	UpsertInserted UpsertResult = iota
	UpsertUpdated
	UpsertUnchanged
	// UpsertDuplicate means a different order already holds the same transaction hash.
	UpsertDuplicate
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	case UpsertUnchanged:
		return "unchanged"
	case UpsertDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("UpsertResult(%d)", int(r))
	}
}

// OrderStore persists orders keyed by (chain, order id).
type OrderStore interface {
	UpsertOrder(ctx context.Context, order model.Order) (UpsertResult, error)
}

// MetricsStore appends contract counter snapshots.
type MetricsStore interface {
	InsertContractMetrics(ctx context.Context, m model.ContractMetrics) error
}

// SyncStatusStore holds the per (kind, chain) progress cursors.
type SyncStatusStore interface {
	// EnsureSyncStatus returns the cursor, creating it at block 0 when absent.
	EnsureSyncStatus(ctx context.Context, kind model.SyncKind, chainID uint64) (model.SyncStatus, error)
	// AcquireSync sets running=true only if it was false, in a single operation.
	AcquireSync(ctx context.Context, kind model.SyncKind, chainID uint64) (model.SyncStatus, bool, error)
	// ReleaseSync clears running and applies the outcome; the cursor never moves backwards.
	ReleaseSync(ctx context.Context, kind model.SyncKind, chainID uint64, outcome model.SyncOutcome) (model.SyncStatus, error)
	// ResetRunning clears running flags left behind by a crashed process.
	ResetRunning(ctx context.Context) (int64, error)
}

// SnapshotStore appends volume snapshots.
type SnapshotStore interface {
	InsertVolumeSnapshot(ctx context.Context, snapshot *model.VolumeSnapshot) error
}

// Interval is a timeline bucket size.
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalMonth Interval = "month"
)

// ParseInterval validates a grouping keyword.
func ParseInterval(input string) (Interval, error) {
	switch Interval(input) {
	case IntervalHour, IntervalDay, IntervalMonth:
		return Interval(input), nil
	default:
		return "", fmt.Errorf("unknown interval: %q", input)
	}
}

// Truncate returns the start of the bucket containing t (UTC).
func (i Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch i {
	case IntervalHour:
		return t.Truncate(time.Hour)
	case IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// OrderFilter narrows order queries. Zero values disable a filter.
type OrderFilter struct {
	ChainID *uint64
	Token   string
	User    string
	Since   time.Time
	Until   time.Time
}

// Matches applies the filter to a single order.
func (f OrderFilter) Matches(o model.Order) bool {
	if f.ChainID != nil && o.ChainID != *f.ChainID {
		return false
	}
	if f.Token != "" && o.Token != f.Token {
		return false
	}
	if f.User != "" && o.User != f.User {
		return false
	}
	if !f.Since.IsZero() && o.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !o.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Page selects a window of results.
type Page struct {
	Offset int
	Limit  int
}

// MaxFailedRanges bounds the failed sub-ranges kept per sync status; older
// entries are dropped first.
const MaxFailedRanges = 200

// TrimFailedRanges keeps the newest MaxFailedRanges entries.
func TrimFailedRanges(ranges []model.BlockRange) []model.BlockRange {
	if len(ranges) <= MaxFailedRanges {
		return ranges
	}
	return append([]model.BlockRange(nil), ranges[len(ranges)-MaxFailedRanges:]...)
}

// Validate rejects negative offsets and limits.
func (p Page) Validate() error {
	if p.Offset < 0 || p.Limit < 0 {
		return fmt.Errorf("invalid page: offset %d, limit %d", p.Offset, p.Limit)
	}
	return nil
}

// TimelinePoint is one bucket of the order timeline.
type TimelinePoint struct {
	Bucket time.Time `json:"bucket"`
	Orders int64     `json:"orders"`
	Volume string    `json:"volume"`
}

// OrderSummary aggregates orders per chain and token.
type OrderSummary struct {
	ChainID uint64 `json:"chain_id"`
	Token   string `json:"token"`
	Orders  int64  `json:"orders"`
	Users   int64  `json:"users"`
	Volume  string `json:"volume"`
}

// Reader is the read side consumed by the analytics API.
type Reader interface {
	ListOrders(ctx context.Context, filter OrderFilter, page Page) ([]model.Order, int64, error)
	OrderTimeline(ctx context.Context, filter OrderFilter, interval Interval) ([]TimelinePoint, error)
	OrderSummary(ctx context.Context, filter OrderFilter) ([]OrderSummary, error)
	LatestContractMetrics(ctx context.Context) ([]model.ContractMetrics, error)
	ContractMetricsHistory(ctx context.Context, chainID *uint64, since time.Time, limit int) ([]model.ContractMetrics, error)
	LatestVolumeSnapshot(ctx context.Context) (model.VolumeSnapshot, error)
	VolumeSnapshots(ctx context.Context, since time.Time, limit int) ([]model.VolumeSnapshot, error)
	ListSyncStatus(ctx context.Context) ([]model.SyncStatus, error)
}

// Store is the full persistence surface.
type Store interface {
	OrderStore
	MetricsStore
	SyncStatusStore
	SnapshotStore
	Reader
}
