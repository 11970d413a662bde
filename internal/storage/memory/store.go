// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"orderScope/internal/model"
	"orderScope/internal/storage"
)

type orderKey struct {
	chainID uint64
	orderID string
}

type txKey struct {
	chainID uint64
	txHash  string
}

type statusKey struct {
	kind    model.SyncKind
	chainID uint64
}

// Store keeps everything in maps guarded by a single mutex.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	orders    map[orderKey]model.Order
	txIndex   map[txKey]string
	metrics   []model.ContractMetrics
	status    map[statusKey]*model.SyncStatus
	snapshots []model.VolumeSnapshot
	nextID    int64
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:     time.Now,
		orders:  make(map[orderKey]model.Order),
		txIndex: make(map[txKey]string),
		status:  make(map[statusKey]*model.SyncStatus),
	}
}

// WithClock overrides the time source used for sync timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) UpsertOrder(ctx context.Context, order model.Order) (storage.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderKey{chainID: order.ChainID, orderID: order.OrderID}
	tx := txKey{chainID: order.ChainID, txHash: order.TxHash}
	if owner, ok := s.txIndex[tx]; ok && owner != order.OrderID {
		return storage.UpsertDuplicate, nil
	}

	existing, ok := s.orders[key]
	if !ok {
		s.orders[key] = order
		s.txIndex[tx] = order.OrderID
		return storage.UpsertInserted, nil
	}
	if existing.SameContent(order) {
		return storage.UpsertUnchanged, nil
	}
	delete(s.txIndex, txKey{chainID: existing.ChainID, txHash: existing.TxHash})
	s.orders[key] = order
	s.txIndex[tx] = order.OrderID
	return storage.UpsertUpdated, nil
}

// Order returns a stored order by key.
func (s *Store) Order(chainID uint64, orderID string) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderKey{chainID: chainID, orderID: orderID}]
	return order, ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) InsertContractMetrics(ctx context.Context, m model.ContractMetrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *Store) EnsureSyncStatus(ctx context.Context, kind model.SyncKind, chainID uint64) (model.SyncStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.SyncStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyStatus(s.ensure(kind, chainID)), nil
}

func (s *Store) AcquireSync(ctx context.Context, kind model.SyncKind, chainID uint64) (model.SyncStatus, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.SyncStatus{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.ensure(kind, chainID)
	if status.Running {
		return copyStatus(status), false, nil
	}
	status.Running = true
	return copyStatus(status), true, nil
}

func (s *Store) ReleaseSync(ctx context.Context, kind model.SyncKind, chainID uint64, outcome model.SyncOutcome) (model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.ensure(kind, chainID)
	status.Running = false
	if outcome.SyncedBlock > status.LastSyncedBlock {
		status.LastSyncedBlock = outcome.SyncedBlock
	}
	now := s.now().UTC()
	status.LastSyncAt = &now
	status.FailedRanges = storage.TrimFailedRanges(append(status.FailedRanges, outcome.FailedRanges...))
	if outcome.Err != nil {
		msg := outcome.Err.Error()
		status.LastError = &msg
		status.ErrorCount++
	} else {
		status.LastError = nil
		status.SuccessCount++
	}
	return copyStatus(status), nil
}

func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, status := range s.status {
		if status.Running {
			status.Running = false
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertVolumeSnapshot(ctx context.Context, snapshot *model.VolumeSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	snapshot.ID = s.nextID
	stored := *snapshot
	stored.Breakdown = append([]model.TokenVolume(nil), snapshot.Breakdown...)
	s.snapshots = append(s.snapshots, stored)
	return nil
}

func (s *Store) ListOrders(ctx context.Context, filter storage.OrderFilter, page storage.Page) ([]model.Order, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}
	matched := s.filterOrders(filter)
	total := int64(len(matched))
	if page.Offset >= len(matched) {
		return []model.Order{}, total, nil
	}
	matched = matched[page.Offset:]
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, total, nil
}

func (s *Store) OrderTimeline(ctx context.Context, filter storage.OrderFilter, interval storage.Interval) ([]storage.TimelinePoint, error) {
	buckets := make(map[time.Time]*timelineAcc)
	for _, order := range s.filterOrders(filter) {
		bucket := interval.Truncate(order.Timestamp)
		acc, ok := buckets[bucket]
		if !ok {
			acc = &timelineAcc{volume: new(big.Int)}
			buckets[bucket] = acc
		}
		acc.orders++
		addAmount(acc.volume, order.Amount)
	}
	points := make([]storage.TimelinePoint, 0, len(buckets))
	for bucket, acc := range buckets {
		points = append(points, storage.TimelinePoint{Bucket: bucket, Orders: acc.orders, Volume: acc.volume.String()})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Bucket.Before(points[j].Bucket) })
	return points, nil
}

func (s *Store) OrderSummary(ctx context.Context, filter storage.OrderFilter) ([]storage.OrderSummary, error) {
	type summaryKey struct {
		chainID uint64
		token   string
	}
	type summaryAcc struct {
		orders int64
		users  map[string]struct{}
		volume *big.Int
	}
	groups := make(map[summaryKey]*summaryAcc)
	for _, order := range s.filterOrders(filter) {
		key := summaryKey{chainID: order.ChainID, token: order.Token}
		acc, ok := groups[key]
		if !ok {
			acc = &summaryAcc{users: make(map[string]struct{}), volume: new(big.Int)}
			groups[key] = acc
		}
		acc.orders++
		acc.users[order.User] = struct{}{}
		addAmount(acc.volume, order.Amount)
	}
	out := make([]storage.OrderSummary, 0, len(groups))
	for key, acc := range groups {
		out = append(out, storage.OrderSummary{
			ChainID: key.chainID,
			Token:   key.token,
			Orders:  acc.orders,
			Users:   int64(len(acc.users)),
			Volume:  acc.volume.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

func (s *Store) LatestContractMetrics(ctx context.Context) ([]model.ContractMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[uint64]model.ContractMetrics)
	for _, m := range s.metrics {
		if cur, ok := latest[m.ChainID]; !ok || !m.Timestamp.Before(cur.Timestamp) {
			latest[m.ChainID] = m
		}
	}
	out := make([]model.ContractMetrics, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out, nil
}

func (s *Store) ContractMetricsHistory(ctx context.Context, chainID *uint64, since time.Time, limit int) ([]model.ContractMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ContractMetrics
	for _, m := range s.metrics {
		if chainID != nil && m.ChainID != *chainID {
			continue
		}
		if !since.IsZero() && m.Timestamp.Before(since) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LatestVolumeSnapshot(ctx context.Context) (model.VolumeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return model.VolumeSnapshot{}, storage.ErrNotFound
	}
	return s.snapshots[len(s.snapshots)-1], nil
}

func (s *Store) VolumeSnapshots(ctx context.Context, since time.Time, limit int) ([]model.VolumeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.VolumeSnapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		snap := s.snapshots[i]
		if !since.IsZero() && snap.Timestamp.Before(since) {
			continue
		}
		out = append(out, snap)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListSyncStatus(ctx context.Context) ([]model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SyncStatus, 0, len(s.status))
	for _, status := range s.status {
		out = append(out, copyStatus(status))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ChainID < out[j].ChainID
	})
	return out, nil
}

func (s *Store) ensure(kind model.SyncKind, chainID uint64) *model.SyncStatus {
	key := statusKey{kind: kind, chainID: chainID}
	status, ok := s.status[key]
	if !ok {
		status = &model.SyncStatus{Kind: kind, ChainID: chainID}
		s.status[key] = status
	}
	return status
}

func (s *Store) filterOrders(filter storage.OrderFilter) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0)
	for _, order := range s.orders {
		if filter.Matches(order) {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

type timelineAcc struct {
	orders int64
	volume *big.Int
}

func addAmount(total *big.Int, amount string) {
	v, ok := new(big.Int).SetString(amount, 10)
	if ok {
		total.Add(total, v)
	}
}

func copyStatus(status *model.SyncStatus) model.SyncStatus {
	out := *status
	out.FailedRanges = append([]model.BlockRange(nil), status.FailedRanges...)
	if status.LastSyncAt != nil {
		ts := *status.LastSyncAt
		out.LastSyncAt = &ts
	}
	if status.LastError != nil {
		msg := *status.LastError
		out.LastError = &msg
	}
	return out
}
