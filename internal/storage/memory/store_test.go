package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"orderScope/internal/model"
	"orderScope/internal/storage"
)

func sampleOrder(id, tx string) model.Order {
	return model.Order{
		ChainID:     56,
		OrderID:     id,
		RequestID:   "req-" + id,
		User:        "0x00000000000000000000000000000000000000aa",
		Token:       "0x00000000000000000000000000000000000000bb",
		Amount:      "1000",
		TxHash:      tx,
		BlockNumber: 100,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestUpsertOrderResults(t *testing.T) {
	ctx := context.Background()
	store := New()

	first := sampleOrder("1", "0xt1")
	if res, err := store.UpsertOrder(ctx, first); err != nil || res != storage.UpsertInserted {
		t.Fatalf("insert: res=%s err=%v", res, err)
	}
	if res, _ := store.UpsertOrder(ctx, first); res != storage.UpsertUnchanged {
		t.Fatalf("expected unchanged, got %s", res)
	}

	changed := first
	changed.Amount = "2000"
	if res, _ := store.UpsertOrder(ctx, changed); res != storage.UpsertUpdated {
		t.Fatalf("expected updated, got %s", res)
	}

	dup := sampleOrder("2", "0xt1")
	if res, _ := store.UpsertOrder(ctx, dup); res != storage.UpsertDuplicate {
		t.Fatalf("expected duplicate, got %s", res)
	}
	if store.OrderCount() != 1 {
		t.Fatalf("expected one order, got %d", store.OrderCount())
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := New()

	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.AcquireSync(ctx, model.SyncKindMetrics, 56)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	if acquired.Load() != 1 {
		t.Fatalf("expected exactly one acquire, got %d", acquired.Load())
	}
}

func TestReleaseKeepsCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, ok, _ := store.AcquireSync(ctx, model.SyncKindOrders, 1); !ok {
		t.Fatalf("acquire failed")
	}
	status, err := store.ReleaseSync(ctx, model.SyncKindOrders, 1, model.SyncOutcome{SyncedBlock: 500})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if status.LastSyncedBlock != 500 || status.Running || status.SuccessCount != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}

	store.AcquireSync(ctx, model.SyncKindOrders, 1)
	status, _ = store.ReleaseSync(ctx, model.SyncKindOrders, 1, model.SyncOutcome{
		SyncedBlock:  200,
		Err:          errors.New("rpc down"),
		FailedRanges: []model.BlockRange{{From: 501, To: 700}},
	})
	if status.LastSyncedBlock != 500 {
		t.Fatalf("cursor moved backwards: %d", status.LastSyncedBlock)
	}
	if status.LastError == nil || *status.LastError != "rpc down" || status.ErrorCount != 1 {
		t.Fatalf("error not recorded: %+v", status)
	}
	if len(status.FailedRanges) != 1 || status.FailedRanges[0].From != 501 {
		t.Fatalf("failed ranges not recorded: %+v", status.FailedRanges)
	}
}

func TestReleaseRecordsSyncTime(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.FixedZone("WAT", 3600))
	store := New().WithClock(func() time.Time { return at })

	store.AcquireSync(ctx, model.SyncKindMetrics, 56)
	status, err := store.ReleaseSync(ctx, model.SyncKindMetrics, 56, model.SyncOutcome{})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if status.LastSyncAt == nil || !status.LastSyncAt.Equal(at) || status.LastSyncAt.Location() != time.UTC {
		t.Fatalf("unexpected last sync time: %v", status.LastSyncAt)
	}
}

func TestFailedRangesAreBounded(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 0; i < storage.MaxFailedRanges+5; i++ {
		store.AcquireSync(ctx, model.SyncKindOrders, 1)
		from := uint64(i * 10)
		store.ReleaseSync(ctx, model.SyncKindOrders, 1, model.SyncOutcome{
			FailedRanges: []model.BlockRange{{From: from, To: from + 9}},
		})
	}

	statuses, err := store.ListSyncStatus(ctx)
	if err != nil || len(statuses) != 1 {
		t.Fatalf("list: %+v err=%v", statuses, err)
	}
	ranges := statuses[0].FailedRanges
	if len(ranges) != storage.MaxFailedRanges {
		t.Fatalf("expected %d ranges, got %d", storage.MaxFailedRanges, len(ranges))
	}
	if ranges[0].From != 50 || ranges[len(ranges)-1].From != uint64((storage.MaxFailedRanges+4)*10) {
		t.Fatalf("expected newest ranges kept, got first=%v last=%v", ranges[0], ranges[len(ranges)-1])
	}
}

func TestListOrdersRejectsNegativeOffset(t *testing.T) {
	store := New()
	if _, _, err := store.ListOrders(context.Background(), storage.OrderFilter{}, storage.Page{Offset: -10, Limit: 10}); err == nil {
		t.Fatalf("expected error for negative offset")
	}
}

func TestResetRunning(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.AcquireSync(ctx, model.SyncKindOrders, 1)
	store.AcquireSync(ctx, model.SyncKindMetrics, 1)

	n, err := store.ResetRunning(ctx)
	if err != nil || n != 2 {
		t.Fatalf("reset: n=%d err=%v", n, err)
	}
	if _, ok, _ := store.AcquireSync(ctx, model.SyncKindOrders, 1); !ok {
		t.Fatalf("expected acquire after reset")
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	store := New()
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		order := sampleOrder(id, "0xt"+id)
		order.Timestamp = base.Add(time.Duration(i) * 13 * time.Hour)
		if id == "3" {
			order.User = "0x00000000000000000000000000000000000000cc"
		}
		store.UpsertOrder(ctx, order)
	}

	orders, total, err := store.ListOrders(ctx, storage.OrderFilter{}, storage.Page{Limit: 2})
	if err != nil || total != 3 || len(orders) != 2 {
		t.Fatalf("list: total=%d len=%d err=%v", total, len(orders), err)
	}
	if orders[0].OrderID != "3" {
		t.Fatalf("expected newest first, got %s", orders[0].OrderID)
	}

	points, _ := store.OrderTimeline(ctx, storage.OrderFilter{}, storage.IntervalDay)
	if len(points) != 2 || points[0].Orders != 2 || points[0].Volume != "2000" {
		t.Fatalf("unexpected timeline: %+v", points)
	}

	summary, _ := store.OrderSummary(ctx, storage.OrderFilter{})
	if len(summary) != 1 || summary[0].Orders != 3 || summary[0].Users != 2 || summary[0].Volume != "3000" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if _, err := store.LatestVolumeSnapshot(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	snap := &model.VolumeSnapshot{TotalVolumeUSD: 1, Timestamp: base}
	store.InsertVolumeSnapshot(ctx, snap)
	if snap.ID != 1 {
		t.Fatalf("expected id assignment, got %d", snap.ID)
	}
	latest, err := store.LatestVolumeSnapshot(ctx)
	if err != nil || latest.TotalVolumeUSD != 1 {
		t.Fatalf("latest: %+v %v", latest, err)
	}
}
