package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"orderScope/internal/model"
	"orderScope/internal/schedule"
	"orderScope/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	userA  = "0x00000000000000000000000000000000000000aa"
	userB  = "0x00000000000000000000000000000000000000cc"
	tokenA = "0x00000000000000000000000000000000000000bb"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for i := 0; i < 30; i++ {
		user := userA
		if i%3 == 0 {
			user = userB
		}
		order := model.Order{
			ChainID:     56,
			OrderID:     fmt.Sprint(i),
			RequestID:   "req",
			User:        user,
			Token:       tokenA,
			Amount:      "1000",
			TxHash:      fmt.Sprintf("0xtx%d", i),
			BlockNumber: uint64(100 + i),
			Timestamp:   testNow.Add(-time.Duration(i) * 6 * time.Hour),
		}
		if _, err := store.UpsertOrder(ctx, order); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

type fakeTrigger struct {
	mu   sync.Mutex
	reqs []schedule.Request
}

func (f *fakeTrigger) RunNow(ctx context.Context, req schedule.Request) schedule.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return schedule.Report{Syncs: []schedule.SyncReport{{Kind: model.SyncKindOrders, ChainID: 56}}}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func newTestServer(t *testing.T, trigger Trigger, auth *Authenticator, cache ResponseCache) *Server {
	s := NewServer(Config{MaxPageSize: 10, CacheTTL: time.Minute}, seedStore(t), trigger, auth, cache, zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s
}

func do(t *testing.T, s *Server, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOrdersPaginationIsCapped(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/orders?limit=500&page=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data  []model.Order `json:"data"`
		Page  int           `json:"page"`
		Limit int           `json:"limit"`
		Total int64         `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Limit != 10 || resp.Page != 2 || resp.Total != 30 || len(resp.Data) != 10 {
		t.Fatalf("unexpected page: limit=%d page=%d total=%d len=%d", resp.Limit, resp.Page, resp.Total, len(resp.Data))
	}
}

func TestOrdersFilterByUserAndRange(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/orders?user="+userB+"&range=24h", nil, nil)
	var resp struct {
		Data  []model.Order `json:"data"`
		Total int64         `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// userB owns i=0 and i=3 inside the last 24h (0h and 18h ago).
	if resp.Total != 2 {
		t.Fatalf("expected 2 orders, got %d", resp.Total)
	}
	for _, order := range resp.Data {
		if order.User != userB {
			t.Fatalf("unexpected user %s", order.User)
		}
	}
}

func TestInvalidRangeIsClientError(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/orders?range=abc", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != http.StatusBadRequest || resp.Error == "" {
		t.Fatalf("unexpected error payload: %+v", resp)
	}
}

func TestHugePageIsClientError(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/orders?page=1000000000000000000&limit=10", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTimelineAndSummary(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/orders/timeline?interval=day&range=2d", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("timeline status %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/v1/orders/timeline?interval=week", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown interval, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/orders/summary?chain=56", nil, nil)
	var resp struct {
		Data []struct {
			Orders int64  `json:"orders"`
			Users  int64  `json:"users"`
			Volume string `json:"volume"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Orders != 30 || resp.Data[0].Users != 2 || resp.Data[0].Volume != "30000" {
		t.Fatalf("unexpected summary: %+v", resp.Data)
	}
}

func TestVolumeNotFound(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/volume", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminSyncRequiresToken(t *testing.T) {
	auth := NewAuthenticator("secret")
	trigger := &fakeTrigger{}
	s := newTestServer(t, trigger, auth, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/admin/sync", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	forged, _ := NewAuthenticator("other").IssueToken("ops", time.Hour)
	rec = do(t, s, http.MethodPost, "/api/v1/admin/sync", nil, http.Header{"Authorization": {"Bearer " + forged}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", rec.Code)
	}

	token, err := auth.IssueToken("ops", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	body := []byte(`{"kinds":["orders"],"volume":false}`)
	rec = do(t, s, http.MethodPost, "/api/v1/admin/sync", body, http.Header{"Authorization": {"Bearer " + token}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(trigger.reqs) != 1 || trigger.reqs[0].Volume || trigger.reqs[0].Kinds[0] != model.SyncKindOrders {
		t.Fatalf("unexpected trigger request: %+v", trigger.reqs)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/admin/sync", []byte(`{"kinds":["bogus"]}`), http.Header{"Authorization": {"Bearer " + token}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad kind, got %d", rec.Code)
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t, &fakeTrigger{}, nil, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/admin/sync", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthenticator("secret")
	auth.now = func() time.Time { return testNow.Add(-2 * time.Hour) }
	token, _ := auth.IssueToken("ops", time.Hour)
	auth.now = func() time.Time { return testNow }
	if _, err := auth.Validate(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestResponseCache(t *testing.T) {
	cache := &mapCache{data: make(map[string][]byte)}
	s := newTestServer(t, nil, nil, cache)

	first := do(t, s, http.MethodGet, "/api/v1/sync/status", nil, nil)
	if first.Header().Get("X-Cache") != "" {
		t.Fatalf("sync status must not be cached")
	}

	first = do(t, s, http.MethodGet, "/api/v1/orders/summary", nil, nil)
	if first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected MISS, got %q", first.Header().Get("X-Cache"))
	}
	second := do(t, s, http.MethodGet, "/api/v1/orders/summary", nil, nil)
	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected HIT, got %q", second.Header().Get("X-Cache"))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("cached body differs")
	}

	bad := do(t, s, http.MethodGet, "/api/v1/orders?range=nope", nil, nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}
	if _, ok := cache.data["/api/v1/orders?range=nope"]; ok {
		t.Fatalf("error responses must not be cached")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
