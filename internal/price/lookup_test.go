package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeFeed struct {
	mu     sync.Mutex
	quotes map[string]Quote
	err    error
	calls  [][]string
}

func (f *fakeFeed) Prices(_ context.Context, ids []string) (map[string]Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]Quote)
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLookup(feed Feed, clock *fakeClock) *Lookup {
	l := NewLookup(LookupConfig{CacheTTL: 5 * time.Minute}, feed, testSymbols(), zap.NewNop())
	l.now = clock.Now
	return l
}

func TestFetchPricesServesFreshCache(t *testing.T) {
	feed := &fakeFeed{quotes: map[string]Quote{"tether": {USD: 1, Local: 1530}}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	lookup := newTestLookup(feed, clock)
	ctx := context.Background()

	if _, err := lookup.FetchPrices(ctx, []string{"tether"}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	clock.Advance(time.Minute)
	got, err := lookup.FetchPrices(ctx, []string{"tether", "tether"})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if got["tether"].Local != 1530 {
		t.Fatalf("quote mismatch: %+v", got)
	}
	if len(feed.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(feed.calls))
	}
}

func TestFetchPricesFallsBackToStaleCache(t *testing.T) {
	feed := &fakeFeed{quotes: map[string]Quote{"usd-coin": {USD: 1, Local: 1536}}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	lookup := newTestLookup(feed, clock)
	ctx := context.Background()

	if _, err := lookup.FetchPrices(ctx, []string{"usd-coin"}); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	clock.Advance(time.Hour)
	feed.err = fmt.Errorf("429 too many requests")

	got, err := lookup.FetchPrices(ctx, []string{"usd-coin"})
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if got["usd-coin"] != (Quote{USD: 1, Local: 1536}) {
		t.Fatalf("stale quote mismatch: %+v", got)
	}
	if len(feed.calls) != 2 {
		t.Fatalf("expected a refresh attempt, got %d calls", len(feed.calls))
	}
}

func TestFetchPricesUnavailableWithoutCache(t *testing.T) {
	feed := &fakeFeed{err: fmt.Errorf("connection refused")}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	lookup := newTestLookup(feed, clock)

	got, err := lookup.FetchPrices(context.Background(), []string{"tether"})
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) || len(unavailable.IDs) != 1 || unavailable.IDs[0] != "tether" {
		t.Fatalf("unexpected error detail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no quotes, got %+v", got)
	}
}

func TestFetchPricesPartialAvailability(t *testing.T) {
	feed := &fakeFeed{quotes: map[string]Quote{"tether": {USD: 1, Local: 1500}}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	lookup := newTestLookup(feed, clock)

	got, err := lookup.FetchPrices(context.Background(), []string{"tether", "unknown-id"})
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) || len(unavailable.IDs) != 1 || unavailable.IDs[0] != "unknown-id" {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["tether"]; !ok {
		t.Fatalf("expected available quote to be returned: %+v", got)
	}
}

func TestFetchPricesHonorsMinInterval(t *testing.T) {
	feed := &fakeFeed{quotes: map[string]Quote{"tether": {USD: 1}, "usd-coin": {USD: 1}}}
	lookup := NewLookup(LookupConfig{CacheTTL: time.Minute, MinInterval: 60 * time.Millisecond}, feed, testSymbols(), zap.NewNop())
	ctx := context.Background()

	if _, err := lookup.FetchPrices(ctx, []string{"tether"}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	start := time.Now()
	if _, err := lookup.FetchPrices(ctx, []string{"usd-coin"}); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second upstream call not delayed, elapsed %s", elapsed)
	}
	if len(feed.calls) != 2 {
		t.Fatalf("expected two upstream calls, got %d", len(feed.calls))
	}
}

func TestResolve(t *testing.T) {
	lookup := NewLookup(LookupConfig{}, &fakeFeed{}, testSymbols(), nil)
	symbol, id, ok := lookup.Resolve("Tether USD")
	if !ok || symbol != "USDT" || id != "tether" {
		t.Fatalf("resolve mismatch: %q %q %v", symbol, id, ok)
	}
	if _, _, ok := lookup.Resolve("Dogecoin"); ok {
		t.Fatalf("expected unresolved name")
	}
}

func TestHTTPFeed(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tether":{"usd":1.0,"ngn":1536.5},"usd-coin":{"usd":0.999,"ngn":1535}}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL+"/", "", "NGN", time.Second)
	got, err := feed.Prices(context.Background(), []string{"tether", "usd-coin"})
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if got["tether"] != (Quote{USD: 1.0, Local: 1536.5}) {
		t.Fatalf("tether mismatch: %+v", got["tether"])
	}
	if got["usd-coin"].USD != 0.999 {
		t.Fatalf("usd-coin mismatch: %+v", got["usd-coin"])
	}
	if gotQuery != "ids=tether%2Cusd-coin&vs_currencies=usd%2Cngn" {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
}

func TestHTTPFeedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL, "", "ngn", time.Second)
	if _, err := feed.Prices(context.Background(), []string{"tether"}); err == nil {
		t.Fatalf("expected error on 429")
	}
}
