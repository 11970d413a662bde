package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"orderScope/internal/storage"
)

func TestParsePage(t *testing.T) {
	cases := []struct {
		query   string
		want    pageParams
		wantErr bool
	}{
		{"", pageParams{Page: 1, Limit: 20}, false},
		{"page=3&limit=5", pageParams{Page: 3, Limit: 5}, false},
		{"limit=1000", pageParams{Page: 1, Limit: 50}, false},
		{"page=0", pageParams{}, true},
		{"limit=abc", pageParams{}, true},
		{"page=1000000000000000000&limit=10", pageParams{}, true},
		{"page=9223372036854775807", pageParams{}, true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/x?"+tc.query, nil)
		got, err := parsePage(r, 50)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.query)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %+v err=%v want %+v", tc.query, got, err, tc.want)
		}
	}
}

func TestPageOffset(t *testing.T) {
	got := pageParams{Page: 3, Limit: 25}.toStorage()
	if got != (storage.Page{Offset: 50, Limit: 25}) {
		t.Fatalf("unexpected page: %+v", got)
	}
}

func TestParseOrderFilterNormalizesAddresses(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	r := httptest.NewRequest("GET", "/x?chain=56&token=0x00000000000000000000000000000000000000BB&range=1d", nil)
	filter, err := parseOrderFilter(r, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if filter.ChainID == nil || *filter.ChainID != 56 {
		t.Fatalf("unexpected chain: %v", filter.ChainID)
	}
	if filter.Token != "0x00000000000000000000000000000000000000bb" {
		t.Fatalf("token not normalized: %s", filter.Token)
	}
	if !filter.Since.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected since: %s", filter.Since)
	}

	bad := httptest.NewRequest("GET", "/x?user=nothex", nil)
	if _, err := parseOrderFilter(bad, now); err == nil {
		t.Fatalf("expected invalid address error")
	}
}
