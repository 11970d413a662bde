package postgres

import (
	"reflect"
	"testing"
	"time"

	"orderScope/internal/storage"
)

func TestOrderWhereEmpty(t *testing.T) {
	where, args := orderWhere(storage.OrderFilter{})
	if where != "" || args != nil {
		t.Fatalf("expected no clause, got %q %v", where, args)
	}
}

func TestOrderWhereNumbersPlaceholders(t *testing.T) {
	chainID := uint64(56)
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := orderWhere(storage.OrderFilter{
		ChainID: &chainID,
		User:    "0xaa",
		Since:   since,
	})

	wantWhere := " WHERE chain_id = $1 AND user_address = $2 AND block_time >= $3"
	if where != wantWhere {
		t.Fatalf("unexpected where: %q", where)
	}
	wantArgs := []any{int64(56), "0xaa", since}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestLimitArg(t *testing.T) {
	if limitArg(0) != nil {
		t.Fatalf("expected nil for zero limit")
	}
	if limitArg(25) != 25 {
		t.Fatalf("expected limit passthrough")
	}
}
