package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orderScope/internal/chain"
	"orderScope/internal/storage"
)

const defaultPageSize = 20

type pageParams struct {
	Page  int
	Limit int
}

func (p pageParams) toStorage() storage.Page {
	return storage.Page{Offset: (p.Page - 1) * p.Limit, Limit: p.Limit}
}

// parsePage reads page (1-based) and limit; limit is capped at maxLimit.
func parsePage(r *http.Request, maxLimit int) (pageParams, error) {
	p := pageParams{Page: 1, Limit: defaultPageSize}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, fmt.Errorf("invalid page: %q", raw)
		}
		p.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, fmt.Errorf("invalid limit: %q", raw)
		}
		p.Limit = n
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return p, fmt.Errorf("page out of range: %d", p.Page)
	}
	return p, nil
}

func parseChain(r *http.Request) (*uint64, error) {
	raw := r.URL.Query().Get("chain")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chain: %q", raw)
	}
	return &id, nil
}

func parseAddressParam(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", nil
	}
	addr, err := chain.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %q", name, raw)
	}
	return chain.NormalizeAddress(addr), nil
}

// parseSince converts the range parameter to a lower time bound.
func parseSince(r *http.Request, now time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("range")
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := ParseRange(raw)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}

func parseOrderFilter(r *http.Request, now time.Time) (storage.OrderFilter, error) {
	var (
		filter storage.OrderFilter
		err    error
	)
	if filter.ChainID, err = parseChain(r); err != nil {
		return filter, err
	}
	if filter.Token, err = parseAddressParam(r, "token"); err != nil {
		return filter, err
	}
	if filter.User, err = parseAddressParam(r, "user"); err != nil {
		return filter, err
	}
	if filter.Since, err = parseSince(r, now); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseLimit(r *http.Request, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return maxLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit: %q", raw)
	}
	if maxLimit > 0 && n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
