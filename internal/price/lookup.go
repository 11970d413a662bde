package price

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderScope/internal/metrics"
)

// ErrPriceUnavailable is returned when a requested id has never been priced.
var ErrPriceUnavailable = errors.New("price unavailable")

// UnavailableError lists the ids with no cached value after a fetch.
type UnavailableError struct {
	IDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPriceUnavailable, strings.Join(e.IDs, ","))
}

func (e *UnavailableError) Unwrap() error {
	return ErrPriceUnavailable
}

// LookupConfig controls caching and upstream pacing.
type LookupConfig struct {
	CacheTTL    time.Duration
	MinInterval time.Duration
}

type cacheEntry struct {
	quote     Quote
	fetchedAt time.Time
}

// Lookup resolves token names and serves quotes from a TTL cache in front of a Feed.
type Lookup struct {
	cfg     LookupConfig
	feed    Feed
	symbols *SymbolTable
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry

	// fetchMu serializes upstream requests so MinInterval holds across callers.
	fetchMu   sync.Mutex
	lastFetch time.Time
}

// NewLookup builds a Lookup. It is safe for concurrent use.
func NewLookup(cfg LookupConfig, feed Feed, symbols *SymbolTable, logger *zap.Logger) *Lookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{
		cfg:     cfg,
		feed:    feed,
		symbols: symbols,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Resolve maps a token display name to its symbol and price-feed identifier.
func (l *Lookup) Resolve(name string) (symbol string, id string, ok bool) {
	symbol, ok = l.symbols.ResolveSymbol(name)
	if !ok {
		return "", "", false
	}
	id, ok = l.symbols.FeedID(symbol)
	if !ok {
		return "", "", false
	}
	return symbol, id, true
}

// FetchPrices returns quotes for ids.
//
// Fresh cache entries are served without an upstream call. Otherwise one request
// is issued for the stale and missing ids, no sooner than MinInterval after the
// previous one. On upstream failure the last cached value is returned even if
// expired; ids that were never priced are reported through *UnavailableError
// while the remaining quotes are still returned.
func (l *Lookup) FetchPrices(ctx context.Context, ids []string) (map[string]Quote, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}

	if stale := l.staleIDs(ids); len(stale) > 0 {
		if err := l.refresh(ctx, ids); err != nil {
			return nil, err
		}
	}

	return l.fromCache(ids)
}

func (l *Lookup) refresh(ctx context.Context, ids []string) error {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	stale := l.staleIDs(ids)
	if len(stale) == 0 {
		return nil
	}

	if !l.lastFetch.IsZero() && l.cfg.MinInterval > 0 {
		wait := l.lastFetch.Add(l.cfg.MinInterval).Sub(l.now())
		if wait > 0 {
			l.logger.Debug("price feed cooldown", zap.Duration("wait", wait))
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.lastFetch = l.now()
	quotes, err := l.feed.Prices(ctx, stale)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.PriceFetches.WithLabelValues("error").Inc()
		l.logger.Warn("price fetch failed, serving cached values", zap.Strings("ids", stale), zap.Error(err))
		return nil
	}
	metrics.PriceFetches.WithLabelValues("ok").Inc()

	fetchedAt := l.now()
	l.mu.Lock()
	for id, quote := range quotes {
		l.cache[id] = cacheEntry{quote: quote, fetchedAt: fetchedAt}
	}
	l.mu.Unlock()

	l.logger.Debug("prices refreshed", zap.Int("requested", len(stale)), zap.Int("received", len(quotes)))
	return nil
}

func (l *Lookup) staleIDs(ids []string) []string {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()

	var stale []string
	for _, id := range ids {
		entry, ok := l.cache[id]
		if !ok || now.Sub(entry.fetchedAt) >= l.cfg.CacheTTL {
			stale = append(stale, id)
		}
	}
	return stale
}

func (l *Lookup) fromCache(ids []string) (map[string]Quote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Quote, len(ids))
	var missing []string
	for _, id := range ids {
		entry, ok := l.cache[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out[id] = entry.quote
	}
	if len(missing) > 0 {
		return out, &UnavailableError{IDs: missing}
	}
	return out, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
