package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"orderScope/internal/metrics"
	"orderScope/internal/model"
	"orderScope/internal/price"
	"orderScope/internal/storage"
)

// TokenSource lists gateway tokens per chain.
type TokenSource interface {
	Chains() []model.ChainInfo
	SupportedTokens(ctx context.Context, chainID uint64) ([]common.Address, error)
	TokenDetails(ctx context.Context, chainID uint64, token common.Address) (model.TokenInfo, error)
}

// PriceSource resolves token names and fetches fiat quotes.
type PriceSource interface {
	Resolve(name string) (symbol string, id string, ok bool)
	FetchPrices(ctx context.Context, ids []string) (map[string]price.Quote, error)
}

// Config controls aggregation behavior.
type Config struct {
	LocalCurrency string
}

// Aggregator rolls gateway token volumes into fiat volume snapshots.
type Aggregator struct {
	cfg    Config
	tokens TokenSource
	prices PriceSource
	store  storage.SnapshotStore
	logger *zap.Logger
	now    func() time.Time
}

func NewAggregator(cfg Config, tokens TokenSource, prices PriceSource, store storage.SnapshotStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LocalCurrency == "" {
		cfg.LocalCurrency = "ngn"
	}
	return &Aggregator{
		cfg:    cfg,
		tokens: tokens,
		prices: prices,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

type pricedToken struct {
	info   model.TokenInfo
	symbol string
	feedID string
}

// Run builds and stores one snapshot. Any error before the insert means nothing
// was written.
func (a *Aggregator) Run(ctx context.Context) (*model.VolumeSnapshot, error) {
	if a.tokens == nil || a.prices == nil || a.store == nil {
		return nil, fmt.Errorf("aggregator is not fully configured")
	}

	candidates, err := a.collectTokens(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(candidates))
	for _, token := range candidates {
		ids = append(ids, token.feedID)
	}
	quotes := map[string]price.Quote{}
	if len(ids) > 0 {
		quotes, err = a.prices.FetchPrices(ctx, uniqueStrings(ids))
		if err != nil {
			var unavailable *price.UnavailableError
			if !errors.As(err, &unavailable) {
				return nil, fmt.Errorf("fetch prices: %w", err)
			}
			a.logger.Warn("prices unavailable for some tokens", zap.Strings("ids", unavailable.IDs))
		}
	}

	acc := NewAccumulator()
	for _, token := range candidates {
		quote, ok := quotes[token.feedID]
		if !ok {
			continue
		}
		conv, err := price.Convert(token.info.Volume, int(token.info.Decimals), quote)
		if err != nil {
			a.logger.Warn("skip token conversion",
				zap.Uint64("chain_id", token.info.ChainID),
				zap.String("token", token.info.Address),
				zap.Error(err),
			)
			continue
		}
		acc.Add(model.TokenVolume{
			ChainID:     token.info.ChainID,
			Token:       token.info.Address,
			Name:        token.info.Name,
			Symbol:      token.symbol,
			RawVolume:   token.info.Volume,
			TokenAmount: conv.TokenAmount,
			VolumeUSD:   conv.USD,
			VolumeLocal: conv.Local,
			PriceUSD:    quote.USD,
			PriceLocal:  quote.Local,
		})
	}

	if len(candidates) > 0 && acc.Len() == 0 {
		return nil, fmt.Errorf("no token could be priced: %w", price.ErrPriceUnavailable)
	}

	snapshot := acc.Snapshot(a.cfg.LocalCurrency, a.now())
	if err := a.store.InsertVolumeSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("insert volume snapshot: %w", err)
	}
	metrics.VolumeUSD.Set(snapshot.TotalVolumeUSD)
	a.logger.Info("volume snapshot stored",
		zap.Int64("id", snapshot.ID),
		zap.Int("tokens", acc.Len()),
		zap.Float64("total_usd", snapshot.TotalVolumeUSD),
		zap.Float64("total_local", snapshot.TotalVolumeLocal),
	)
	return snapshot, nil
}

// collectTokens walks every chain sequentially and keeps active tokens with
// volume whose name resolves to a price-feed id.
func (a *Aggregator) collectTokens(ctx context.Context) ([]pricedToken, error) {
	var out []pricedToken
	for _, info := range a.tokens.Chains() {
		addresses, err := a.tokens.SupportedTokens(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("supported tokens on chain %d: %w", info.ID, err)
		}
		for _, address := range addresses {
			details, err := a.tokens.TokenDetails(ctx, info.ID, address)
			if err != nil {
				return nil, fmt.Errorf("token details %s on chain %d: %w", address.Hex(), info.ID, err)
			}
			if !details.Active || !positiveAmount(details.Volume) {
				continue
			}
			symbol, id, ok := a.prices.Resolve(details.Name)
			if !ok {
				a.logger.Info("token name not resolved",
					zap.Uint64("chain_id", info.ID),
					zap.String("token", details.Address),
					zap.String("name", details.Name),
				)
				continue
			}
			out = append(out, pricedToken{info: details, symbol: symbol, feedID: id})
		}
	}
	return out, nil
}
