package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"orderScope/internal/metrics"
	"orderScope/internal/model"
)

// ChainConfig describes one gateway deployment.
type ChainConfig struct {
	ID       uint64
	Name     string
	RPCURL   string
	Contract common.Address
	Slow     bool
}

// ConnectorConfig holds call pacing and batching settings shared by all chains.
type ConnectorConfig struct {
	Cooldown       time.Duration
	SlowExtraDelay time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	EventBatchSize uint64
	CallTimeout    time.Duration
}

// EventResult holds decoded events and the sub-ranges that could not be fetched.
type EventResult struct {
	Events []model.OrderEvent
	Failed []model.BlockRange
}

type chainConn struct {
	info     model.ChainInfo
	contract common.Address
	backend  Backend
	limiter  *rate.Limiter
	closer   func()
}

// Connector exposes read-only gateway operations for every configured chain.
type Connector struct {
	cfg    ConnectorConfig
	logger *zap.Logger

	dial   dialFunc

	mu     sync.RWMutex
	chains map[uint64]*chainConn
	order  []uint64
}

// NewConnector builds an empty Connector; chains are added with Dial or Register.
func NewConnector(cfg ConnectorConfig, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EventBatchSize == 0 {
		cfg.EventBatchSize = 2000
	}
	return &Connector{
		cfg:    cfg,
		logger: logger,
		dial:   dialRPC,
		chains: make(map[uint64]*chainConn),
	}
}

// Dial opens one RPC connection per chain.
//
// A chain whose endpoint cannot be reached is still registered behind a
// backend that redials on first use, so its calls fail with
// ErrChainUnavailable while the other chains keep working. A chain whose
// endpoint reports a different chain id is left out. Dial only fails when
// no chain could be registered.
func (c *Connector) Dial(ctx context.Context, chains []ChainConfig) error {
	registered := 0
	for _, cc := range chains {
		backend, closer, err := c.dialChain(ctx, cc)
		switch {
		case errors.Is(err, ErrChainMismatch):
			c.logger.Error("chain skipped",
				zap.Uint64("chain_id", cc.ID),
				zap.String("name", cc.Name),
				zap.Error(err),
			)
			continue
		case err != nil:
			c.logger.Warn("chain unreachable, will redial on use",
				zap.Uint64("chain_id", cc.ID),
				zap.String("name", cc.Name),
				zap.Error(err),
			)
			lazy := &redialBackend{cc: cc, dial: c.dialChain}
			c.register(cc, lazy, lazy.Close)
		default:
			c.register(cc, backend, closer)
			c.logger.Info("chain connected",
				zap.Uint64("chain_id", cc.ID),
				zap.String("name", cc.Name),
				zap.String("contract", cc.Contract.Hex()),
				zap.Bool("slow", cc.Slow),
			)
		}
		registered++
	}
	if registered == 0 && len(chains) > 0 {
		return fmt.Errorf("%w: no chain could be registered", ErrChainUnavailable)
	}
	return nil
}

func (c *Connector) dialChain(ctx context.Context, cc ChainConfig) (Backend, func(), error) {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	return c.dial(ctx, cc)
}

// Register adds a chain served by an existing backend.
func (c *Connector) Register(cc ChainConfig, backend Backend) {
	c.register(cc, backend, nil)
}

func (c *Connector) register(cc ChainConfig, backend Backend, closer func()) {
	limit := rate.Inf
	if c.cfg.Cooldown > 0 {
		limit = rate.Every(c.cfg.Cooldown)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chains[cc.ID]; !ok {
		c.order = append(c.order, cc.ID)
	}
	c.chains[cc.ID] = &chainConn{
		info:     model.ChainInfo{ID: cc.ID, Name: cc.Name, Slow: cc.Slow},
		contract: cc.Contract,
		backend:  backend,
		limiter:  rate.NewLimiter(limit, 1),
		closer:   closer,
	}
}

// Close closes all RPC connections.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.chains {
		if conn.closer != nil {
			conn.closer()
		}
	}
}

// Chains lists the configured chains in configuration order.
func (c *Connector) Chains() []model.ChainInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ChainInfo, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.chains[id].info)
	}
	return out
}

// IsSlow reports whether the chain is flagged as having a strict provider.
func (c *Connector) IsSlow(chainID uint64) bool {
	conn, err := c.conn(chainID)
	if err != nil {
		return false
	}
	return conn.info.Slow
}

// CurrentBlock returns the latest block height.
func (c *Connector) CurrentBlock(ctx context.Context, chainID uint64) (uint64, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return 0, err
	}
	var block uint64
	err = c.call(ctx, conn, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		block, err = conn.backend.LatestBlockNumber(ctx)
		return err
	})
	return block, err
}

// BlockTimestamp returns the block time in unix seconds.
func (c *Connector) BlockTimestamp(ctx context.Context, chainID uint64, number uint64) (uint64, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return 0, err
	}
	return c.blockTimestamp(ctx, conn, number)
}

func (c *Connector) blockTimestamp(ctx context.Context, conn *chainConn, number uint64) (uint64, error) {
	var header *types.Header
	err := c.call(ctx, conn, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		header, err = conn.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return 0, err
	}
	if header == nil {
		return 0, fmt.Errorf("%w: block %d not found on chain %d", ErrChainUnavailable, number, conn.info.ID)
	}
	return header.Time, nil
}

// Counters reads the aggregate order counters of the gateway.
func (c *Connector) Counters(ctx context.Context, chainID uint64) (model.Counters, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return model.Counters{}, err
	}

	read := func(method string) (string, error) {
		values, err := c.callGateway(ctx, conn, method)
		if err != nil {
			return "", err
		}
		value, err := asBigInt(values[0])
		if err != nil {
			return "", fmt.Errorf("%s: %w", method, err)
		}
		return value.String(), nil
	}

	var counters model.Counters
	if counters.OrderCount, err = read("orderCounter"); err != nil {
		return model.Counters{}, err
	}
	if counters.TotalVolume, err = read("totalVolume"); err != nil {
		return model.Counters{}, err
	}
	if counters.SuccessfulOrders, err = read("successfulOrders"); err != nil {
		return model.Counters{}, err
	}
	if counters.FailedOrders, err = read("failedOrders"); err != nil {
		return model.Counters{}, err
	}
	return counters, nil
}

// SupportedTokens lists the tokens registered on the gateway.
func (c *Connector) SupportedTokens(ctx context.Context, chainID uint64) ([]common.Address, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return nil, err
	}
	values, err := c.callGateway(ctx, conn, "getSupportedTokens")
	if err != nil {
		return nil, err
	}
	return asAddresses(values[0])
}

// TokenDetails reads name, decimals, cumulative volume and active flag of a token.
func (c *Connector) TokenDetails(ctx context.Context, chainID uint64, token common.Address) (model.TokenInfo, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return model.TokenInfo{}, err
	}
	values, err := c.callGateway(ctx, conn, "getTokenDetails", token)
	if err != nil {
		return model.TokenInfo{}, err
	}
	return decodeTokenDetails(chainID, token, values)
}

// OrderEvents fetches OrderCreated events in [fromBlock, toBlock].
//
// The range is split into sub-batches of EventBatchSize blocks. A sub-batch that
// fails is logged, recorded in EventResult.Failed and skipped; events from the
// remaining sub-batches are still returned. Block timestamps are cached for the
// duration of the call.
func (c *Connector) OrderEvents(ctx context.Context, chainID uint64, fromBlock, toBlock uint64) (EventResult, error) {
	conn, err := c.conn(chainID)
	if err != nil {
		return EventResult{}, err
	}
	topic, err := OrderCreatedTopic()
	if err != nil {
		return EventResult{}, fmt.Errorf("order created topic: %w", err)
	}
	ranges, err := SplitRange(fromBlock, toBlock, c.cfg.EventBatchSize)
	if err != nil {
		return EventResult{}, err
	}

	timestamps := make(map[uint64]uint64)
	var result EventResult
	for _, blockRange := range ranges {
		events, err := c.fetchRange(ctx, conn, topic, blockRange, timestamps)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.logger.Warn("event sub-batch skipped",
				zap.Uint64("chain_id", chainID),
				zap.Uint64("from", blockRange.From),
				zap.Uint64("to", blockRange.To),
				zap.Error(err),
			)
			metrics.FailedRanges.WithLabelValues(chainLabel(chainID)).Inc()
			result.Failed = append(result.Failed, blockRange)
			continue
		}
		result.Events = append(result.Events, events...)
	}
	return result, nil
}

func (c *Connector) fetchRange(ctx context.Context, conn *chainConn, topic common.Hash, blockRange model.BlockRange, timestamps map[uint64]uint64) ([]model.OrderEvent, error) {
	var logs []types.Log
	err := c.call(ctx, conn, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = conn.backend.ContractLogs(ctx, conn.contract, topic, blockRange)
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.OrderEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := DecodeOrderCreated(conn.info.ID, log)
		if err != nil {
			c.logger.Warn("decode order event",
				zap.Uint64("chain_id", conn.info.ID),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}

		ts, ok := timestamps[log.BlockNumber]
		if !ok {
			ts, err = c.blockTimestamp(ctx, conn, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			timestamps[log.BlockNumber] = ts
		}
		event.Timestamp = ts
		events = append(events, event)
	}
	return events, nil
}

func (c *Connector) callGateway(ctx context.Context, conn *chainConn, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := GatewayABI()
	if err != nil {
		return nil, fmt.Errorf("parse gateway abi: %w", err)
	}
	return c.callMethod(ctx, conn, parsed, method, args...)
}

func (c *Connector) callMethod(ctx context.Context, conn *chainConn, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &conn.contract, Data: data}

	var resp []byte
	err = c.call(ctx, conn, method, func(ctx context.Context) error {
		var err error
		resp, err = conn.backend.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// call paces, retries and instruments a single RPC.
func (c *Connector) call(ctx context.Context, conn *chainConn, method string, fn func(context.Context) error) error {
	label := chainLabel(conn.info.ID)
	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		if err := c.wait(ctx, conn); err != nil {
			return err
		}

		callCtx := ctx
		if c.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err != nil {
			metrics.RPCCalls.WithLabelValues(label, method, "error").Inc()
			c.logger.Debug("rpc call failed",
				zap.Uint64("chain_id", conn.info.ID),
				zap.String("method", method),
				zap.Error(err),
			)
			return err
		}
		metrics.RPCCalls.WithLabelValues(label, method, "ok").Inc()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s on chain %d: %w: %w", method, conn.info.ID, ErrChainUnavailable, err)
	}
	return nil
}

// wait blocks until the chain's cooldown elapsed; strict providers get an extra delay.
func (c *Connector) wait(ctx context.Context, conn *chainConn) error {
	if err := conn.limiter.Wait(ctx); err != nil {
		return err
	}
	if conn.info.Slow {
		return sleep(ctx, c.cfg.SlowExtraDelay)
	}
	return nil
}

func (c *Connector) conn(chainID uint64) (*chainConn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotConfigured, chainID)
	}
	return conn, nil
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
