package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"orderScope/internal/model"
)

// Backend is the subset of JSON-RPC calls the connector relies on.
type Backend interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ContractLogs(ctx context.Context, contract common.Address, topic common.Hash, blockRange model.BlockRange) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is a go-ethereum backed Backend bound to one chain.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

var _ Backend = (*Client)(nil)

// DialClient connects to rpcURL and checks that the node serves chainID.
func DialClient(ctx context.Context, chainID uint64, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}
	remote, err := c.ethClient.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	if !remote.IsUint64() || remote.Uint64() != chainID {
		c.Close()
		return nil, fmt.Errorf("%w: configured %d, node reports %s", ErrChainMismatch, chainID, remote)
	}
	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// ContractLogs returns the logs one contract emitted with the given topic0.
func (c *Client) ContractLogs(ctx context.Context, contract common.Address, topic common.Hash, blockRange model.BlockRange) ([]types.Log, error) {
	return c.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blockRange.From),
		ToBlock:   new(big.Int).SetUint64(blockRange.To),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{topic}},
	})
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

type dialFunc func(ctx context.Context, cc ChainConfig) (Backend, func(), error)

func dialRPC(ctx context.Context, cc ChainConfig) (Backend, func(), error) {
	client, err := DialClient(ctx, cc.ID, cc.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// redialBackend stands in for a chain that was unreachable at startup. Every
// call dials again until one connection succeeds; that connection is kept.
type redialBackend struct {
	cc   ChainConfig
	dial dialFunc

	mu      sync.Mutex
	backend Backend
	closer  func()
}

var _ Backend = (*redialBackend)(nil)

func (b *redialBackend) get(ctx context.Context) (Backend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend != nil {
		return b.backend, nil
	}
	backend, closer, err := b.dial(ctx, b.cc)
	if err != nil {
		return nil, fmt.Errorf("redial chain %d: %w", b.cc.ID, err)
	}
	b.backend, b.closer = backend, closer
	return backend, nil
}

// Close releases the connection if one was established.
func (b *redialBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closer != nil {
		b.closer()
	}
}

func (b *redialBackend) LatestBlockNumber(ctx context.Context) (uint64, error) {
	backend, err := b.get(ctx)
	if err != nil {
		return 0, err
	}
	return backend.LatestBlockNumber(ctx)
}

func (b *redialBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	backend, err := b.get(ctx)
	if err != nil {
		return nil, err
	}
	return backend.HeaderByNumber(ctx, number)
}

func (b *redialBackend) ContractLogs(ctx context.Context, contract common.Address, topic common.Hash, blockRange model.BlockRange) ([]types.Log, error) {
	backend, err := b.get(ctx)
	if err != nil {
		return nil, err
	}
	return backend.ContractLogs(ctx, contract, topic, blockRange)
}

func (b *redialBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	backend, err := b.get(ctx)
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, msg, blockNumber)
}
