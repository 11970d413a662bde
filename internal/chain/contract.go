package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"orderScope/internal/model"
)

const gatewayABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "orderId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "requestId", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "OrderCreated",
    "type": "event"
  },
  {"inputs": [], "name": "orderCounter", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalVolume", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "successfulOrders", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "failedOrders", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getSupportedTokens", "outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "getTokenDetails",
    "outputs": [
      {"internalType": "string", "name": "name", "type": "string"},
      {"internalType": "uint8", "name": "decimals", "type": "uint8"},
      {"internalType": "uint256", "name": "volume", "type": "uint256"},
      {"internalType": "bool", "name": "isActive", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const orderCreatedEvent = "OrderCreated"

var (
	gatewayABI     abi.ABI
	gatewayABIOnce sync.Once
	gatewayABIErr  error
)

// GatewayABI returns the parsed read interface of the gateway contract.
func GatewayABI() (abi.ABI, error) {
	gatewayABIOnce.Do(func() {
		gatewayABI, gatewayABIErr = abi.JSON(strings.NewReader(gatewayABIJSON))
	})
	return gatewayABI, gatewayABIErr
}

// OrderCreatedTopic returns topic0 of the OrderCreated event.
func OrderCreatedTopic() (common.Hash, error) {
	parsed, err := GatewayABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events[orderCreatedEvent].ID, nil
}

// DecodeOrderCreated decodes an OrderCreated log. The timestamp is left unset.
func DecodeOrderCreated(chainID uint64, log types.Log) (model.OrderEvent, error) {
	parsed, err := GatewayABI()
	if err != nil {
		return model.OrderEvent{}, fmt.Errorf("parse gateway abi: %w", err)
	}
	event := parsed.Events[orderCreatedEvent]

	if len(log.Topics) != 4 {
		return model.OrderEvent{}, fmt.Errorf("unexpected topic count %d", len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.OrderEvent{}, fmt.Errorf("unexpected topic0 %s", log.Topics[0].Hex())
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.OrderEvent{}, fmt.Errorf("unpack %s: %w", orderCreatedEvent, err)
	}
	if len(values) != 2 {
		return model.OrderEvent{}, fmt.Errorf("%s data size %d", orderCreatedEvent, len(values))
	}
	requestID, ok := values[0].(string)
	if !ok {
		return model.OrderEvent{}, fmt.Errorf("requestId unexpected type %T", values[0])
	}
	amount, err := asBigInt(values[1])
	if err != nil {
		return model.OrderEvent{}, fmt.Errorf("amount: %w", err)
	}

	orderID := new(big.Int).SetBytes(log.Topics[1].Bytes())

	return model.OrderEvent{
		ChainID:     chainID,
		OrderID:     orderID.String(),
		RequestID:   requestID,
		User:        NormalizeAddress(common.BytesToAddress(log.Topics[2].Bytes())),
		Token:       NormalizeAddress(common.BytesToAddress(log.Topics[3].Bytes())),
		Amount:      amount.String(),
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

func decodeTokenDetails(chainID uint64, token common.Address, values []interface{}) (model.TokenInfo, error) {
	if len(values) != 4 {
		return model.TokenInfo{}, fmt.Errorf("getTokenDetails return size %d", len(values))
	}
	name, ok := values[0].(string)
	if !ok {
		return model.TokenInfo{}, fmt.Errorf("name unexpected type %T", values[0])
	}
	decimals, err := asUint8(values[1])
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("decimals: %w", err)
	}
	volume, err := asBigInt(values[2])
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("volume: %w", err)
	}
	active, ok := values[3].(bool)
	if !ok {
		return model.TokenInfo{}, fmt.Errorf("isActive unexpected type %T", values[3])
	}
	return model.TokenInfo{
		ChainID:  chainID,
		Address:  NormalizeAddress(token),
		Name:     name,
		Decimals: decimals,
		Volume:   volume.String(),
		Active:   active,
	}, nil
}

func asAddresses(value interface{}) ([]common.Address, error) {
	switch v := value.(type) {
	case []common.Address:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported address list type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
