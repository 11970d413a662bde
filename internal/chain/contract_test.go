package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func buildOrderLog(t *testing.T, contract common.Address, orderID int64, user, token common.Address, requestID string, amount *big.Int, block uint64, txHash common.Hash, index uint) types.Log {
	t.Helper()
	parsed, err := GatewayABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events["OrderCreated"]
	data, err := event.Inputs.NonIndexed().Pack(requestID, amount)
	if err != nil {
		t.Fatalf("pack order created: %v", err)
	}
	return types.Log{
		Address: contract,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(big.NewInt(orderID)),
			common.BytesToHash(user.Bytes()),
			common.BytesToHash(token.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
		Index:       index,
	}
}

func TestDecodeOrderCreated(t *testing.T) {
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	user := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	token := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	txHash := common.HexToHash("0xAA")

	log := buildOrderLog(t, contract, 42, user, token, "req-1", amount, 900, txHash, 3)

	event, err := DecodeOrderCreated(8453, log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if event.ChainID != 8453 || event.OrderID != "42" || event.RequestID != "req-1" {
		t.Fatalf("identity mismatch: %+v", event)
	}
	if event.User != "0xabcdef0000000000000000000000000000000001" {
		t.Fatalf("user not lowercased: %s", event.User)
	}
	if event.Token != "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Fatalf("token not lowercased: %s", event.Token)
	}
	if event.Amount != "123456789012345678901234567890" {
		t.Fatalf("amount mismatch: %s", event.Amount)
	}
	if event.BlockNumber != 900 || event.LogIndex != 3 {
		t.Fatalf("position mismatch: %+v", event)
	}
}

func TestDecodeOrderCreatedRejectsForeignTopic(t *testing.T) {
	log := types.Log{Topics: []common.Hash{common.HexToHash("0x01"), {}, {}, {}}}
	if _, err := DecodeOrderCreated(1, log); err == nil {
		t.Fatalf("expected error for unknown topic0")
	}

	log.Topics = log.Topics[:1]
	if _, err := DecodeOrderCreated(1, log); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}
