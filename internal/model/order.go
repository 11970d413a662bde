package model

import "time"

// Order is one OrderCreated event stored per (chain, order id).
type Order struct {
	ChainID     uint64    `json:"chain_id"`
	OrderID     string    `json:"order_id"`
	RequestID   string    `json:"request_id"`
	User        string    `json:"user"`
	Token       string    `json:"token"`
	Amount      string    `json:"amount"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// SameContent reports whether two orders carry identical on-chain data.
func (o Order) SameContent(other Order) bool {
	return o.ChainID == other.ChainID &&
		o.OrderID == other.OrderID &&
		o.RequestID == other.RequestID &&
		o.User == other.User &&
		o.Token == other.Token &&
		o.Amount == other.Amount &&
		o.TxHash == other.TxHash &&
		o.BlockNumber == other.BlockNumber &&
		o.Timestamp.Equal(other.Timestamp)
}

// OrderEvent is a decoded OrderCreated log before it is keyed for storage.
type OrderEvent struct {
	ChainID     uint64
	OrderID     string
	RequestID   string
	User        string
	Token       string
	Amount      string
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
	Timestamp   uint64
}
