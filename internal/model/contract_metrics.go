package model

import "time"

// Counters are the aggregate values read from a gateway contract.
type Counters struct {
	OrderCount       string `json:"order_count"`
	TotalVolume      string `json:"total_volume"`
	SuccessfulOrders string `json:"successful_orders"`
	FailedOrders     string `json:"failed_orders"`
}

// ContractMetrics is one point of the per-chain counter time series.
type ContractMetrics struct {
	ChainID   uint64    `json:"chain_id"`
	Counters
	Timestamp time.Time `json:"timestamp"`
}
