package model

import "time"

// TokenVolume is one breakdown entry of a volume snapshot.
type TokenVolume struct {
	ChainID     uint64  `json:"chain_id"`
	Token       string  `json:"token"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	RawVolume   string  `json:"raw_volume"`
	TokenAmount float64 `json:"token_amount"`
	VolumeUSD   float64 `json:"volume_usd"`
	VolumeLocal float64 `json:"volume_local"`
	PriceUSD    float64 `json:"price_usd"`
	PriceLocal  float64 `json:"price_local"`
}

// VolumeSnapshot is an aggregated rollup across all chains and tokens.
type VolumeSnapshot struct {
	ID               int64         `json:"id,omitempty"`
	TotalVolumeUSD   float64       `json:"total_volume_usd"`
	TotalVolumeLocal float64       `json:"total_volume_local"`
	LocalCurrency    string        `json:"local_currency"`
	Breakdown        []TokenVolume `json:"breakdown"`
	Timestamp        time.Time     `json:"timestamp"`
}

// TokenInfo captures the gateway's view of a supported token.
type TokenInfo struct {
	ChainID  uint64 `json:"chain_id"`
	Address  string `json:"address"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Volume   string `json:"volume"`
	Active   bool   `json:"active"`
}

// ChainInfo identifies a configured chain.
type ChainInfo struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Slow bool   `json:"slow"`
}
