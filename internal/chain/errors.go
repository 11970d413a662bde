package chain

import "errors"

var (
	// ErrChainNotConfigured is returned for chain ids absent from the configuration.
	ErrChainNotConfigured = errors.New("chain not configured")
	// ErrChainUnavailable is returned when the chain RPC cannot serve a call.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrChainMismatch is returned when an RPC endpoint serves a different chain id.
	ErrChainMismatch = errors.New("rpc chain id mismatch")
)
