package chain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second

	// JSON-RPC error code nodes use for a reverted eth_call.
	revertErrorCode = 3
)

// withRetry runs fn until it succeeds, the error is permanent or maxRetries
// extra attempts are spent. The delay doubles per attempt up to maxRetryBackoff.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBackoff
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case attempt >= maxRetries, ctx.Err() != nil, isPermanent(err):
			return err
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, maxRetryBackoff)
	}
}

// isPermanent reports errors that retrying cannot fix, such as a reverted call.
func isPermanent(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
