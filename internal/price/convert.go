package price

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrConversion marks a malformed on-chain amount.
var ErrConversion = errors.New("conversion error")

// Conversion is a raw token amount expressed in token units and fiat.
type Conversion struct {
	TokenAmount float64 `json:"token_amount"`
	USD         float64 `json:"usd"`
	Local       float64 `json:"local"`
}

// Convert divides amountRaw by 10^decimals and prices it with quote.
// Precision is kept until the final float conversion.
func Convert(amountRaw string, decimals int, quote Quote) (Conversion, error) {
	raw := strings.TrimSpace(amountRaw)
	if raw == "" {
		return Conversion{}, fmt.Errorf("%w: empty amount", ErrConversion)
	}
	if decimals < 0 {
		return Conversion{}, fmt.Errorf("%w: negative decimals %d", ErrConversion, decimals)
	}
	if !isDigits(raw) {
		return Conversion{}, fmt.Errorf("%w: %q is not an unsigned integer amount", ErrConversion, amountRaw)
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Conversion{}, fmt.Errorf("%w: %q", ErrConversion, amountRaw)
	}

	tokens := decimal.NewFromBigInt(amount, -int32(decimals))
	usd := tokens.Mul(decimal.NewFromFloat(quote.USD))
	local := tokens.Mul(decimal.NewFromFloat(quote.Local))

	return Conversion{
		TokenAmount: tokens.InexactFloat64(),
		USD:         usd.InexactFloat64(),
		Local:       local.InexactFloat64(),
	}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
