package aggregate

import (
	"math/big"
	"strings"
)

// positiveAmount reports whether raw is a base-10 integer greater than zero.
func positiveAmount(raw string) bool {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	return ok && value.Sign() > 0
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
