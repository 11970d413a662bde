package aggregate

import (
	"time"

	"orderScope/internal/model"
)

// Accumulator collects breakdown entries and keeps running fiat totals.
type Accumulator struct {
	entries []model.TokenVolume
	usd     float64
	local   float64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add appends one converted token entry to the totals.
func (a *Accumulator) Add(entry model.TokenVolume) {
	a.entries = append(a.entries, entry)
	a.usd += entry.VolumeUSD
	a.local += entry.VolumeLocal
}

func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Snapshot freezes the accumulated state.
func (a *Accumulator) Snapshot(localCurrency string, ts time.Time) *model.VolumeSnapshot {
	breakdown := make([]model.TokenVolume, len(a.entries))
	copy(breakdown, a.entries)
	return &model.VolumeSnapshot{
		TotalVolumeUSD:   a.usd,
		TotalVolumeLocal: a.local,
		LocalCurrency:    localCurrency,
		Breakdown:        breakdown,
		Timestamp:        ts.UTC(),
	}
}
