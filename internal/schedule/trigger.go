package schedule

import (
	"context"

	"go.uber.org/zap"

	"orderScope/internal/indexer"
	"orderScope/internal/model"
)

// Request selects what an out-of-band run executes. Empty Kinds means both.
type Request struct {
	Kinds   []model.SyncKind `json:"kinds,omitempty"`
	ChainID *uint64          `json:"chain_id,omitempty"`
	Volume  bool             `json:"volume"`
}

// SyncReport is the outcome of one (kind, chain) sync.
type SyncReport struct {
	Kind            model.SyncKind `json:"kind"`
	ChainID         uint64         `json:"chain_id"`
	RunID           string         `json:"run_id"`
	Skipped         bool           `json:"skipped"`
	LastSyncedBlock uint64         `json:"last_synced_block"`
	Inserted        int            `json:"inserted"`
	Updated         int            `json:"updated"`
	Duplicates      int            `json:"duplicates"`
	Error           string         `json:"error,omitempty"`
}

// Report is the outcome of RunNow.
type Report struct {
	Syncs       []SyncReport          `json:"syncs"`
	Volume      *model.VolumeSnapshot `json:"volume,omitempty"`
	VolumeError string                `json:"volume_error,omitempty"`
}

// RunNow executes the requested syncs and, optionally, one aggregation,
// bypassing the schedule. Failures are reported, not returned.
func (s *Scheduler) RunNow(ctx context.Context, req Request) Report {
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = []model.SyncKind{model.SyncKindMetrics, model.SyncKindOrders}
	}

	report := Report{Syncs: []SyncReport{}}
	for _, kind := range kinds {
		if req.ChainID != nil {
			res, err := s.sync.Sync(ctx, kind, *req.ChainID)
			if err != nil {
				s.logger.Warn("forced sync failed", zap.String("kind", string(kind)), zap.Uint64("chain_id", *req.ChainID), zap.Error(err))
				res.Err = err
			}
			report.Syncs = append(report.Syncs, toSyncReport(res))
			continue
		}
		for _, res := range s.sync.RunAll(ctx, kind) {
			report.Syncs = append(report.Syncs, toSyncReport(res))
		}
	}

	if req.Volume && s.volume != nil {
		snapshot, err := s.volume.Run(ctx)
		if err != nil {
			s.logger.Warn("forced aggregation failed", zap.Error(err))
			report.VolumeError = err.Error()
		} else {
			report.Volume = snapshot
		}
	}
	return report
}

func toSyncReport(res indexer.Result) SyncReport {
	report := SyncReport{
		Kind:            res.Kind,
		ChainID:         res.ChainID,
		RunID:           res.RunID,
		Skipped:         res.Skipped,
		LastSyncedBlock: res.Status.LastSyncedBlock,
		Inserted:        res.Inserted,
		Updated:         res.Updated,
		Duplicates:      res.Duplicates,
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	return report
}
