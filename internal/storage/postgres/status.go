package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"orderScope/internal/model"
	"orderScope/internal/storage"
)

const statusColumns = `kind, chain_id, last_synced_block, last_sync_at, running, last_error, failed_ranges, success_count, error_count`

// EnsureSyncStatus returns the cursor for (kind, chain), creating it at block 0.
func (s *Store) EnsureSyncStatus(ctx context.Context, kind model.SyncKind, chainID uint64) (model.SyncStatus, error) {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sync_status (kind, chain_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (kind, chain_id) DO NOTHING
	`, string(kind), int64(chainID)); err != nil {
		return model.SyncStatus{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+statusColumns+` FROM sync_status WHERE kind=$1 AND chain_id=$2`, string(kind), int64(chainID))
	return scanStatus(row)
}

// AcquireSync flips running to true only when it is currently false.
func (s *Store) AcquireSync(ctx context.Context, kind model.SyncKind, chainID uint64) (model.SyncStatus, bool, error) {
	current, err := s.EnsureSyncStatus(ctx, kind, chainID)
	if err != nil {
		return model.SyncStatus{}, false, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE sync_status SET running = true, updated_at = now()
		WHERE kind=$1 AND chain_id=$2 AND running = false
		RETURNING `+statusColumns,
		string(kind), int64(chainID))
	status, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			current.Running = true
			return current, false, nil
		}
		return model.SyncStatus{}, false, err
	}
	return status, true, nil
}

// ReleaseSync clears running and records the outcome of a run.
func (s *Store) ReleaseSync(ctx context.Context, kind model.SyncKind, chainID uint64, outcome model.SyncOutcome) (model.SyncStatus, error) {
	ranges := outcome.FailedRanges
	if ranges == nil {
		ranges = []model.BlockRange{}
	}
	rangesJSON, err := json.Marshal(ranges)
	if err != nil {
		return model.SyncStatus{}, fmt.Errorf("marshal failed ranges: %w", err)
	}

	var lastError *string
	var successInc, errorInc int64 = 1, 0
	if outcome.Err != nil {
		msg := outcome.Err.Error()
		lastError = &msg
		successInc, errorInc = 0, 1
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE sync_status SET
			running = false,
			last_synced_block = GREATEST(last_synced_block, $3),
			last_sync_at = now(),
			last_error = $4,
			failed_ranges = (
				SELECT COALESCE(jsonb_agg(kept.elem ORDER BY kept.ord), '[]'::jsonb)
				FROM (
					SELECT t.elem, t.ord
					FROM jsonb_array_elements(failed_ranges || $5::jsonb) WITH ORDINALITY AS t(elem, ord)
					ORDER BY t.ord DESC
					LIMIT $8
				) kept
			),
			success_count = success_count + $6,
			error_count = error_count + $7,
			updated_at = now()
		WHERE kind=$1 AND chain_id=$2
		RETURNING `+statusColumns,
		string(kind),
		int64(chainID),
		int64(outcome.SyncedBlock),
		lastError,
		string(rangesJSON),
		successInc,
		errorInc,
		storage.MaxFailedRanges,
	)
	return scanStatus(row)
}

// ResetRunning clears stale running flags at startup.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE sync_status SET running = false, updated_at = now() WHERE running = true`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListSyncStatus returns every cursor ordered by kind and chain.
func (s *Store) ListSyncStatus(ctx context.Context) ([]model.SyncStatus, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+statusColumns+` FROM sync_status ORDER BY kind, chain_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncStatus
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

func scanStatus(row pgx.Row) (model.SyncStatus, error) {
	var (
		kind       string
		chainID    int64
		lastBlock  int64
		lastSyncAt *time.Time
		rangesJSON []byte
		status     model.SyncStatus
	)
	if err := row.Scan(
		&kind,
		&chainID,
		&lastBlock,
		&lastSyncAt,
		&status.Running,
		&status.LastError,
		&rangesJSON,
		&status.SuccessCount,
		&status.ErrorCount,
	); err != nil {
		return model.SyncStatus{}, err
	}
	status.Kind = model.SyncKind(kind)
	status.ChainID = uint64(chainID)
	status.LastSyncedBlock = uint64(lastBlock)
	status.LastSyncAt = lastSyncAt
	if len(rangesJSON) > 0 {
		if err := json.Unmarshal(rangesJSON, &status.FailedRanges); err != nil {
			return model.SyncStatus{}, fmt.Errorf("decode failed ranges: %w", err)
		}
	}
	return status, nil
}
