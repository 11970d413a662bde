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

// InsertVolumeSnapshot stores a snapshot and assigns its id.
func (s *Store) InsertVolumeSnapshot(ctx context.Context, snapshot *model.VolumeSnapshot) error {
	breakdown := snapshot.Breakdown
	if breakdown == nil {
		breakdown = []model.TokenVolume{}
	}
	payload, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO volume_snapshots (
			total_volume_usd, total_volume_local, local_currency, breakdown, snapshot_at
		) VALUES ($1, $2, $3, $4::jsonb, $5)
		RETURNING id
	`,
		snapshot.TotalVolumeUSD,
		snapshot.TotalVolumeLocal,
		snapshot.LocalCurrency,
		string(payload),
		snapshot.Timestamp,
	).Scan(&snapshot.ID)
}

const snapshotColumns = `id, total_volume_usd, total_volume_local, local_currency, breakdown, snapshot_at`

// LatestVolumeSnapshot returns the most recent snapshot.
func (s *Store) LatestVolumeSnapshot(ctx context.Context) (model.VolumeSnapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM volume_snapshots ORDER BY snapshot_at DESC, id DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.VolumeSnapshot{}, storage.ErrNotFound
	}
	return snap, err
}

// VolumeSnapshots returns snapshots newest first.
func (s *Store) VolumeSnapshots(ctx context.Context, since time.Time, limit int) ([]model.VolumeSnapshot, error) {
	var sinceArg any
	if !since.IsZero() {
		sinceArg = since
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+` FROM volume_snapshots
		WHERE ($1::timestamptz IS NULL OR snapshot_at >= $1)
		ORDER BY snapshot_at DESC, id DESC
		LIMIT $2
	`, sinceArg, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VolumeSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (model.VolumeSnapshot, error) {
	var (
		snap    model.VolumeSnapshot
		payload []byte
	)
	if err := row.Scan(
		&snap.ID,
		&snap.TotalVolumeUSD,
		&snap.TotalVolumeLocal,
		&snap.LocalCurrency,
		&payload,
		&snap.Timestamp,
	); err != nil {
		return model.VolumeSnapshot{}, err
	}
	if err := json.Unmarshal(payload, &snap.Breakdown); err != nil {
		return model.VolumeSnapshot{}, fmt.Errorf("decode breakdown: %w", err)
	}
	return snap, nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
