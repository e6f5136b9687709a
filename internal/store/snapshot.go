package store

import (
	"context"
	"fmt"
	"time"
)

const sqlCreateHourlySnapshot = `
INSERT INTO hourly_ranking_snapshots (affiliate_id, rank, profit_generated, rank_change, recorded_at)
VALUES ($1, $2, $3, $4, $5)
`

// CreateHourlySnapshots appends snapshot rows
func (s *Store) CreateHourlySnapshots(ctx context.Context, snapshots []HourlyRankingSnapshot) error {
	for _, snap := range snapshots {
		_, err := s.db.ExecContext(ctx, sqlCreateHourlySnapshot,
			snap.AffiliateID,
			snap.Rank,
			snap.ProfitGenerated,
			snap.RankChange,
			snap.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to create hourly snapshot: %w", err)
		}
	}
	return nil
}

const sqlListSnapshotsSince = `
SELECT id, affiliate_id, rank, profit_generated, rank_change, recorded_at
FROM hourly_ranking_snapshots
WHERE recorded_at >= $1
ORDER BY recorded_at DESC, rank ASC
`

// ListSnapshotsSince retrieves snapshots newest first
func (s *Store) ListSnapshotsSince(ctx context.Context, since time.Time) ([]HourlyRankingSnapshot, error) {
	var snapshots []HourlyRankingSnapshot
	err := s.db.SelectContext(ctx, &snapshots, sqlListSnapshotsSince, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

const sqlDeleteSnapshotsBefore = `DELETE FROM hourly_ranking_snapshots WHERE recorded_at < $1`

// DeleteSnapshotsBefore prunes old snapshots
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlDeleteSnapshotsBefore, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
