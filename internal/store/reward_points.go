package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const rewardPointsColumns = `id, affiliate_id, points, profit_amount, source, commission_id, description, created_at`

const sqlCreateRewardPointsEntry = `
INSERT INTO reward_points_history (affiliate_id, points, profit_amount, source, commission_id, description)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + rewardPointsColumns

// CreateRewardPointsEntry appends to the points history
func (s *Store) CreateRewardPointsEntry(ctx context.Context, params CreateRewardPointsEntryParams) (RewardPointsEntry, error) {
	var entry RewardPointsEntry
	err := s.db.GetContext(ctx, &entry, sqlCreateRewardPointsEntry,
		params.AffiliateID,
		params.Points,
		params.ProfitAmount,
		params.Source,
		params.CommissionID,
		params.Description)
	if err != nil {
		return RewardPointsEntry{}, fmt.Errorf("failed to create reward points entry: %w", err)
	}
	return entry, nil
}

const sqlListRewardPointsHistory = `
SELECT ` + rewardPointsColumns + `
FROM reward_points_history
WHERE affiliate_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

// ListRewardPointsHistory retrieves an affiliate's points history newest first
func (s *Store) ListRewardPointsHistory(ctx context.Context, affiliateID uuid.UUID, limit int) ([]RewardPointsEntry, error) {
	var entries []RewardPointsEntry
	err := s.db.SelectContext(ctx, &entries, sqlListRewardPointsHistory, affiliateID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward points history: %w", err)
	}
	return entries, nil
}

const sqlSumRewardPointsBySource = `
SELECT source, COALESCE(SUM(points), 0) AS points
FROM reward_points_history
WHERE affiliate_id = $1
GROUP BY source
`

// SumRewardPointsBySource totals an affiliate's points per source
func (s *Store) SumRewardPointsBySource(ctx context.Context, affiliateID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Source string `db:"source"`
		Points int64  `db:"points"`
	}
	err := s.db.SelectContext(ctx, &rows, sqlSumRewardPointsBySource, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum reward points: %w", err)
	}
	totals := make(map[string]int64, len(rows))
	for _, r := range rows {
		totals[r.Source] = r.Points
	}
	return totals, nil
}
