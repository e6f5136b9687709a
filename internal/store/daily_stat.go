package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dailyStatColumns = `id, affiliate_id, date, profit_generated, rank, pool_share, created_at, updated_at`

const sqlAddDailyProfit = `
INSERT INTO daily_stats (affiliate_id, date, profit_generated)
VALUES ($1, $2, $3)
ON CONFLICT (affiliate_id, date) DO UPDATE
SET profit_generated = daily_stats.profit_generated + EXCLUDED.profit_generated,
    updated_at = CURRENT_TIMESTAMP
`

// AddDailyProfit accumulates an affiliate's profit for a date
func (s *Store) AddDailyProfit(ctx context.Context, affiliateID uuid.UUID, date time.Time, delta decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, sqlAddDailyProfit, affiliateID, DateOnly(date), delta)
	if err != nil {
		return fmt.Errorf("failed to add daily profit: %w", err)
	}
	return nil
}

// Ties on profit fall back to the earliest row, then the affiliate id, so the
// ordering is deterministic for a given set of rows.
const sqlListDailyStats = `
SELECT ` + dailyStatColumns + `
FROM daily_stats
WHERE date = $1
ORDER BY profit_generated DESC, created_at ASC, affiliate_id ASC
`

// ListDailyStats retrieves a date's stats in ranking order
func (s *Store) ListDailyStats(ctx context.Context, date time.Time) ([]DailyStat, error) {
	var stats []DailyStat
	err := s.db.SelectContext(ctx, &stats, sqlListDailyStats, DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily stats: %w", err)
	}
	return stats, nil
}

const sqlUpdateDailyStatRanking = `
UPDATE daily_stats SET rank = $2, pool_share = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1
`

// UpdateDailyStatRanking finalizes a stat's rank and pool share
func (s *Store) UpdateDailyStatRanking(ctx context.Context, id uuid.UUID, rank int, poolShare decimal.Decimal) error {
	return s.execOne(ctx, "update daily stat ranking", sqlUpdateDailyStatRanking, id, rank, poolShare)
}

const rankedPoolRunColumns = `id, date, total_profit, pool_amount, distributed_amount, created_at`

const sqlGetRankedPoolRun = `SELECT ` + rankedPoolRunColumns + ` FROM ranked_pool_runs WHERE date = $1`

// GetRankedPoolRun retrieves the distribution marker for a date
func (s *Store) GetRankedPoolRun(ctx context.Context, date time.Time) (RankedPoolRun, error) {
	var run RankedPoolRun
	err := s.db.GetContext(ctx, &run, sqlGetRankedPoolRun, DateOnly(date))
	if err != nil {
		if notFound(err) {
			return RankedPoolRun{}, ErrNotFound
		}
		return RankedPoolRun{}, fmt.Errorf("failed to get ranked pool run: %w", err)
	}
	return run, nil
}

const sqlCreateRankedPoolRun = `
INSERT INTO ranked_pool_runs (date, total_profit, pool_amount, distributed_amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (date) DO NOTHING
RETURNING ` + rankedPoolRunColumns

// CreateRankedPoolRun writes the distribution marker. A second marker for the
// same date returns ErrConflict.
func (s *Store) CreateRankedPoolRun(ctx context.Context, params CreateRankedPoolRunParams) (RankedPoolRun, error) {
	var run RankedPoolRun
	err := s.db.GetContext(ctx, &run, sqlCreateRankedPoolRun,
		DateOnly(params.Date),
		params.TotalProfit,
		params.PoolAmount,
		params.DistributedAmount)
	if err != nil {
		if notFound(err) {
			return RankedPoolRun{}, ErrConflict
		}
		return RankedPoolRun{}, fmt.Errorf("failed to create ranked pool run: %w", err)
	}
	return run, nil
}
