package processor

import (
	"commission-engine/internal/leaderboard"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"fmt"
	"time"
)

// SnapshotResult reports one hourly snapshot
type SnapshotResult struct {
	RecordedAt time.Time                     `json:"recorded_at"`
	Snapshots  []store.HourlyRankingSnapshot `json:"snapshots"`
	Pruned     int64                         `json:"pruned"`
}

// Snapshot records the current top ranking for today and how far each
// affiliate moved since the lookback window. It never touches money.
func (p *PoolProcessor) Snapshot(ctx context.Context, now time.Time) (SnapshotResult, error) {
	if now.IsZero() {
		now = p.now()
	}
	now = now.UTC()
	ctx = observability.WithFields(ctx, observability.Field{Key: "recorded_at", Value: now})

	stats, err := p.store.ListDailyStats(ctx, store.DateOnly(now))
	if err != nil {
		p.logger.Error(ctx, "failed to list daily stats", err)
		return SnapshotResult{}, err
	}
	ranked := RankStats(stats)
	if len(ranked) > p.cfg.SnapshotTopN {
		ranked = ranked[:p.cfg.SnapshotTopN]
	}

	previous, err := p.store.ListSnapshotsSince(ctx, now.Add(-p.cfg.SnapshotLookback))
	if err != nil {
		p.logger.Error(ctx, "failed to list previous snapshots", err)
		return SnapshotResult{}, err
	}
	// newest first, so the first rank seen per affiliate is its latest
	previousRank := make(map[string]int, len(previous))
	for _, snap := range previous {
		key := snap.AffiliateID.String()
		if _, seen := previousRank[key]; !seen {
			previousRank[key] = snap.Rank
		}
	}

	result := SnapshotResult{RecordedAt: now, Snapshots: make([]store.HourlyRankingSnapshot, 0, len(ranked))}
	for i, stat := range ranked {
		rank := i + 1
		change := 0
		if prev, ok := previousRank[stat.AffiliateID.String()]; ok {
			change = prev - rank
		}
		result.Snapshots = append(result.Snapshots, store.HourlyRankingSnapshot{
			AffiliateID:     stat.AffiliateID,
			Rank:            rank,
			ProfitGenerated: stat.ProfitGenerated,
			RankChange:      change,
			RecordedAt:      now,
		})
	}

	if len(result.Snapshots) > 0 {
		if err := p.store.CreateHourlySnapshots(ctx, result.Snapshots); err != nil {
			p.logger.Error(ctx, "failed to create hourly snapshots", err)
			return SnapshotResult{}, err
		}
	}

	pruned, err := p.store.DeleteSnapshotsBefore(ctx, now.Add(-p.cfg.SnapshotRetention))
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to prune old snapshots", err)
	}
	result.Pruned = pruned

	p.logger.Info(ctx, fmt.Sprintf("recorded %d ranking snapshots, pruned %d", len(result.Snapshots), pruned))
	return result, nil
}

// Ticker returns the live top n for date. Redis serves it when available;
// the daily stats table is the fallback.
func (p *PoolProcessor) Ticker(ctx context.Context, date time.Time, n int) ([]leaderboard.Entry, error) {
	if date.IsZero() {
		date = p.now()
	}
	date = store.DateOnly(date)
	if n <= 0 {
		n = p.cfg.SnapshotTopN
	}

	if p.live != nil && p.live.IsEnabled() {
		entries, err := p.live.GetTopN(ctx, date, n)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			p.logger.InfoWithError(ctx, "live ranking unavailable, reading daily stats", err)
		}
	}

	stats, err := p.store.ListDailyStats(ctx, date)
	if err != nil {
		p.logger.Error(ctx, "failed to list daily stats", err)
		return nil, err
	}
	ranked := RankStats(stats)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	entries := make([]leaderboard.Entry, len(ranked))
	for i, stat := range ranked {
		entries[i] = leaderboard.Entry{Rank: i + 1, AffiliateID: stat.AffiliateID, Profit: stat.ProfitGenerated}
	}
	return entries, nil
}
