package processor

import (
	"commission-engine/internal/leaderboard"
	"commission-engine/internal/store"
	"context"
	"time"
)

// PoolStore is the slice of the repository the distributors read outside a
// transaction
type PoolStore interface {
	InTx(ctx context.Context, fn func(store.Repository) error) error
	ListDailyStats(ctx context.Context, date time.Time) ([]store.DailyStat, error)
	GetRankedPoolRun(ctx context.Context, date time.Time) (store.RankedPoolRun, error)
	GetAnnualPot(ctx context.Context, year int) (store.AnnualPot, error)
	CreateHourlySnapshots(ctx context.Context, snapshots []store.HourlyRankingSnapshot) error
	ListSnapshotsSince(ctx context.Context, since time.Time) ([]store.HourlyRankingSnapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)
	ListCommissionsByOrderRef(ctx context.Context, orderRef string) ([]store.Commission, error)
}

// Locker serializes distribution runs across workers
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// LiveRanking serves the running daily ranking
type LiveRanking interface {
	IsEnabled() bool
	GetTopN(ctx context.Context, date time.Time, limit int) ([]leaderboard.Entry, error)
}

// EventPublisher announces completed distributions
type EventPublisher interface {
	PublishRankedPoolDistributed(ctx context.Context, result RankedResult) error
	PublishLotteryPoolDistributed(ctx context.Context, result LotteryResult) error
}
