package processor

import (
	"commission-engine/internal/observability"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPotNotFound          = errors.New("annual pot not found")
	ErrDistributionInFlight = errors.New("distribution already running")
	ErrFutureDate           = errors.New("cannot distribute a future date")
)

const (
	lockTTL = 5 * time.Minute

	// DefaultActivationYear is the first year the lottery pool pays out
	DefaultActivationYear = 2026
)

var (
	// RankedPoolRate is the share of a day's profit paid to the top three
	RankedPoolRate = decimal.RequireFromString("0.08")
	// RankedTiers are the pool fractions for ranks 1, 2 and 3
	RankedTiers = []decimal.Decimal{
		decimal.RequireFromString("0.50"),
		decimal.RequireFromString("0.30"),
		decimal.RequireFromString("0.20"),
	}
)

// Config tunes distribution and snapshot behaviour
type Config struct {
	LotteryActivationYear int
	SnapshotTopN          int
	SnapshotLookback      time.Duration
	SnapshotRetention     time.Duration
}

func (c Config) withDefaults() Config {
	if c.LotteryActivationYear == 0 {
		c.LotteryActivationYear = DefaultActivationYear
	}
	if c.SnapshotTopN <= 0 {
		c.SnapshotTopN = 10
	}
	if c.SnapshotLookback <= 0 {
		c.SnapshotLookback = time.Hour
	}
	if c.SnapshotRetention <= 0 {
		c.SnapshotRetention = 7 * 24 * time.Hour
	}
	return c
}

type PoolProcessor struct {
	store  PoolStore
	locker Locker
	live   LiveRanking
	events EventPublisher
	cfg    Config
	logger *observability.Logger
	now    func() time.Time
}

// New wires the distributors. locker, live and events may be nil.
func New(store PoolStore, locker Locker, live LiveRanking, events EventPublisher, cfg Config, logger *observability.Logger) PoolProcessor {
	return PoolProcessor{
		store:  store,
		locker: locker,
		live:   live,
		events: events,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// lock takes the cross-worker lock when one is configured. The database
// advisory lock taken inside the transaction still applies without it.
func (p *PoolProcessor) lock(ctx context.Context, key string) (func(), error) {
	if p.locker == nil {
		return func() {}, nil
	}
	release, err := p.locker.Lock(ctx, key, lockTTL)
	if err != nil {
		p.logger.InfoWithError(ctx, "distribution lock not acquired", err)
		return nil, fmt.Errorf("%w: %v", ErrDistributionInFlight, err)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.InfoWithError(ctx, "failed to release distribution lock", err)
		}
	}, nil
}
