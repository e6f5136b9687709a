package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commission-engine/internal/jobs"
	"commission-engine/internal/observability"
	poolsProcessor "commission-engine/internal/pools/processor"
	"commission-engine/internal/store"

	"github.com/hibiken/asynq"
)

// PoolRunner runs the pool distributions
type PoolRunner interface {
	RunRanked(ctx context.Context, date time.Time) (poolsProcessor.RankedResult, error)
	RunLottery(ctx context.Context, year int) (poolsProcessor.LotteryResult, error)
	Snapshot(ctx context.Context, now time.Time) (poolsProcessor.SnapshotResult, error)
}

// PoolWorker handles pool distribution and snapshot jobs
type PoolWorker struct {
	pools  PoolRunner
	logger *observability.Logger
	now    func() time.Time
}

// NewPoolWorker creates a new pool worker
func NewPoolWorker(pools PoolRunner, logger *observability.Logger) *PoolWorker {
	return &PoolWorker{
		pools:  pools,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProcessRankedDistributionTask distributes the ranked pool for the payload
// date, or for yesterday when none is given
func (w *PoolWorker) ProcessRankedDistributionTask(ctx context.Context, task *asynq.Task) (err error) {
	started := time.Now()
	defer func() { observability.ObserveJob(jobs.TypeRankedDistribution, started, err) }()

	var payload jobs.RankedDistributionJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal ranked distribution payload", err)
		return fmt.Errorf("failed to unmarshal ranked distribution payload: %w", asynq.SkipRetry)
	}

	date := store.DateOnly(w.now()).AddDate(0, 0, -1)
	if payload.Date != "" {
		date, err = time.Parse(time.DateOnly, payload.Date)
		if err != nil {
			w.logger.Error(ctx, "invalid ranked distribution date", err)
			return fmt.Errorf("invalid date %q: %w", payload.Date, asynq.SkipRetry)
		}
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "pool_date", Value: date.Format(time.DateOnly)})

	result, err := w.pools.RunRanked(ctx, date)
	if err != nil {
		return w.distributionError(ctx, "ranked", err)
	}

	switch {
	case result.AlreadyDistributed:
		w.logger.Info(ctx, "ranked pool already distributed")
	case result.InsufficientData:
		w.logger.Info(ctx, "not enough affiliates to distribute ranked pool")
	default:
		w.logger.Info(ctx, fmt.Sprintf("distributed %s of %s ranked pool to %d affiliates",
			result.DistributedAmount.StringFixed(2), result.PoolAmount.StringFixed(2), len(result.Rankings)))
	}
	return nil
}

// ProcessLotteryDistributionTask distributes the annual pot for the payload
// year, or for the current year when none is given
func (w *PoolWorker) ProcessLotteryDistributionTask(ctx context.Context, task *asynq.Task) (err error) {
	started := time.Now()
	defer func() { observability.ObserveJob(jobs.TypeLotteryDistribution, started, err) }()

	var payload jobs.LotteryDistributionJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error(ctx, "failed to unmarshal lottery distribution payload", err)
		return fmt.Errorf("failed to unmarshal lottery distribution payload: %w", asynq.SkipRetry)
	}

	year := payload.Year
	if year == 0 {
		year = w.now().Year()
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "pot_year", Value: year})

	result, err := w.pools.RunLottery(ctx, year)
	if err != nil {
		return w.distributionError(ctx, "lottery", err)
	}

	switch {
	case result.AlreadyDistributed:
		w.logger.Info(ctx, "annual pot already distributed")
	case result.Skipped:
		w.logger.Info(ctx, fmt.Sprintf("annual pot skipped: %s", result.SkipReason))
	default:
		w.logger.Info(ctx, fmt.Sprintf("distributed %s of %s annual pot to %d affiliates",
			result.DistributedAmount.StringFixed(2), result.PotAmount.StringFixed(2), len(result.Shares)))
	}
	return nil
}

// ProcessRankingSnapshotTask records the hourly ranking snapshot
func (w *PoolWorker) ProcessRankingSnapshotTask(ctx context.Context, task *asynq.Task) (err error) {
	started := time.Now()
	defer func() { observability.ObserveJob(jobs.TypeRankingSnapshot, started, err) }()

	result, err := w.pools.Snapshot(ctx, w.now())
	if err != nil {
		w.logger.Error(ctx, "failed to record ranking snapshot", err)
		return fmt.Errorf("failed to record ranking snapshot: %w", err)
	}

	w.logger.Info(ctx, fmt.Sprintf("recorded %d ranking snapshots, pruned %d", len(result.Snapshots), result.Pruned))
	return nil
}

// distributionError decides whether a failed run is worth retrying
func (w *PoolWorker) distributionError(ctx context.Context, pool string, err error) error {
	switch {
	case errors.Is(err, poolsProcessor.ErrDistributionInFlight):
		w.logger.Info(ctx, fmt.Sprintf("%s distribution already running elsewhere", pool))
		return nil
	case errors.Is(err, store.ErrLedgerHalted), errors.Is(err, poolsProcessor.ErrFutureDate):
		w.logger.Error(ctx, fmt.Sprintf("%s distribution refused", pool), err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		w.logger.Error(ctx, fmt.Sprintf("%s distribution failed", pool), err)
		return fmt.Errorf("%s distribution failed: %w", pool, err)
	}
}
