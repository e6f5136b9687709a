package scheduler

import (
	"commission-engine/internal/jobs"
	"commission-engine/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Entry is one periodic task
type Entry struct {
	Name string
	Spec string
	Task *asynq.Task
}

// Config holds the tunable parts of the schedule
type Config struct {
	ReconcileInterval time.Duration
	PayoutBatchSize   int
}

// Entries returns the engine's periodic tasks. Specs are evaluated in UTC.
func Entries(cfg Config) ([]Entry, error) {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 6 * time.Hour
	}
	if cfg.PayoutBatchSize <= 0 {
		cfg.PayoutBatchSize = 100
	}

	ranked, err := jobs.NewRankedDistributionTask(jobs.RankedDistributionJobPayload{})
	if err != nil {
		return nil, err
	}
	lottery, err := jobs.NewLotteryDistributionTask(jobs.LotteryDistributionJobPayload{})
	if err != nil {
		return nil, err
	}
	payouts, err := jobs.NewPayoutProcessingTask(jobs.PayoutProcessingJobPayload{Limit: cfg.PayoutBatchSize})
	if err != nil {
		return nil, err
	}

	return []Entry{
		{Name: "ranked distribution", Spec: "@daily", Task: ranked},
		{Name: "ranking snapshot", Spec: "@hourly", Task: jobs.NewRankingSnapshotTask()},
		{Name: "lottery distribution", Spec: "0 0 25 12 *", Task: lottery},
		{Name: "payout processing", Spec: "*/15 * * * *", Task: payouts},
		{Name: "ledger reconcile", Spec: "@every " + cfg.ReconcileInterval.String(), Task: jobs.NewLedgerReconcileTask()},
	}, nil
}

// Registrar is the part of asynq.Scheduler used to register entries
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// Scheduler registers the periodic tasks with asynq
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    *observability.Logger
}

// New creates a scheduler with every entry registered
func New(redisOpt asynq.RedisClientOpt, cfg Config, logger *observability.Logger) (*Scheduler, error) {
	s := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   &jobs.AsynqLogger{Logger: logger},
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error(context.Background(), "failed to enqueue scheduled task", err)
			}
		},
	})

	entries, err := Entries(cfg)
	if err != nil {
		return nil, err
	}
	if err := Register(s, entries, logger); err != nil {
		return nil, err
	}

	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Register adds entries to r
func Register(r Registrar, entries []Entry, logger *observability.Logger) error {
	for _, entry := range entries {
		id, err := r.Register(entry.Spec, entry.Task)
		if err != nil {
			return fmt.Errorf("failed to register %s (%s): %w", entry.Name, entry.Spec, err)
		}
		logger.Info(context.Background(), fmt.Sprintf("Registered scheduled job: %s (%s) as %s", entry.Name, entry.Spec, id))
	}
	return nil
}

// Start begins enqueueing periodic tasks
func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

// Shutdown stops the scheduler
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
	s.logger.Info(context.Background(), "Scheduler stopped")
}
