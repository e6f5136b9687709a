package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Job type constants
const (
	// High priority queue
	TypeRankedDistribution  = "pools:ranked_distribution"
	TypeLotteryDistribution = "pools:lottery_distribution"

	// Medium priority queue
	TypePayoutProcessing = "payouts:process_pending"
	TypeLedgerReconcile  = "ledger:reconcile"

	// Low priority queue
	TypeRankingSnapshot = "pools:ranking_snapshot"
)

// Queue names
const (
	QueueHigh   = "high"
	QueueMedium = "medium"
	QueueLow    = "low"
)

// RankedDistributionJobPayload selects the day to distribute. Empty means
// yesterday, relative to when the task runs.
type RankedDistributionJobPayload struct {
	Date string `json:"date,omitempty"`
}

// NewRankedDistributionTask creates a ranked pool distribution task. Tasks
// for an explicit date share an id so a day is queued at most once.
func NewRankedDistributionTask(payload RankedDistributionJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueHigh), asynq.MaxRetry(5)}
	if payload.Date != "" {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("%s:%s", TypeRankedDistribution, payload.Date)))
	}
	return asynq.NewTask(TypeRankedDistribution, data, opts...), nil
}

// LotteryDistributionJobPayload selects the pot year. Zero means the
// current year.
type LotteryDistributionJobPayload struct {
	Year int `json:"year,omitempty"`
}

// NewLotteryDistributionTask creates an annual pot distribution task
func NewLotteryDistributionTask(payload LotteryDistributionJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueHigh), asynq.MaxRetry(5)}
	if payload.Year != 0 {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("%s:%d", TypeLotteryDistribution, payload.Year)))
	}
	return asynq.NewTask(TypeLotteryDistribution, data, opts...), nil
}

// PayoutProcessingJobPayload bounds how many pending requests one run pays
type PayoutProcessingJobPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewPayoutProcessingTask creates a pending payout sweep task
func NewPayoutProcessingTask(payload PayoutProcessingJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePayoutProcessing, data, asynq.Queue(QueueMedium), asynq.MaxRetry(3)), nil
}

// NewLedgerReconcileTask creates an aggregate reconciliation task
func NewLedgerReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeLedgerReconcile, nil, asynq.Queue(QueueMedium), asynq.MaxRetry(3))
}

// NewRankingSnapshotTask creates an hourly ranking snapshot task. A missed
// snapshot is superseded by the next one, so it is not retried.
func NewRankingSnapshotTask() *asynq.Task {
	return asynq.NewTask(TypeRankingSnapshot, nil, asynq.Queue(QueueLow), asynq.MaxRetry(0))
}
