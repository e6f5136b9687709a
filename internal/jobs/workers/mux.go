package workers

import (
	"commission-engine/internal/jobs"

	"github.com/hibiken/asynq"
)

// NewServeMux routes every engine task type to its handler
func NewServeMux(pools *PoolWorker, ledger *LedgerWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TypeRankedDistribution, pools.ProcessRankedDistributionTask)
	mux.HandleFunc(jobs.TypeLotteryDistribution, pools.ProcessLotteryDistributionTask)
	mux.HandleFunc(jobs.TypeRankingSnapshot, pools.ProcessRankingSnapshotTask)

	mux.HandleFunc(jobs.TypeLedgerReconcile, ledger.ProcessLedgerReconcileTask)
	mux.HandleFunc(jobs.TypePayoutProcessing, ledger.ProcessPayoutProcessingTask)

	return mux
}
