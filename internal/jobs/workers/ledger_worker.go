package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/jobs"
	"commission-engine/internal/observability"
	payoutsProcessor "commission-engine/internal/payouts/processor"
	"commission-engine/internal/store"

	"github.com/hibiken/asynq"
)

// Reconciler checks stored aggregates against the commission ledger
type Reconciler interface {
	ReconcileAll(ctx context.Context) (commissionsProcessor.ReconcileReport, error)
}

// PendingPayouts pays out pending payout requests
type PendingPayouts interface {
	ProcessPending(ctx context.Context, limit int) (payoutsProcessor.PendingSummary, error)
}

// LedgerWorker handles reconciliation and payout sweeps
type LedgerWorker struct {
	reconciler Reconciler
	payouts    PendingPayouts
	logger     *observability.Logger
}

// NewLedgerWorker creates a new ledger worker
func NewLedgerWorker(reconciler Reconciler, payouts PendingPayouts, logger *observability.Logger) *LedgerWorker {
	return &LedgerWorker{
		reconciler: reconciler,
		payouts:    payouts,
		logger:     logger,
	}
}

// ProcessLedgerReconcileTask runs a full reconciliation. A mismatch has
// already halted the ledger, so it is reported without retrying.
func (w *LedgerWorker) ProcessLedgerReconcileTask(ctx context.Context, task *asynq.Task) (err error) {
	started := time.Now()
	defer func() { observability.ObserveJob(jobs.TypeLedgerReconcile, started, err) }()

	report, err := w.reconciler.ReconcileAll(ctx)
	if err != nil {
		if errors.Is(err, commissionsProcessor.ErrAggregateMismatch) {
			w.logger.Error(ctx, fmt.Sprintf("reconciliation found %d mismatched affiliates", len(report.Mismatches)), err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		w.logger.Error(ctx, "reconciliation failed", err)
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	w.logger.Info(ctx, fmt.Sprintf("reconciled %d affiliates", report.Checked))
	return nil
}

// ProcessPayoutProcessingTask pays pending payout requests oldest first
func (w *LedgerWorker) ProcessPayoutProcessingTask(ctx context.Context, task *asynq.Task) (err error) {
	started := time.Now()
	defer func() { observability.ObserveJob(jobs.TypePayoutProcessing, started, err) }()

	var payload jobs.PayoutProcessingJobPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			w.logger.Error(ctx, "failed to unmarshal payout processing payload", err)
			return fmt.Errorf("failed to unmarshal payout processing payload: %w", asynq.SkipRetry)
		}
	}

	summary, err := w.payouts.ProcessPending(ctx, payload.Limit)
	if err != nil {
		if errors.Is(err, store.ErrLedgerHalted) || errors.Is(err, payoutsProcessor.ErrSettlementFailed) {
			w.logger.Error(ctx, fmt.Sprintf("payout sweep stopped after %d requests", summary.Processed), err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		w.logger.Error(ctx, "payout sweep failed", err)
		return fmt.Errorf("payout sweep failed: %w", err)
	}
	return nil
}
