package scheduler

import (
	"commission-engine/internal/jobs"
	"commission-engine/internal/observability"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRegistrar struct {
	specs map[string]string
	err   error
}

func (r *recordingRegistrar) Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.specs[task.Type()] = cronspec
	return task.Type(), nil
}

func TestEntries(t *testing.T) {
	entries, err := Entries(Config{})
	require.NoError(t, err)

	r := &recordingRegistrar{specs: map[string]string{}}
	require.NoError(t, Register(r, entries, observability.NewLogger()))

	assert.Equal(t, map[string]string{
		jobs.TypeRankedDistribution:  "@daily",
		jobs.TypeRankingSnapshot:     "@hourly",
		jobs.TypeLotteryDistribution: "0 0 25 12 *",
		jobs.TypePayoutProcessing:    "*/15 * * * *",
		jobs.TypeLedgerReconcile:     "@every 6h0m0s",
	}, r.specs)
}

func TestEntries_CustomReconcileInterval(t *testing.T) {
	entries, err := Entries(Config{ReconcileInterval: 90 * time.Minute, PayoutBatchSize: 25})
	require.NoError(t, err)

	for _, entry := range entries {
		switch entry.Task.Type() {
		case jobs.TypeLedgerReconcile:
			assert.Equal(t, "@every 1h30m0s", entry.Spec)
		case jobs.TypePayoutProcessing:
			assert.JSONEq(t, `{"limit":25}`, string(entry.Task.Payload()))
		}
	}
}

func TestRegister_StopsOnError(t *testing.T) {
	entries, err := Entries(Config{})
	require.NoError(t, err)

	r := &recordingRegistrar{specs: map[string]string{}, err: errors.New("bad cron expression")}
	err = Register(r, entries, observability.NewLogger())
	assert.ErrorContains(t, err, "ranked distribution")
}
