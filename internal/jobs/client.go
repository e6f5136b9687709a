package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commission-engine/internal/observability"

	"github.com/hibiken/asynq"
)

// TaskEnqueuer is the part of asynq.Client the job client needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client handles enqueueing background jobs
type Client struct {
	client TaskEnqueuer
	logger *observability.Logger
}

// NewClient creates a new job client
func NewClient(redisOpt asynq.RedisClientOpt, logger *observability.Logger) *Client {
	return NewClientWithEnqueuer(asynq.NewClient(redisOpt), logger)
}

// NewClientWithEnqueuer creates a job client over an existing enqueuer
func NewClientWithEnqueuer(client TaskEnqueuer, logger *observability.Logger) *Client {
	return &Client{
		client: client,
		logger: logger,
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

// BackfillRanked queues a ranked distribution for every day in [from, to].
// Days that are already queued are skipped. It returns how many were queued.
func (c *Client) BackfillRanked(ctx context.Context, from, to time.Time) (int, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("backfill range ends before it starts")
	}

	queued := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		task, err := NewRankedDistributionTask(RankedDistributionJobPayload{Date: day.Format(time.DateOnly)})
		if err != nil {
			c.logger.Error(ctx, "failed to create ranked distribution task", err)
			return queued, fmt.Errorf("failed to create ranked distribution task: %w", err)
		}
		ok, err := c.enqueue(ctx, task)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}
	return queued, nil
}

// EnqueueLotteryDistribution queues the pot distribution for year
func (c *Client) EnqueueLotteryDistribution(ctx context.Context, year int) error {
	task, err := NewLotteryDistributionTask(LotteryDistributionJobPayload{Year: year})
	if err != nil {
		c.logger.Error(ctx, "failed to create lottery distribution task", err)
		return fmt.Errorf("failed to create lottery distribution task: %w", err)
	}
	_, err = c.enqueue(ctx, task)
	return err
}

// EnqueuePayoutProcessing queues an immediate pending payout sweep
func (c *Client) EnqueuePayoutProcessing(ctx context.Context, limit int) error {
	task, err := NewPayoutProcessingTask(PayoutProcessingJobPayload{Limit: limit})
	if err != nil {
		c.logger.Error(ctx, "failed to create payout processing task", err)
		return fmt.Errorf("failed to create payout processing task: %w", err)
	}
	_, err = c.enqueue(ctx, task)
	return err
}

// enqueue reports false when a task with the same id is already queued
func (c *Client) enqueue(ctx context.Context, task *asynq.Task) (bool, error) {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			c.logger.Info(ctx, fmt.Sprintf("%s task already queued", task.Type()))
			return false, nil
		}
		c.logger.Error(ctx, fmt.Sprintf("failed to enqueue %s task", task.Type()), err)
		return false, fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}

	c.logger.Info(ctx, fmt.Sprintf("enqueued %s task: %s (queue: %s)", task.Type(), info.ID, info.Queue))
	return true, nil
}
