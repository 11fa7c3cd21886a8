// Package queue schedules and processes background price refresh tasks on
// asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeOrderRefresh is the asynq task type of a background order refresh.
const TypeOrderRefresh = "pricing:order:refresh"

// QueueName is the asynq queue refresh tasks are published to.
const QueueName = "pricing"

// OrderRefreshPayload is the body of a TypeOrderRefresh task.
type OrderRefreshPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// NewOrderRefreshTask builds the task refreshing the prices of orderID.
func NewOrderRefreshTask(orderID uuid.UUID) (*asynq.Task, error) {
	if orderID == uuid.Nil {
		return nil, errors.New("queue: order id is required")
	}
	raw, err := json.Marshal(OrderRefreshPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderRefresh, raw), nil
}

// TaskClient is satisfied by *asynq.Client.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes refresh tasks. A task for the same order is enqueued
// once within DedupTTL.
type Enqueuer struct {
	Client   TaskClient
	DedupTTL time.Duration
	MaxRetry int
	Timeout  time.Duration
}

// EnqueueOrderRefresh schedules a forced recalculation of orderID.
func (e Enqueuer) EnqueueOrderRefresh(ctx context.Context, orderID uuid.UUID) error {
	if e.Client == nil {
		return errors.New("queue: task client not configured")
	}
	task, err := NewOrderRefreshTask(orderID)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task, e.options()...); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue order refresh %s: %w", orderID, err)
	}
	return nil
}

func (e Enqueuer) options() []asynq.Option {
	ttl := e.DedupTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	retries := e.MaxRetry
	if retries <= 0 {
		retries = 5
	}
	opts := []asynq.Option{asynq.Queue(QueueName), asynq.Unique(ttl), asynq.MaxRetry(retries)}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	return opts
}
