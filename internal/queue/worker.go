package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/order"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// OrderRefresher recalculates order prices.
type OrderRefresher interface {
	FetchPrices(ctx context.Context, id uuid.UUID, force bool) (*order.Order, []*order.Line, error)
}

// RefreshHandler processes TypeOrderRefresh tasks.
type RefreshHandler struct {
	Orders OrderRefresher
	Logger *zerolog.Logger
}

// ProcessTask implements asynq.Handler. Missing orders and malformed
// payloads are not retried.
func (h RefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	start := time.Now()
	var p OrderRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.ObserveRefreshTask("invalid")
		return fmt.Errorf("decode %s payload: %w: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.OrderID == uuid.Nil {
		obs.ObserveRefreshTask("invalid")
		return fmt.Errorf("%s payload without order id: %w", t.Type(), asynq.SkipRetry)
	}
	log := h.logger(ctx).With().Str("order_id", p.OrderID.String()).Logger()

	o, _, err := h.Orders.FetchPrices(ctx, p.OrderID, true)
	switch {
	case errors.Is(err, pricing.ErrNotFound):
		obs.ObserveRefreshTask("not_found")
		log.Warn().Err(err).Msg("order_refresh_skipped")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, pricing.ErrInvariantViolation):
		obs.ObserveRefreshTask("invalid")
		log.Error().Err(err).Msg("order_refresh_failed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		obs.ObserveRefreshTask("retry")
		log.Warn().Err(err).Msg("order_refresh_failed")
		return err
	}
	obs.ObserveRefreshTask("ok")
	log.Info().
		Str("status", string(o.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("order_refresh_processed")
	return nil
}

func (h RefreshHandler) logger(ctx context.Context) *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zerolog.Ctx(ctx)
}

// NewServeMux routes refresh tasks to h.
func NewServeMux(h RefreshHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderRefresh, h)
	return mux
}

// ServerConfig tunes the refresh worker.
type ServerConfig struct {
	Concurrency int
	RetryBase   time.Duration
	RetryJitter float64
	Logger      zerolog.Logger
}

// NewServer builds the asynq server consuming QueueName.
func NewServer(opt asynq.RedisConnOpt, cfg ServerConfig) *asynq.Server {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := cfg.Logger
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return RetryDelay(cfg.RetryBase, cfg.RetryJitter, n)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().
				Err(err).
				Str("type", task.Type()).
				Int("retried", retried).
				Int("max_retry", maxRetry).
				Msg("task_failed")
		}),
		Logger: asynqLogger{log: logger},
	})
}

// RetryDelay returns the jittered exponential delay before retry n.
func RetryDelay(base time.Duration, jitter float64, n int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	return resilience.Backoff(base, n, jitter)
}

type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
