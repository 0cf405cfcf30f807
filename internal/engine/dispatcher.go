package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra"
	"exchange_core/internal/infra/queue"
)

const maxPublishRetries = 5

// MatchFunc performs one match attempt. It reports nothing back; the
// outcome is logged and recorded by the implementation.
type MatchFunc func(ctx context.Context, orderID uint64)

// Dispatcher publishes match requests and runs the worker pool consuming
// them. Delivery is at least once.
type Dispatcher struct {
	queue   queue.Queue
	workers int
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over q with the given worker count.
func NewDispatcher(q queue.Queue, workers int, metrics *infra.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Dispatcher{
		queue:   q,
		workers: workers,
		metrics: metrics,
		logger:  slog.Default().With("module", "dispatcher"),
	}
}

// Dispatch implements domain.Dispatcher. Retriable transport errors are
// retried with backoff.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID uint64) error {
	msg := queue.NewMessage(orderID)

	var err error
	for attempt := 0; attempt <= maxPublishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(infra.CalculateBackoff(attempt - 1)):
			}
		}

		err = d.queue.Publish(ctx, msg)
		if err == nil || !domain.IsRetriable(err) {
			break
		}
		d.logger.Warn("Publish failed, retrying",
			slog.Uint64("order_id", orderID),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	if err != nil {
		return fmt.Errorf("dispatch order %d: %w", orderID, err)
	}
	return nil
}

// Run consumes the queue until ctx is cancelled or the queue is closed,
// then waits for in-flight handlers to finish.
func (d *Dispatcher) Run(ctx context.Context, handle MatchFunc) {
	d.logger.Info("Dispatcher started", slog.Int("workers", d.workers))

	jobs := make(chan queue.Delivery)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				d.process(ctx, id, job, handle)
			}
		}(i)
	}

	d.receive(ctx, jobs)
	close(jobs)
	wg.Wait()

	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) receive(ctx context.Context, jobs chan<- queue.Delivery) {
	failures := 0
	for {
		delivery, err := d.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			d.logger.Error("Receive failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(infra.CalculateBackoff(failures)):
			}
			failures++
			continue
		}
		failures = 0

		select {
		case jobs <- delivery:
		case <-ctx.Done():
			// Not acked: the transport redelivers it.
			return
		}
	}
}

// process runs one handler. In-flight work is not cut short by shutdown.
func (d *Dispatcher) process(ctx context.Context, worker int, job queue.Delivery, handle MatchFunc) {
	runCtx := context.WithoutCancel(ctx)

	d.metrics.WorkerBusy(true)
	defer d.metrics.WorkerBusy(false)

	func() {
		defer func() {
			if r := recover(); r != nil {
				d.metrics.RecordMatch(infra.MatchFailed, 0)
				d.logger.Error("CRITICAL_PANIC_DETECTED",
					slog.Int("worker", worker),
					slog.Uint64("order_id", job.Message.OrderID),
					slog.Any("panic", r))
			}
		}()
		handle(runCtx, job.Message.OrderID)
	}()

	if err := job.Ack(runCtx); err != nil {
		d.logger.Warn("Ack failed", slog.Uint64("order_id", job.Message.OrderID), slog.Any("error", err))
	}
}
