package engine

import (
	"context"
	"time"

	"github.com/randalmurphal/duckling/internal/executor"
	"github.com/randalmurphal/duckling/internal/task"
)

// DefaultTickInterval is the scheduler cadence when none is configured.
const DefaultTickInterval = 60 * time.Second

// Start launches the scheduler loop. The first tick runs immediately;
// subsequent ticks follow the configured interval.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.run(ctx)
	e.logger.Info("engine started", "tick_interval", e.interval)
}

// Stop halts the scheduler loop. Safe to call multiple times. Operations
// already queued on the executor keep running; the caller owns executor
// shutdown.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass: the review phase over awaiting-review
// tasks, then the pending phase that dispatches pipelines. A tick that
// fires while another is still running is skipped. A store failure aborts
// the tick; the next tick retries everything.
func (e *Engine) Tick(ctx context.Context) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.logger.Info("previous scheduler tick still running, skipping")
		return
	}
	defer e.ticking.Store(false)

	if err := e.reviewPhase(ctx); err != nil {
		e.logger.Error("scheduler tick aborted in review phase", "error", err)
		return
	}
	if err := e.pendingPhase(ctx); err != nil {
		e.logger.Error("scheduler tick aborted in pending phase", "error", err)
	}
}

// reviewPhase submits one review-ingestion operation per awaiting-review
// task, in ascending id order.
func (e *Engine) reviewPhase(ctx context.Context) error {
	tasks, err := e.store.ListTasksByStatus(ctx, task.StatusAwaitingReview)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		id := t.ID
		err := e.exec.Submit(executor.Op{
			TaskID: id,
			Name:   "review",
			Fn: func(ctx context.Context) error {
				return e.ingestReviews(ctx, id)
			},
		})
		if err != nil {
			e.logger.Error("submit review operation", "task_id", id, "error", err)
		}
	}
	return nil
}

// pendingPhase submits one pipeline operation per pending task, in
// ascending id order.
func (e *Engine) pendingPhase(ctx context.Context) error {
	tasks, err := e.store.ListTasksByStatus(ctx, task.StatusPending)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		id := t.ID
		err := e.exec.Submit(executor.Op{
			TaskID: id,
			Name:   "pipeline",
			Fn: func(ctx context.Context) error {
				return e.runPipeline(ctx, id)
			},
		})
		if err != nil {
			e.logger.Error("submit pipeline operation", "task_id", id, "error", err)
		}
	}
	return nil
}
