// Package executor runs task pipeline operations one at a time.
//
// A single worker goroutine drains a FIFO queue, so operations for
// different tasks never interleave and a slow pipeline run simply delays
// the ones queued behind it. Panics inside an operation are recovered and
// surfaced as errors; a failing operation never stops the worker.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueSize is the capacity of the submission queue. Submit blocks
// once this many operations are waiting.
const DefaultQueueSize = 256

// Op is a unit of work bound to a task.
type Op struct {
	// ID uniquely identifies this submission.
	ID string
	// TaskID is the task this operation acts on.
	TaskID int64
	// Name describes the operation for logs and hooks (e.g. "pipeline").
	Name string
	// Fn does the work. The context is cancelled when the executor shuts
	// down without draining.
	Fn func(ctx context.Context) error
}

// Kind classifies executor events.
type Kind string

const (
	KindStart    Kind = "start"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event describes a change in an operation's lifecycle.
type Event struct {
	Kind   Kind
	OpID   string
	TaskID int64
	Name   string
	// Err is set for KindError events.
	Err error
}

// Hook observes operation lifecycle events. It is called synchronously
// from the worker goroutine, so it must not block.
type Hook func(Event)

// Executor is a single-worker FIFO queue for task operations.
type Executor struct {
	queue  chan Op
	hook   Hook
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	inflight sync.WaitGroup
	done     chan struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithQueueSize overrides the submission queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.queue = make(chan Op, n)
		}
	}
}

// WithHook installs an event hook.
func WithHook(h Hook) Option {
	return func(e *Executor) { e.hook = h }
}

// WithLogger sets the logger used for worker lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor and starts its worker goroutine.
func New(opts ...Option) *Executor {
	e := &Executor{
		queue:  make(chan Op, DefaultQueueSize),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	go e.run()
	return e
}

// Submit enqueues an operation for execution. Operations run strictly in
// submission order. Submit blocks while the queue is full and returns an
// error after Close.
func (e *Executor) Submit(op Op) error {
	if op.Fn == nil {
		return fmt.Errorf("executor: op %q has no function", op.Name)
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	// The read lock is held across the send so Close cannot close the
	// queue while a submitter is blocked on it.
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("executor: closed")
	}
	e.inflight.Add(1)
	e.queue <- op
	return nil
}

// Wait blocks until every operation submitted so far has finished.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

// Close stops accepting new operations, drains the queue, and waits for
// the worker to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	<-e.done
	e.cancel()
}

func (e *Executor) run() {
	defer close(e.done)
	for op := range e.queue {
		e.execute(op)
		e.inflight.Done()
	}
}

func (e *Executor) execute(op Op) {
	e.emit(Event{Kind: KindStart, OpID: op.ID, TaskID: op.TaskID, Name: op.Name})

	err := e.runSafely(op)
	if err != nil {
		e.emit(Event{Kind: KindError, OpID: op.ID, TaskID: op.TaskID, Name: op.Name, Err: err})
		return
	}
	e.emit(Event{Kind: KindComplete, OpID: op.ID, TaskID: op.TaskID, Name: op.Name})
}

// runSafely invokes the op function, converting a panic into an error so
// one bad operation cannot take down the worker.
func (e *Executor) runSafely(op Op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in op %q: %v", op.Name, r)
			e.logger.Error("executor op panicked",
				"op_id", op.ID,
				"task_id", op.TaskID,
				"name", op.Name,
				"panic", r,
			)
		}
	}()
	return op.Fn(e.ctx)
}

func (e *Executor) emit(ev Event) {
	if e.hook != nil {
		e.hook(ev)
	}
}
