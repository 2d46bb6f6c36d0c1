// Package events fans task status changes out to in-process subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/duckling/internal/task"
)

// DefaultBufferSize is the subscriber channel buffer used when Subscribe
// is called with a non-positive buffer.
const DefaultBufferSize = 100

// TaskUpdate is published whenever a task's status changes.
type TaskUpdate struct {
	TaskID int64       `json:"task_id"`
	Status task.Status `json:"status"`
	// Task is a snapshot of the row at publish time.
	Task *task.Task `json:"task,omitempty"`
	Time time.Time  `json:"time"`
}

// Bus is an in-memory publish/subscribe hub for task updates. Publishing
// never blocks: subscribers that cannot keep up have updates dropped.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan TaskUpdate
	closed      bool
	logger      *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report dropped updates.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers: make(map[string]chan TaskUpdate),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber and returns its id along with the
// channel updates are delivered on. The channel is closed on Unsubscribe
// or Close.
func (b *Bus) Subscribe(buffer int) (string, <-chan TaskUpdate) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.closed {
		ch := make(chan TaskUpdate)
		close(ch)
		return id, ch
	}

	ch := make(chan TaskUpdate, buffer)
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)
}

// Publish delivers an update to every subscriber. Subscribers with a full
// buffer are skipped; the miss is logged at debug level since the read
// side recovers by refetching state on reconnect.
func (b *Bus) Publish(update TaskUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- update:
		default:
			b.logger.Debug("dropping task update for slow subscriber",
				"subscriber_id", id,
				"task_id", update.TaskID,
				"status", update.Status,
			)
		}
	}
}

// Close shuts down the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount reports how many subscribers are registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
