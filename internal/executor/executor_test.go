package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects hook events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) hook(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestSubmitRunsInOrder(t *testing.T) {
	e := New()
	defer e.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		err := e.Submit(Op{TaskID: int64(i), Name: "step", Fn: func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}})
		require.NoError(t, err)
	}
	e.Wait()

	require.Len(t, order, 10)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestHookEventsOnSuccess(t *testing.T) {
	rec := &eventRecorder{}
	e := New(WithHook(rec.hook))
	defer e.Close()

	err := e.Submit(Op{ID: "op-1", TaskID: 42, Name: "pipeline", Fn: func(context.Context) error {
		return nil
	}})
	require.NoError(t, err)
	e.Wait()

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, KindStart, events[0].Kind)
	assert.Equal(t, "op-1", events[0].OpID)
	assert.Equal(t, int64(42), events[0].TaskID)
	assert.Equal(t, "pipeline", events[0].Name)
	assert.Equal(t, KindComplete, events[1].Kind)
	assert.NoError(t, events[1].Err)
}

func TestHookEventsOnError(t *testing.T) {
	rec := &eventRecorder{}
	e := New(WithHook(rec.hook))
	defer e.Close()

	opErr := errors.New("branch creation failed")
	err := e.Submit(Op{TaskID: 7, Name: "pipeline", Fn: func(context.Context) error {
		return opErr
	}})
	require.NoError(t, err)
	e.Wait()

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, KindStart, events[0].Kind)
	assert.Equal(t, KindError, events[1].Kind)
	assert.ErrorIs(t, events[1].Err, opErr)
}

func TestPanicDoesNotStopWorker(t *testing.T) {
	rec := &eventRecorder{}
	e := New(WithHook(rec.hook))
	defer e.Close()

	require.NoError(t, e.Submit(Op{Name: "boom", Fn: func(context.Context) error {
		panic("unexpected state")
	}}))

	ran := false
	require.NoError(t, e.Submit(Op{Name: "after", Fn: func(context.Context) error {
		ran = true
		return nil
	}}))
	e.Wait()

	assert.True(t, ran, "worker should survive a panicking op")

	events := rec.all()
	require.Len(t, events, 4)
	assert.Equal(t, KindError, events[1].Kind)
	assert.ErrorContains(t, events[1].Err, "panic in op")
	assert.ErrorContains(t, events[1].Err, "unexpected state")
	assert.Equal(t, KindComplete, events[3].Kind)
}

func TestFailingOpDoesNotStopWorker(t *testing.T) {
	e := New()
	defer e.Close()

	require.NoError(t, e.Submit(Op{Name: "fails", Fn: func(context.Context) error {
		return errors.New("nope")
	}}))

	ran := false
	require.NoError(t, e.Submit(Op{Name: "next", Fn: func(context.Context) error {
		ran = true
		return nil
	}}))
	e.Wait()

	assert.True(t, ran)
}

func TestSubmitGeneratesID(t *testing.T) {
	rec := &eventRecorder{}
	e := New(WithHook(rec.hook))
	defer e.Close()

	require.NoError(t, e.Submit(Op{Name: "auto", Fn: func(context.Context) error { return nil }}))
	e.Wait()

	events := rec.all()
	require.NotEmpty(t, events)
	assert.NotEmpty(t, events[0].OpID)
}

func TestSubmitRequiresFn(t *testing.T) {
	e := New()
	defer e.Close()

	err := e.Submit(Op{Name: "empty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no function")
}

func TestCloseDrainsQueue(t *testing.T) {
	e := New()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Submit(Op{Name: "work", Fn: func(context.Context) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}}))
	}
	e.Close()

	assert.Equal(t, 5, count, "all queued ops should run before Close returns")
}

func TestSubmitAfterClose(t *testing.T) {
	e := New()
	e.Close()

	err := e.Submit(Op{Name: "late", Fn: func(context.Context) error { return nil }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestCloseIsIdempotent(t *testing.T) {
	e := New()
	e.Close()
	e.Close()
}

func TestSubmitBlocksWhenQueueFull(t *testing.T) {
	e := New(WithQueueSize(1))

	started := make(chan struct{})
	gate := make(chan struct{})
	require.NoError(t, e.Submit(Op{Name: "hold", Fn: func(context.Context) error {
		close(started)
		<-gate
		return nil
	}}))
	<-started

	// The worker is busy, so this op occupies the only queue slot.
	require.NoError(t, e.Submit(Op{Name: "queued", Fn: func(context.Context) error { return nil }}))

	submitted := make(chan struct{})
	go func() {
		if err := e.Submit(Op{Name: "blocked", Fn: func(context.Context) error { return nil }}); err == nil {
			close(submitted)
		}
	}()

	select {
	case <-submitted:
		t.Fatal("Submit should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not unblock after the worker drained")
	}
	e.Close()
}
