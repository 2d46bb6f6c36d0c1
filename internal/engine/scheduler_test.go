package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/duckling/internal/executor"
	"github.com/randalmurphal/duckling/internal/hosting"
	"github.com/randalmurphal/duckling/internal/task"
)

func TestTickRunsReviewPhaseBeforePendingPhase(t *testing.T) {
	f := newFixture(t)
	reviewed := f.seedAwaitingReview()
	f.prov.pr = &hosting.PR{Number: 42, State: "open"}
	pending := f.createTask("Add dark mode")

	f.tick()

	// The review phase lists and dispatches first.
	calls := f.store.listCallsSnapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, task.StatusAwaitingReview, calls[0])
	assert.Equal(t, task.StatusPending, calls[1])

	events := f.ops.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, "review", events[0].Name)
	assert.Equal(t, reviewed.ID, events[0].TaskID)

	assert.Equal(t, 1, f.ops.completed("review"))
	assert.Equal(t, 1, f.ops.completed("pipeline"))
	assert.Equal(t, task.StatusAwaitingReview, f.reload(pending.ID).Status)
}

func TestTickAbortsWhenReviewListFails(t *testing.T) {
	f := newFixture(t)
	created := f.createTask("Add dark mode")
	f.store.listErr[task.StatusAwaitingReview] = errors.New("database is locked")

	f.tick()

	// The pending phase never ran and nothing was dispatched.
	calls := f.store.listCallsSnapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, task.StatusAwaitingReview, calls[0])
	assert.Empty(t, f.ops.snapshot())
	assert.Equal(t, task.StatusPending, f.reload(created.ID).Status)
}

func TestTickSkipsWhileAnotherTickRuns(t *testing.T) {
	f := newFixture(t)
	created := f.createTask("Add dark mode")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.store.onList = func(task.Status) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	done := make(chan struct{})
	go func() {
		f.eng.Tick(context.Background())
		close(done)
	}()
	<-started

	// A tick fired while the first is still listing: skipped entirely.
	f.eng.Tick(context.Background())

	close(release)
	<-done
	f.exec.Wait()

	assert.Len(t, f.store.listCallsSnapshot(), 2)
	assert.Equal(t, 1, f.ops.completed("pipeline"))
	assert.Equal(t, task.StatusAwaitingReview, f.reload(created.ID).Status)
}

func TestTickLeavesInProgressTasksAlone(t *testing.T) {
	f := newFixture(t)
	created := f.createTask("Add dark mode")
	stored := f.reload(created.ID)
	stored.Status = task.StatusInProgress
	stored.CurrentStage = task.StageGeneratingCode
	require.NoError(t, f.store.UpdateTask(context.Background(), stored))

	f.tick()

	assert.Empty(t, f.ops.snapshot())
	got := f.reload(created.ID)
	assert.Equal(t, task.StatusInProgress, got.Status)
	assert.Equal(t, task.StageGeneratingCode, got.CurrentStage)
}

func TestTickProcessesTasksInIDOrder(t *testing.T) {
	f := newFixture(t)
	first := f.createTask("Add dark mode")
	second := f.createTask("Add high contrast mode")

	f.tick()

	var order []int64
	for _, ev := range f.ops.snapshot() {
		if ev.Kind == executor.KindStart {
			order = append(order, ev.TaskID)
		}
	}
	assert.Equal(t, []int64{first.ID, second.ID}, order)
	assert.Equal(t, task.StatusAwaitingReview, f.reload(first.ID).Status)
	assert.Equal(t, task.StatusAwaitingReview, f.reload(second.ID).Status)
}

func TestStartTicksImmediatelyAndStops(t *testing.T) {
	f := newFixture(t)
	created := f.createTask("Add dark mode")

	f.eng.Start(context.Background())
	require.Eventually(t, func() bool {
		return f.reload(created.ID).Status == task.StatusAwaitingReview
	}, 2*time.Second, 10*time.Millisecond)

	f.eng.Stop()
	f.eng.Stop()
}
