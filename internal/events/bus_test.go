package events

import (
	"testing"
	"time"

	"github.com/randalmurphal/duckling/internal/task"
)

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	id, ch := bus.Subscribe(0)
	if id == "" {
		t.Fatal("expected non-empty subscriber id")
	}

	now := time.Now()
	bus.Publish(TaskUpdate{TaskID: 1, Status: task.StatusInProgress, Time: now})

	select {
	case got := <-ch:
		if got.TaskID != 1 {
			t.Errorf("expected task id 1, got %d", got.TaskID)
		}
		if got.Status != task.StatusInProgress {
			t.Errorf("expected status %s, got %s", task.StatusInProgress, got.Status)
		}
		if !got.Time.Equal(now) {
			t.Errorf("expected time %v, got %v", now, got.Time)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for update")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, ch1 := bus.Subscribe(0)
	_, ch2 := bus.Subscribe(0)

	bus.Publish(TaskUpdate{TaskID: 5, Status: task.StatusPending, Time: time.Now()})

	for i, ch := range []<-chan TaskUpdate{ch1, ch2} {
		select {
		case got := <-ch:
			if got.TaskID != 5 {
				t.Errorf("subscriber %d: expected task id 5, got %d", i, got.TaskID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for update", i)
		}
	}
}

func TestBus_CarriesTaskSnapshot(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, ch := bus.Subscribe(0)

	snap := &task.Task{ID: 9, Description: "add retry logic", Status: task.StatusCompleted}
	bus.Publish(TaskUpdate{TaskID: 9, Status: task.StatusCompleted, Task: snap, Time: time.Now()})

	select {
	case got := <-ch:
		if got.Task == nil {
			t.Fatal("expected task snapshot")
		}
		if got.Task.Description != "add retry logic" {
			t.Errorf("unexpected description %q", got.Task.Description)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for update")
	}
}

func TestBus_SlowSubscriberDropsUpdates(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, slow := bus.Subscribe(1)
	_, fast := bus.Subscribe(10)

	// The second publish overflows the slow subscriber's buffer.
	bus.Publish(TaskUpdate{TaskID: 1, Status: task.StatusPending, Time: time.Now()})
	bus.Publish(TaskUpdate{TaskID: 1, Status: task.StatusInProgress, Time: time.Now()})

	if got := len(slow); got != 1 {
		t.Errorf("expected slow subscriber to hold 1 update, got %d", got)
	}
	if got := len(fast); got != 2 {
		t.Errorf("expected fast subscriber to hold 2 updates, got %d", got)
	}

	// The bus must still deliver to the slow subscriber once it drains.
	<-slow
	bus.Publish(TaskUpdate{TaskID: 1, Status: task.StatusAwaitingReview, Time: time.Now()})
	select {
	case got := <-slow:
		if got.Status != task.StatusAwaitingReview {
			t.Errorf("expected status %s, got %s", task.StatusAwaitingReview, got.Status)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for update after drain")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	id, ch := bus.Subscribe(0)
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(id)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	if _, open := <-ch; open {
		t.Error("expected channel to be closed after Unsubscribe")
	}

	// Unknown ids are a no-op.
	bus.Unsubscribe("not-a-subscriber")
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()

	_, ch1 := bus.Subscribe(0)
	_, ch2 := bus.Subscribe(0)

	bus.Close()

	for i, ch := range []<-chan TaskUpdate{ch1, ch2} {
		if _, open := <-ch; open {
			t.Errorf("subscriber %d: expected closed channel", i)
		}
	}

	// Publishing after Close must not panic.
	bus.Publish(TaskUpdate{TaskID: 1, Status: task.StatusFailed, Time: time.Now()})

	// Subscribing after Close yields a closed channel.
	_, ch3 := bus.Subscribe(0)
	if _, open := <-ch3; open {
		t.Error("expected closed channel from Subscribe after Close")
	}

	// Double close is a no-op.
	bus.Close()
}

func TestBus_DistinctSubscriberIDs(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	id1, _ := bus.Subscribe(0)
	id2, _ := bus.Subscribe(0)
	if id1 == id2 {
		t.Errorf("expected distinct subscriber ids, both were %s", id1)
	}
}
