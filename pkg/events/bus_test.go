package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/pkg/models"
)

func recvEvent(t *testing.T, ch <-chan models.ProgressEvent) models.ProgressEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
		return models.ProgressEvent{}
	}
}

func requireClosed(t *testing.T, ch <-chan models.ProgressEvent) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestPublish_DeliversToSubscriber(t *testing.T) {
	bus := NewProgressBus()
	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusInProgress, Progress: 30, CurrentStep: "Generating embeddings"})

	ev := recvEvent(t, ch)
	assert.Equal(t, 30, ev.Progress)
	assert.Equal(t, "Generating embeddings", ev.CurrentStep)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestSubscribe_LateSubscriberGetsSnapshot(t *testing.T) {
	bus := NewProgressBus()
	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusInProgress, Progress: 70})

	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	ev := recvEvent(t, ch)
	assert.Equal(t, 70, ev.Progress)
}

func TestPublish_TerminalEventClosesStream(t *testing.T) {
	bus := NewProgressBus()
	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusCompleted, Progress: 100})

	ev := recvEvent(t, ch)
	assert.Equal(t, models.JobStatusCompleted, ev.Status)
	requireClosed(t, ch)
	assert.Zero(t, bus.SubscriberCount("job-1"))
}

func TestPublish_FailedJobIsTerminal(t *testing.T) {
	bus := NewProgressBus()
	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusFailed, Error: "parse failure"})

	ev := recvEvent(t, ch)
	assert.Equal(t, "parse failure", ev.Error)
	requireClosed(t, ch)
}

func TestPublish_IsolatedByJob(t *testing.T) {
	bus := NewProgressBus()
	ch1, cancel1 := bus.Subscribe("job-1")
	defer cancel1()
	ch2, cancel2 := bus.Subscribe("job-2")
	defer cancel2()

	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusInProgress, Progress: 10})

	assert.Equal(t, 10, recvEvent(t, ch1).Progress)
	select {
	case ev := <-ch2:
		t.Fatalf("job-2 subscriber received foreign event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancel_RemovesSubscriber(t *testing.T) {
	bus := NewProgressBus()
	ch, cancel := bus.Subscribe("job-1")

	cancel()
	requireClosed(t, ch)
	assert.Zero(t, bus.SubscriberCount("job-1"))

	// Publishing after cancel must not panic.
	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusInProgress})
}

func TestCancel_IsIdempotent(t *testing.T) {
	bus := NewProgressBus()
	_, cancel := bus.Subscribe("job-1")
	cancel()
	cancel()
}

func TestPublish_SlowSubscriberStillGetsTerminalEvent(t *testing.T) {
	bus := NewProgressBus()
	ch, cancel := bus.Subscribe("job-1")
	defer cancel()

	// Overflow the subscriber buffer without draining.
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusInProgress, Progress: i})
	}
	bus.Publish(models.ProgressEvent{JobID: "job-1", Status: models.JobStatusCompleted, Progress: 100})

	var last models.ProgressEvent
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, models.JobStatusCompleted, last.Status)
}
