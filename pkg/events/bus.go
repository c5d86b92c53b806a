// Package events provides in-process fan-out of compilation progress
// to WebSocket subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/groundline/groundline/pkg/models"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind loses intermediate events; the terminal
// event is always delivered.
const subscriberBuffer = 32

// ProgressBus fans compilation progress events out to subscribers,
// keyed by job ID. The latest event per job is retained so a late
// subscriber immediately sees current state.
type ProgressBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan models.ProgressEvent]bool
	latest      map[string]models.ProgressEvent
	logger      *slog.Logger
}

// NewProgressBus creates an empty bus.
func NewProgressBus() *ProgressBus {
	return &ProgressBus{
		subscribers: make(map[string]map[chan models.ProgressEvent]bool),
		latest:      make(map[string]models.ProgressEvent),
		logger:      slog.With("component", "progress_bus"),
	}
}

// Publish delivers an event to all subscribers of its job. A terminal
// event closes every subscriber channel and drops the job's state once
// delivered.
func (b *ProgressBus) Publish(event models.ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest[event.JobID] = event
	for ch := range b.subscribers[event.JobID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop intermediate events rather than
			// block publishers. Terminal events get a slot freed below.
			if event.Terminal() {
				select {
				case <-ch:
				default:
				}
				ch <- event
			} else {
				b.logger.Warn("Dropping progress event for slow subscriber", "job_id", event.JobID)
			}
		}
	}

	if event.Terminal() {
		for ch := range b.subscribers[event.JobID] {
			close(ch)
		}
		delete(b.subscribers, event.JobID)
		delete(b.latest, event.JobID)
	}
}

// Subscribe returns a channel of the job's events, starting with the
// latest known state if any. The channel closes after a terminal event
// or when cancel is called.
func (b *ProgressBus) Subscribe(jobID string) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	if last, ok := b.latest[jobID]; ok {
		ch <- last
	}
	if b.subscribers[jobID] == nil {
		b.subscribers[jobID] = make(map[chan models.ProgressEvent]bool)
	}
	b.subscribers[jobID][ch] = true
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[jobID]; ok && subs[ch] {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subscribers, jobID)
			}
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount reports active subscribers for a job.
func (b *ProgressBus) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[jobID])
}
