package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/groundline/groundline/pkg/config"
)

func TestPollInterval_WithinJitterRange(t *testing.T) {
	cfg := config.QueueConfig{
		PollInterval:       time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
	}
	w := NewWorker("w", cfg, nil, &fakeExecutor{}, noopRegistry{})

	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestPollInterval_NoJitter(t *testing.T) {
	cfg := config.QueueConfig{PollInterval: time.Second}
	w := NewWorker("w", cfg, nil, &fakeExecutor{}, noopRegistry{})
	assert.Equal(t, time.Second, w.pollInterval())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	tasks := make(chan CompileTask)
	w := NewWorker("w", testQueueConfig(), tasks, &fakeExecutor{}, noopRegistry{})
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	health := w.Health()
	assert.Equal(t, string(WorkerStatusIdle), health.Status)
	assert.Zero(t, health.JobsProcessed)
}

type noopRegistry struct{}

func (noopRegistry) RegisterJob(string, context.CancelFunc) {}
func (noopRegistry) UnregisterJob(string)                   {}
