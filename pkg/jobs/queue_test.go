package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	handled := make([]string, 0)
	done := make(chan struct{})

	handler := func(_ context.Context, job Job) error {
		mu.Lock()
		handled = append(handled, job.ID)
		if len(handled) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}

	queue := NewQueue("test", handler, QueueConfig{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "job-1"}))
	require.NoError(t, queue.Enqueue(Job{ID: "job-2"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs were not processed in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, handled)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := make([]int, 0)
	done := make(chan struct{})

	handler := func(_ context.Context, job Job) error {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		mu.Unlock()
		if job.Attempt < 2 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	}

	queue := NewQueue("test", handler, QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "job-1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	queue := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := queue.Enqueue(Job{ID: "job-1"})
	assert.Error(t, err)
}
