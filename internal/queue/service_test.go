package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/common"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
	"github.com/ternarybob/opero/internal/storage/sqlite"
)

// capturingEvents records published events for assertions
type capturingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (c *capturingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }
func (c *capturingEvents) Unsubscribe(interfaces.EventType, interfaces.EventHandler) error {
	return nil
}

func (c *capturingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return c.Publish(ctx, event)
}

func (c *capturingEvents) Close() error { return nil }

func (c *capturingEvents) byType(eventType interfaces.EventType) []interfaces.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []interfaces.Event
	for _, event := range c.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestQueue(t *testing.T, maxWorkers int) (*Service, interfaces.JobStorage, *capturingEvents) {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Sqlite.Path = t.TempDir() + "/queue.db"
	config.Storage.Sqlite.WALMode = false
	config.Queue.MaxWorkers = maxWorkers
	config.Queue.PollInterval = "20ms"
	config.Queue.ErrorBackoff = "50ms"

	logger := arbor.NewLogger()
	manager, err := sqlite.NewManager(logger, &config.Storage.Sqlite)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	events := &capturingEvents{}
	svc := NewService(manager.JobStorage(), events, logger, config)
	return svc, manager.JobStorage(), events
}

func waitForStatus(t *testing.T, store interfaces.JobStorage, jobID string, status models.JobStatus) *models.Job {
	t.Helper()
	var got *models.Job
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = job
		return job.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, status)
	return got
}

func TestQueue_ProcessesJobToCompletion(t *testing.T) {
	svc, store, events := newTestQueue(t, 2)
	ctx := context.Background()

	svc.RegisterProcessor(models.JobTypeTests, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		return map[string]interface{}{
			"summary": map[string]interface{}{"total": 1, "passed": 1, "failed": 0},
		}, nil
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	job, err := svc.AddJob(ctx, models.JobTypeTests,
		map[string]interface{}{"modules": []interface{}{}},
		map[string]interface{}{"total_modules": 0})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	done := waitForStatus(t, store, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 100.0, done.Progress)
	assert.NotNil(t, done.Result)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)

	created := events.byType(interfaces.EventJobCreated)
	require.Len(t, created, 1)
	payload, ok := created[0].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, job.ID, payload["job_id"])

	statuses := events.byType(interfaces.EventJobStatus)
	assert.GreaterOrEqual(t, len(statuses), 2, "expected running and completed status events")
}

func TestQueue_SingleWorkerProcessesInOrder(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	svc.RegisterProcessor(models.JobTypeMCP, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return map[string]interface{}{}, nil
	})

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := svc.AddJob(ctx, models.JobTypeMCP, map[string]interface{}{"n": i}, nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.NoError(t, svc.Start())
	defer svc.Stop()

	for _, id := range ids {
		waitForStatus(t, store, id, models.JobStatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order, "single worker should drain the queue oldest first")
}

func TestQueue_ProcessorErrorFailsJob(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	svc.RegisterProcessor(models.JobTypeValidation, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		return nil, fmt.Errorf("invalid payload: targets must be a list")
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	job, err := svc.AddJob(ctx, models.JobTypeValidation, map[string]interface{}{"targets": "oops"}, nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, job.ID, models.JobStatusFailed)
	assert.Equal(t, "invalid payload: targets must be a list", failed.Error)
	assert.Nil(t, failed.Result)
	assert.NotNil(t, failed.CompletedAt)
}

func TestQueue_UnknownJobTypeFails(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	require.NoError(t, svc.Start())
	defer svc.Stop()

	job, err := svc.AddJob(ctx, "batch_unknown", map[string]interface{}{}, nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, job.ID, models.JobStatusFailed)
	assert.Equal(t, "No processor registered for job type: batch_unknown", failed.Error)
}

func TestQueue_CancelQueuedJob(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	// Queue never started: the job stays queued
	job, err := svc.AddJob(ctx, models.JobTypeTests, map[string]interface{}{}, nil)
	require.NoError(t, err)

	cancelled, err := svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Second cancel is a no-op
	cancelled, err = svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestQueue_CancelMissingJob(t *testing.T) {
	svc, _, _ := newTestQueue(t, 1)

	cancelled, err := svc.CancelJob(context.Background(), "batch_tests-does-not-exist")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestQueue_CancelRunningJobInterruptsProcessor(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	started := make(chan struct{})
	interrupted := make(chan struct{})

	svc.RegisterProcessor(models.JobTypeAgentTasks, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		close(started)
		<-ctx.Done()
		close(interrupted)
		return nil, ctx.Err()
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	job, err := svc.AddJob(ctx, models.JobTypeAgentTasks, map[string]interface{}{}, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("processor never started")
	}

	cancelled, err := svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	select {
	case <-interrupted:
	case <-time.After(5 * time.Second):
		t.Fatal("processor context was never cancelled")
	}

	// The processor's context error must not overwrite the cancelled state
	got := waitForStatus(t, store, job.ID, models.JobStatusCancelled)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.Result)
}

func TestQueue_LateResultDiscardedAfterCancel(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})

	svc.RegisterProcessor(models.JobTypeTests, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		close(started)
		// Ignore cancellation and finish anyway
		<-release
		return map[string]interface{}{"late": true}, nil
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	job, err := svc.AddJob(ctx, models.JobTypeTests, map[string]interface{}{}, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("processor never started")
	}

	cancelled, err := svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	close(release)

	// Give the worker time to attempt (and lose) the terminal write
	time.Sleep(200 * time.Millisecond)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Nil(t, got.Result)
}

func TestQueue_UpdateJobGuardedOnRunning(t *testing.T) {
	svc, store, events := newTestQueue(t, 1)
	ctx := context.Background()

	job, err := svc.AddJob(ctx, models.JobTypeValidation, map[string]interface{}{}, nil)
	require.NoError(t, err)

	// Claim manually so the job is running
	claimed, err := store.ClaimNextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	claimed.Progress = 30.0
	claimed.SetMetadata("progress", map[string]interface{}{"processed": 3})
	require.NoError(t, svc.UpdateJob(ctx, claimed))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Progress)
	require.Len(t, events.byType(interfaces.EventJobProgress), 1)

	// Cancel out from under the worker
	cancelled, err := svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	// Further updates are dropped without error
	claimed.Progress = 60.0
	require.NoError(t, svc.UpdateJob(ctx, claimed))

	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Equal(t, 30.0, got.Progress)
	assert.Len(t, events.byType(interfaces.EventJobProgress), 1, "dropped update must not publish progress")
}

func TestQueue_ConcurrencyBounded(t *testing.T) {
	const maxWorkers = 2
	svc, store, _ := newTestQueue(t, maxWorkers)
	ctx := context.Background()

	var current, peak atomic.Int32
	svc.RegisterProcessor(models.JobTypeMCP, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		current.Add(-1)
		return map[string]interface{}{}, nil
	})

	var ids []string
	for i := 0; i < 6; i++ {
		job, err := svc.AddJob(ctx, models.JobTypeMCP, map[string]interface{}{"n": i}, nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.NoError(t, svc.Start())
	defer svc.Stop()

	for _, id := range ids {
		waitForStatus(t, store, id, models.JobStatusCompleted)
	}

	assert.LessOrEqual(t, peak.Load(), int32(maxWorkers), "in-flight jobs exceeded the worker count")
}

func TestQueue_StopWaitsForInFlightJob(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	started := make(chan struct{})
	svc.RegisterProcessor(models.JobTypeTests, func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		close(started)
		time.Sleep(150 * time.Millisecond)
		return map[string]interface{}{"finished": true}, nil
	})

	require.NoError(t, svc.Start())

	job, err := svc.AddJob(ctx, models.JobTypeTests, map[string]interface{}{}, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("processor never started")
	}

	require.NoError(t, svc.Stop())

	// Stop returned only after the job settled
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestQueue_GetStats(t *testing.T) {
	svc, _, _ := newTestQueue(t, 1)
	ctx := context.Background()

	_, err := svc.AddJob(ctx, models.JobTypeTests, map[string]interface{}{}, nil)
	require.NoError(t, err)
	_, err = svc.AddJob(ctx, models.JobTypeMCP, map[string]interface{}{}, nil)
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["queued"])
	assert.Equal(t, 0, stats["running"])
	assert.Equal(t, 2, stats["total"])
}

func TestQueue_ProcessorPanicFailsOnlyThatJob(t *testing.T) {
	svc, store, _ := newTestQueue(t, 2)
	ctx := context.Background()

	svc.RegisterProcessor("panic_test", func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		if boom, _ := job.Payload["boom"].(bool); boom {
			panic("processor exploded")
		}
		return map[string]interface{}{"ok": true}, nil
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	bad, err := svc.AddJob(ctx, "panic_test", map[string]interface{}{"boom": true}, nil)
	require.NoError(t, err)
	good, err := svc.AddJob(ctx, "panic_test", map[string]interface{}{"boom": false}, nil)
	require.NoError(t, err)

	// The panicking job fails; its sibling and the worker pool survive
	failed := waitForStatus(t, store, bad.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "panicked")
	waitForStatus(t, store, good.ID, models.JobStatusCompleted)
}

func TestQueue_StartTwiceIsNoOp(t *testing.T) {
	svc, store, _ := newTestQueue(t, 1)
	ctx := context.Background()

	svc.RegisterProcessor("echo_test", func(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	// A second start must not error and must not spawn a second pool
	assert.NoError(t, svc.Start())

	job, err := svc.AddJob(ctx, "echo_test", map[string]interface{}{"value": 1}, nil)
	require.NoError(t, err)
	waitForStatus(t, store, job.ID, models.JobStatusCompleted)
}
