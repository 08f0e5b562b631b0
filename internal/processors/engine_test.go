package processors

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/models"
)

// recordingUpdater captures each progress persist in order
type recordingUpdater struct {
	mu       sync.Mutex
	progress []float64
	onUpdate func()
}

func (u *recordingUpdater) UpdateJob(_ context.Context, job *models.Job) error {
	u.mu.Lock()
	u.progress = append(u.progress, job.Progress)
	hook := u.onUpdate
	u.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (u *recordingUpdater) progressValues() []float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]float64(nil), u.progress...)
}

// fakeAgentRunner completes tasks unless their ID is in failIDs
type fakeAgentRunner struct {
	mu      sync.Mutex
	failIDs map[string]bool
	configs []map[string]interface{}
}

func (f *fakeAgentRunner) RunTask(_ context.Context, task models.AgentTask, config map[string]interface{}) (*models.AgentResult, error) {
	f.mu.Lock()
	f.configs = append(f.configs, config)
	fail := f.failIDs[task.ID]
	f.mu.Unlock()

	if fail {
		return nil, errors.New("agent exploded")
	}
	return &models.AgentResult{
		Messages:    []string{task.Description, "done"},
		ValidatorOK: true,
	}, nil
}

// scriptedCommandRunner returns canned results keyed by full command line
type scriptedCommandRunner struct {
	mu       sync.Mutex
	results  map[string]*models.CommandResult
	errs     map[string]error
	fallback *models.CommandResult
	commands []string
}

func (s *scriptedCommandRunner) Run(_ context.Context, command string) (*models.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, command)
	if err, ok := s.errs[command]; ok {
		return nil, err
	}
	if result, ok := s.results[command]; ok {
		return result, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return &models.CommandResult{ExitCode: 0}, nil
}

func (s *scriptedCommandRunner) seenCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func newJobFromPayload(t *testing.T, jobType string, payload interface{}) *models.Job {
	t.Helper()
	m, err := models.ToMap(payload)
	require.NoError(t, err)
	return models.NewJob(jobType, m, nil)
}

func TestRunChunked_PersistsProgressPerChunk(t *testing.T) {
	job := models.NewJob(models.JobTypeTests, map[string]interface{}{}, nil)
	updater := &recordingUpdater{}
	tracker := models.NewProgressTracker(5)

	plan := chunkPlan{total: 5, chunkSize: 2, parallel: 2}
	results := runChunked(context.Background(), job, updater, plan, tracker, func(_ context.Context, i int) map[string]interface{} {
		tracker.Increment(models.ItemSuccess, "")
		return map[string]interface{}{"index": i}
	}, arbor.NewLogger())

	require.Len(t, results, 5)
	assert.Equal(t, []float64{40, 80, 100}, updater.progressValues())

	snapshot, ok := job.Metadata["progress"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 5, snapshot["processed"])
}

func TestRunChunked_ResultsByPosition(t *testing.T) {
	job := models.NewJob(models.JobTypeTests, map[string]interface{}{}, nil)
	tracker := models.NewProgressTracker(6)

	plan := chunkPlan{total: 6, chunkSize: 6, parallel: 6}
	results := runChunked(context.Background(), job, &recordingUpdater{}, plan, tracker, func(_ context.Context, i int) map[string]interface{} {
		// Finish in roughly reverse order
		time.Sleep(time.Duration(6-i) * 5 * time.Millisecond)
		tracker.Increment(models.ItemSuccess, "")
		return map[string]interface{}{"index": i}
	}, arbor.NewLogger())

	for i, record := range results {
		require.NotNil(t, record, "record %d missing", i)
		assert.Equal(t, i, record["index"])
	}
}

func TestRunChunked_PanickingUnitBecomesFailedRecord(t *testing.T) {
	job := models.NewJob(models.JobTypeMCP, map[string]interface{}{}, nil)
	tracker := models.NewProgressTracker(3)

	plan := chunkPlan{total: 3, chunkSize: 3, parallel: 3}
	results := runChunked(context.Background(), job, &recordingUpdater{}, plan, tracker, func(_ context.Context, i int) map[string]interface{} {
		if i == 1 {
			panic("unit exploded")
		}
		tracker.Increment(models.ItemSuccess, "")
		return map[string]interface{}{"status": "ok", "index": i}
	}, arbor.NewLogger())

	require.Len(t, results, 3)
	assert.Equal(t, "ok", results[0]["status"])
	assert.Equal(t, "ok", results[2]["status"])

	// The panicking item fails in place without taking its siblings down
	require.NotNil(t, results[1])
	assert.Equal(t, "error", results[1]["status"])
	assert.Contains(t, results[1]["error"], "unit exploded")

	snapshot := tracker.Snapshot()
	assert.Equal(t, 3, snapshot.Processed)
	assert.Equal(t, 2, snapshot.Successful)
	assert.Equal(t, 1, snapshot.Failed)
}

func TestRunChunked_BoundsParallelism(t *testing.T) {
	job := models.NewJob(models.JobTypeTests, map[string]interface{}{}, nil)
	tracker := models.NewProgressTracker(10)

	var current, peak atomic.Int32
	plan := chunkPlan{total: 10, chunkSize: 10, parallel: 2}
	runChunked(context.Background(), job, &recordingUpdater{}, plan, tracker, func(_ context.Context, i int) map[string]interface{} {
		now := current.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		tracker.Increment(models.ItemSuccess, "")
		return map[string]interface{}{"index": i}
	}, arbor.NewLogger())

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunChunked_StopsBetweenChunksOnCancel(t *testing.T) {
	job := models.NewJob(models.JobTypeTests, map[string]interface{}{}, nil)
	tracker := models.NewProgressTracker(6)

	ctx, cancel := context.WithCancel(context.Background())
	updater := &recordingUpdater{onUpdate: cancel}

	plan := chunkPlan{total: 6, chunkSize: 2, parallel: 2}
	results := runChunked(ctx, job, updater, plan, tracker, func(_ context.Context, i int) map[string]interface{} {
		tracker.Increment(models.ItemSuccess, "")
		return map[string]interface{}{"index": i}
	}, arbor.NewLogger())

	assert.Error(t, ctx.Err())
	assert.NotNil(t, results[0])
	assert.NotNil(t, results[1])
	for i := 2; i < 6; i++ {
		assert.Nil(t, results[i], "item %d must not run after cancellation", i)
	}
	assert.Len(t, updater.progressValues(), 1)
}

func TestBatchResult_Envelope(t *testing.T) {
	tracker := models.NewProgressTracker(2)
	tracker.Increment(models.ItemSuccess, "a")
	tracker.Increment(models.ItemFailure, "b")

	records := []map[string]interface{}{{"x": 1}, {"x": 2}}
	result := batchResult(map[string]interface{}{"total": 2}, records, tracker)

	assert.Equal(t, map[string]interface{}{"total": 2}, result["summary"])
	assert.Equal(t, records, result["results"])
	elapsed, ok := result["elapsed_seconds"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 0.0)
}
