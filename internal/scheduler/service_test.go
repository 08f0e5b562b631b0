package scheduler

import (
	"context"
	"errors"
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

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := sqlite.NewManager(arbor.NewLogger(), &common.SqliteConfig{
		Path:          t.TempDir() + "/test.db",
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

// seedJob persists a job in the given state with the given completion age
func seedJob(t *testing.T, store interfaces.JobStorage, status models.JobStatus, age time.Duration) *models.Job {
	t.Helper()
	job := models.NewJob(models.JobTypeValidation, map[string]interface{}{"targets": []interface{}{}}, nil)
	job.Status = status
	if status.IsTerminal() {
		completed := time.Now().Add(-age)
		job.CompletedAt = &completed
	}
	require.NoError(t, store.AddJob(context.Background(), job))
	return job
}

func seedLogs(t *testing.T, store interfaces.JobLogStorage, jobID string, lines int) {
	t.Helper()
	entries := make([]models.JobLogEntry, 0, lines)
	for i := 0; i < lines; i++ {
		entries = append(entries, models.JobLogEntry{
			Timestamp:  "10:00:00.000",
			Level:      "info",
			Message:    "log line",
			LineNumber: i + 1,
			JobIDField: jobID,
		})
	}
	require.NoError(t, store.AppendLogs(context.Background(), jobID, entries))
}

func TestPurge_DeletesOldTerminalJobsAndLogs(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	oldCompleted := seedJob(t, manager.JobStorage(), models.JobStatusCompleted, 10*24*time.Hour)
	oldFailed := seedJob(t, manager.JobStorage(), models.JobStatusFailed, 9*24*time.Hour)
	oldCancelled := seedJob(t, manager.JobStorage(), models.JobStatusCancelled, 8*24*time.Hour)
	freshCompleted := seedJob(t, manager.JobStorage(), models.JobStatusCompleted, time.Hour)

	seedLogs(t, manager.JobLogStorage(), oldCompleted.ID, 3)
	seedLogs(t, manager.JobLogStorage(), freshCompleted.ID, 2)

	service := NewService(manager, 7*24*time.Hour, arbor.NewLogger())

	deleted, err := service.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	for _, id := range []string{oldCompleted.ID, oldFailed.ID, oldCancelled.ID} {
		_, err := manager.JobStorage().GetJob(ctx, id)
		assert.True(t, errors.Is(err, interfaces.ErrJobNotFound), "expected %s to be purged", id)
	}

	// The fresh job and its logs survive
	_, err = manager.JobStorage().GetJob(ctx, freshCompleted.ID)
	assert.NoError(t, err)
	count, err := manager.JobLogStorage().CountLogs(ctx, freshCompleted.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The purged job's logs are gone
	count, err = manager.JobLogStorage().CountLogs(ctx, oldCompleted.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPurge_LeavesActiveJobsUntouched(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	queued := seedJob(t, manager.JobStorage(), models.JobStatusQueued, 0)

	running := models.NewJob(models.JobTypeTests, map[string]interface{}{"modules": []interface{}{}}, nil)
	started := time.Now().Add(-30 * 24 * time.Hour)
	running.Status = models.JobStatusRunning
	running.StartedAt = &started
	require.NoError(t, manager.JobStorage().AddJob(ctx, running))

	service := NewService(manager, time.Nanosecond, arbor.NewLogger())

	deleted, err := service.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = manager.JobStorage().GetJob(ctx, queued.ID)
	assert.NoError(t, err)
	_, err = manager.JobStorage().GetJob(ctx, running.ID)
	assert.NoError(t, err)
}

func TestPurge_EmptyStore(t *testing.T) {
	manager := newTestManager(t)
	service := NewService(manager, 7*24*time.Hour, arbor.NewLogger())

	deleted, err := service.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestScheduler_Lifecycle(t *testing.T) {
	manager := newTestManager(t)
	service := NewService(manager, 7*24*time.Hour, arbor.NewLogger())

	assert.False(t, service.IsRunning())

	require.NoError(t, service.Start("0 * * * *"))
	assert.True(t, service.IsRunning())

	err := service.Start("0 * * * *")
	assert.ErrorContains(t, err, "already running")

	require.NoError(t, service.Stop())
	assert.False(t, service.IsRunning())

	// Stopping twice is harmless
	require.NoError(t, service.Stop())
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	manager := newTestManager(t)
	service := NewService(manager, 7*24*time.Hour, arbor.NewLogger())

	err := service.Start("not a cron expression")
	assert.Error(t, err)
	assert.False(t, service.IsRunning())
}
