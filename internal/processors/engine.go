// Package processors implements the per-type batch executors registered
// with the job queue. All four share one fan-out shape: items run
// concurrently within fixed-size chunks, progress is persisted between
// chunks, and per-item records are recombined by position.
package processors

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// chunkPlan sizes one batch fan-out. Chunking exists for periodic
// progress persistence, not correctness.
type chunkPlan struct {
	total     int
	chunkSize int
	parallel  int
}

// unitFunc processes item index and returns its record. Units convert
// their own failures into records; they never abort the batch.
type unitFunc func(ctx context.Context, index int) map[string]interface{}

// runChunked drives the shared fan-out: for each chunk, run units
// concurrently bounded by a semaphore of plan.parallel, wait, then
// persist tracker progress onto the job. The chunk loop checks ctx
// between chunks and stops early on cancellation; callers surface
// ctx.Err() so a cancelled job never receives a partial result.
//
// Records land at their item's index regardless of completion order.
func runChunked(
	ctx context.Context,
	job *models.Job,
	updater interfaces.JobUpdater,
	plan chunkPlan,
	tracker *models.ProgressTracker,
	unit unitFunc,
	logger arbor.ILogger,
) []map[string]interface{} {
	results := make([]map[string]interface{}, plan.total)
	sem := make(chan struct{}, plan.parallel)

	for start := 0; start < plan.total; start += plan.chunkSize {
		if ctx.Err() != nil {
			break
		}

		end := start + plan.chunkSize
		if end > plan.total {
			end = plan.total
		}

		var wg sync.WaitGroup
		for idx := start; idx < end; idx++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				// A panicking unit becomes a failed item record; it must
				// not escape the goroutine and kill the sibling items
				defer func() {
					if r := recover(); r != nil {
						logger.Error().
							Str("panic", fmt.Sprintf("%v", r)).
							Str("job_id", job.ID).
							Int("item", i).
							Msg("Batch item panicked")
						tracker.Increment(models.ItemFailure, "")
						results[i] = map[string]interface{}{
							"status": "error",
							"error":  fmt.Sprintf("item panicked: %v", r),
						}
					}
				}()
				results[i] = unit(ctx, i)
			}(idx)
		}
		wg.Wait()

		persistProgress(ctx, job, updater, tracker, logger)
	}

	return results
}

// persistProgress writes the tracker snapshot onto the job so pollers
// observe progress mid-run. Failures are logged, not fatal: the queue
// drops updates for jobs that have left the running state anyway.
func persistProgress(ctx context.Context, job *models.Job, updater interfaces.JobUpdater, tracker *models.ProgressTracker, logger arbor.ILogger) {
	snapshot := tracker.Snapshot()
	job.Progress = snapshot.Percentage
	job.SetMetadata("progress", snapshot.ToMap())

	if err := updater.UpdateJob(ctx, job); err != nil {
		logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to persist job progress")
	}
}

// batchResult assembles the common result envelope
func batchResult(summary map[string]interface{}, results []map[string]interface{}, tracker *models.ProgressTracker) map[string]interface{} {
	return map[string]interface{}{
		"summary":         summary,
		"results":         results,
		"elapsed_seconds": tracker.ElapsedSeconds(),
	}
}
