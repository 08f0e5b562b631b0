// -----------------------------------------------------------------------
// Progress Tracker - Shared counters for batch item outcomes
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// ItemOutcome classifies how a single batch item finished
type ItemOutcome string

const (
	ItemSuccess ItemOutcome = "success"
	ItemFailure ItemOutcome = "failure"
	ItemSkipped ItemOutcome = "skipped"
)

// Progress is an immutable snapshot of batch progress.
// Percentage, ElapsedSeconds, ItemsPerSecond and RemainingSeconds are
// rounded to two decimals for stable JSON output.
type Progress struct {
	Total            int                    `json:"total"`
	Processed        int                    `json:"processed"`
	Successful       int                    `json:"successful"`
	Failed           int                    `json:"failed"`
	Skipped          int                    `json:"skipped"`
	Percentage       float64                `json:"percentage"`
	ElapsedSeconds   float64                `json:"elapsed_seconds"`
	ItemsPerSecond   float64                `json:"items_per_second"`
	RemainingSeconds float64                `json:"estimated_remaining_seconds"`
	CurrentItem      string                 `json:"current_item,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToMap converts the snapshot into a generic map for job metadata storage
func (p Progress) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"total":                       p.Total,
		"processed":                   p.Processed,
		"successful":                  p.Successful,
		"failed":                      p.Failed,
		"skipped":                     p.Skipped,
		"percentage":                  p.Percentage,
		"elapsed_seconds":             p.ElapsedSeconds,
		"items_per_second":            p.ItemsPerSecond,
		"estimated_remaining_seconds": p.RemainingSeconds,
		"current_item":                p.CurrentItem,
	}
}

// String renders a compact single-line progress summary
func (p Progress) String() string {
	return fmt.Sprintf("Progress(%d/%d = %.1f%%, ok=%d failed=%d skipped=%d, %.1f items/s)",
		p.Processed, p.Total, p.Percentage, p.Successful, p.Failed, p.Skipped, p.ItemsPerSecond)
}

// ProgressTracker tracks outcome counters for a batch of items.
// Safe for concurrent use: item workers increment it in parallel while
// the processor snapshots it between chunks.
//
// An item is counted exactly once, when its outcome is known. Processed
// always equals Successful+Failed+Skipped, so mid-flight snapshots never
// show in-progress items under any outcome column.
type ProgressTracker struct {
	mu          sync.Mutex
	total       int
	processed   int
	successful  int
	failed      int
	skipped     int
	currentItem string
	startedAt   time.Time
}

// NewProgressTracker creates a tracker for a batch of the given size
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		startedAt: time.Now(),
	}
}

// Increment records the outcome of one finished item.
// currentItem, when non-empty, is remembered as the most recent item label.
func (t *ProgressTracker) Increment(outcome ItemOutcome, currentItem string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++
	switch outcome {
	case ItemSkipped:
		t.skipped++
	case ItemSuccess:
		t.successful++
	default:
		t.failed++
	}

	if currentItem != "" {
		t.currentItem = currentItem
	}
}

// Snapshot returns a consistent copy of all counters and derived rates
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startedAt).Seconds()

	percentage := 100.0
	if t.total > 0 {
		percentage = math.Min(100.0, float64(t.processed)/float64(t.total)*100.0)
	}

	rate := 0.0
	if elapsed > 0 {
		rate = float64(t.processed) / elapsed
	}

	remaining := 0.0
	if t.processed > 0 && rate > 0 {
		remaining = float64(t.total-t.processed) / rate
	}

	return Progress{
		Total:            t.total,
		Processed:        t.processed,
		Successful:       t.successful,
		Failed:           t.failed,
		Skipped:          t.skipped,
		Percentage:       round2(percentage),
		ElapsedSeconds:   round2(elapsed),
		ItemsPerSecond:   round2(rate),
		RemainingSeconds: round2(remaining),
		CurrentItem:      t.currentItem,
	}
}

// ElapsedSeconds returns the unrounded time since tracker creation
func (t *ProgressTracker) ElapsedSeconds() float64 {
	return time.Since(t.startedAt).Seconds()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
