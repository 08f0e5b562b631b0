package badger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// logSequence guarantees unique log keys even within the same nanosecond
var logSequence uint64

// JobLogStorage implements interfaces.JobLogStorage on badgerhold
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new Badger job log storage
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) *JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

// AppendLogs writes a batch of log entries for a job. Entries without a
// line number continue from the job's current count; the log consumer is
// the only writer per job, so count-based numbering stays contiguous.
func (s *JobLogStorage) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error {
	if jobID == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if len(entries) == 0 {
		return nil
	}

	base, err := s.CountLogs(ctx, jobID)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entry.JobIDField = jobID
		if entry.LineNumber <= 0 {
			base++
			entry.LineNumber = base
		} else if entry.LineNumber > base {
			base = entry.LineNumber
		}

		seq := atomic.AddUint64(&logSequence, 1)
		key := fmt.Sprintf("%s_%d_%d", jobID, time.Now().UnixNano(), seq)

		if err := s.db.Store().Insert(key, &entry); err != nil {
			return fmt.Errorf("failed to append log: %w", err)
		}
	}
	return nil
}

// GetLogs returns a job's log entries, newest first. A limit of 0 or less
// returns all entries.
func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	var logs []models.JobLogEntry
	query := badgerhold.Where("JobIDField").Eq(jobID).SortBy("LineNumber").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	if logs == nil {
		logs = []models.JobLogEntry{}
	}
	return logs, nil
}

// DeleteLogs removes all log entries for a job
func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.JobLogEntry{}, badgerhold.Where("JobIDField").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	return nil
}

// CountLogs returns the number of log entries stored for a job
func (s *JobLogStorage) CountLogs(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.JobLogEntry{}, badgerhold.Where("JobIDField").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return int(count), nil
}
