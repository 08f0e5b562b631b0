package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// errCorruptRecord marks a stored job whose JSON no longer decodes. Scans
// skip and quarantine such rows; only a direct GetJob surfaces the error.
var errCorruptRecord = errors.New("corrupt job record")

const (
	// jobKeyPrefix namespaces job records: job:{id}
	jobKeyPrefix = "job:"

	// jobIndexPrefix namespaces the status index: jobidx:{status}:{created}:{id}.
	// The zero-padded creation time makes lexicographic key order equal FIFO
	// order, so the claim scan always sees the oldest queued job first.
	jobIndexPrefix = "jobidx:"

	// maxTxnRetries bounds how often a conflicting transaction is retried
	maxTxnRetries = 10
)

// JobStorage implements interfaces.JobStorage on raw Badger transactions.
//
// Jobs are stored as JSON under job:{id} with a companion status index
// entry. Claims and guarded updates run inside read-write transactions;
// Badger's SSI detects racing writers at commit, which surfaces as
// ErrConflict and triggers a retry of the whole transaction.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// claimMu serializes claimers. Badger is embedded, so every claimer
	// lives in this process; without the mutex concurrent workers would
	// all read the same queue head and conflict at commit.
	claimMu sync.Mutex
}

// NewJobStorage creates a new Badger job storage
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func jobKey(id string) []byte {
	return []byte(jobKeyPrefix + id)
}

func jobIndexKey(status models.JobStatus, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", jobIndexPrefix, status, createdAt.UnixNano(), id))
}

func jobIndexScanPrefix(status models.JobStatus) []byte {
	return []byte(fmt.Sprintf("%s%s:", jobIndexPrefix, status))
}

// jobIDFromIndexKey extracts the job ID from an index key. The segment
// after the scan prefix is the 20-digit timestamp, a colon, then the ID.
func jobIDFromIndexKey(key, prefix []byte) (string, error) {
	rest := key[len(prefix):]
	if len(rest) <= 21 {
		return "", fmt.Errorf("malformed job index key: %s", string(key))
	}
	return string(rest[21:]), nil
}

// AddJob persists a new job and its status index entry
func (s *JobStorage) AddJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		key := jobKey(job.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("job already exists: %s", job.ID)
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(jobIndexKey(job.Status, job.CreatedAt, job.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job *models.Job
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		found, err := getJobTxn(txn, id)
		if err != nil {
			return err
		}
		job = found
		return nil
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, interfaces.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// getJobTxn reads and unmarshals a job inside an open transaction
func getJobTxn(txn *badgerdb.Txn, id string) (*models.Job, error) {
	item, err := txn.Get(jobKey(id))
	if err != nil {
		return nil, err
	}

	var job models.Job
	err = item.Value(func(val []byte) error {
		if uerr := json.Unmarshal(val, &job); uerr != nil {
			return fmt.Errorf("%w %s: %v", errCorruptRecord, id, uerr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// quarantineIndexTxn moves an index entry whose record is undecodable
// under the failed status. The timestamp and ID segments carry over, so
// stats still account for the row while claims and queued listings move
// past it.
func quarantineIndexTxn(txn *badgerdb.Txn, indexKey, prefix []byte) error {
	rest := indexKey[len(prefix):]
	failedKey := append(jobIndexScanPrefix(models.JobStatusFailed), rest...)
	if err := txn.Delete(indexKey); err != nil {
		return err
	}
	return txn.Set(failedKey, nil)
}

// writeJobTxn persists a job and moves its index entry when the status
// or creation time changed
func writeJobTxn(txn *badgerdb.Txn, job *models.Job, previous *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := txn.Set(jobKey(job.ID), data); err != nil {
		return err
	}

	if previous != nil {
		oldIndex := jobIndexKey(previous.Status, previous.CreatedAt, previous.ID)
		newIndex := jobIndexKey(job.Status, job.CreatedAt, job.ID)
		if string(oldIndex) == string(newIndex) {
			return nil
		}
		if err := txn.Delete(oldIndex); err != nil {
			return err
		}
	}
	return txn.Set(jobIndexKey(job.Status, job.CreatedAt, job.ID), nil)
}

// UpdateJob persists the full state of an existing job
func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
			previous, err := getJobTxn(txn, job.ID)
			if err != nil {
				return err
			}
			return writeJobTxn(txn, job, previous)
		})
		if err == badgerdb.ErrConflict {
			continue
		}
		if err == badgerdb.ErrKeyNotFound {
			return interfaces.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	}
	return fmt.Errorf("update job %s: transaction conflicted %d times", job.ID, maxTxnRetries)
}

// UpdateJobIf persists the job only when its stored status still matches
// the expected status. Returns false without error when the guard fails.
func (s *JobStorage) UpdateJobIf(ctx context.Context, job *models.Job, expected models.JobStatus) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("job cannot be nil")
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		updated := false
		err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
			previous, err := getJobTxn(txn, job.ID)
			if err != nil {
				return err
			}
			if previous.Status != expected {
				return nil
			}
			if err := writeJobTxn(txn, job, previous); err != nil {
				return err
			}
			updated = true
			return nil
		})
		if err == badgerdb.ErrConflict {
			continue
		}
		if err == badgerdb.ErrKeyNotFound {
			return false, interfaces.ErrJobNotFound
		}
		if err != nil {
			return false, fmt.Errorf("failed to update job: %w", err)
		}
		return updated, nil
	}
	return false, fmt.Errorf("update job %s: transaction conflicted %d times", job.ID, maxTxnRetries)
}

// ClaimNextQueued atomically transitions the oldest queued job to running.
// Claims are serialized in-process and the transaction retries when an
// outside writer (a cancel) lands first, so each job is handed to exactly
// one caller. Returns (nil, nil) when the queue is empty.
func (s *JobStorage) ClaimNextQueued(ctx context.Context) (*models.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var claimed *models.Job
		err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
			// A read-write transaction allows only one live iterator, so
			// candidate keys are collected before records are read back.
			prefix := jobIndexScanPrefix(models.JobStatusQueued)
			itOpts := badgerdb.DefaultIteratorOptions
			itOpts.Prefix = prefix
			itOpts.PrefetchValues = false

			indexKeys := [][]byte{}
			it := txn.NewIterator(itOpts)
			for it.Rewind(); it.Valid(); it.Next() {
				indexKeys = append(indexKeys, it.Item().KeyCopy(nil))
			}
			it.Close()

			for _, indexKey := range indexKeys {
				id, err := jobIDFromIndexKey(indexKey, prefix)
				if err != nil {
					return err
				}

				job, err := getJobTxn(txn, id)
				if errors.Is(err, errCorruptRecord) {
					// An undecodable record must not wedge the queue head:
					// quarantine it and move on to the next candidate
					s.logger.Warn().Err(err).Str("job_id", id).
						Msg("Quarantining undecodable job record during claim")
					if qerr := quarantineIndexTxn(txn, indexKey, prefix); qerr != nil {
						return qerr
					}
					continue
				}
				if err == badgerdb.ErrKeyNotFound {
					// Dangling index entry, drop it
					if derr := txn.Delete(indexKey); derr != nil {
						return derr
					}
					continue
				}
				if err != nil {
					return err
				}
				if job.Status != models.JobStatusQueued {
					return fmt.Errorf("stale index entry for job %s (status %s)", id, job.Status)
				}

				previous := *job
				job.MarkRunning()
				if err := writeJobTxn(txn, job, &previous); err != nil {
					return err
				}
				claimed = job
				return nil
			}
			return nil
		})
		if err == badgerdb.ErrConflict {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		return claimed, nil
	}
	return nil, fmt.Errorf("claim job: transaction conflicted %d times", maxTxnRetries)
}

// ListJobs returns jobs matching the options, newest first. A status filter
// walks the status index in reverse; otherwise all job records are scanned.
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error) {
	if opts == nil {
		opts = &interfaces.ListOptions{}
	}

	if opts.Status != "" {
		return s.listByStatus(opts)
	}
	return s.listAll(opts)
}

// listByStatus walks the status index newest-first
func (s *JobStorage) listByStatus(opts *interfaces.ListOptions) ([]*models.Job, error) {
	jobs := []*models.Job{}
	prefix := jobIndexScanPrefix(opts.Status)

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		itOpts := badgerdb.DefaultIteratorOptions
		itOpts.Prefix = prefix
		itOpts.PrefetchValues = false
		itOpts.Reverse = true

		// Reverse iteration seeks past the highest possible key in the prefix
		seek := append(append([]byte{}, prefix...), 0xFF)

		ids := []string{}
		it := txn.NewIterator(itOpts)
		for it.Seek(seek); it.Valid(); it.Next() {
			id, err := jobIDFromIndexKey(it.Item().Key(), prefix)
			if err != nil {
				it.Close()
				return err
			}
			ids = append(ids, id)
		}
		it.Close()

		skipped := 0
		for _, id := range ids {
			job, err := getJobTxn(txn, id)
			if err == badgerdb.ErrKeyNotFound {
				continue
			}
			if errors.Is(err, errCorruptRecord) {
				s.logger.Warn().Err(err).Str("job_id", id).Msg("Skipping undecodable job record")
				continue
			}
			if err != nil {
				return err
			}
			if opts.Type != "" && job.Type != opts.Type {
				continue
			}
			if skipped < opts.Offset {
				skipped++
				continue
			}
			jobs = append(jobs, job)
			if opts.Limit > 0 && len(jobs) >= opts.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// listAll scans every job record and sorts in memory
func (s *JobStorage) listAll(opts *interfaces.ListOptions) ([]*models.Job, error) {
	jobs := []*models.Job{}

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		itOpts := badgerdb.DefaultIteratorOptions
		itOpts.Prefix = []byte(jobKeyPrefix)

		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var job models.Job
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			})
			if err != nil {
				// One undecodable record must not hide every other job
				s.logger.Warn().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("Skipping undecodable job record")
				continue
			}
			if opts.Type != "" && job.Type != opts.Type {
				continue
			}
			jobs = append(jobs, &job)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return []*models.Job{}, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// GetStats counts index entries per status. Every status is present in the
// map even when its count is zero.
func (s *JobStorage) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, len(models.AllJobStatuses)+1)
	total := 0

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		for _, status := range models.AllJobStatuses {
			prefix := jobIndexScanPrefix(status)
			itOpts := badgerdb.DefaultIteratorOptions
			itOpts.Prefix = prefix
			itOpts.PrefetchValues = false

			count := 0
			it := txn.NewIterator(itOpts)
			for it.Rewind(); it.Valid(); it.Next() {
				count++
			}
			it.Close()

			stats[string(status)] = count
			total += count
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats["total"] = total
	return stats, nil
}

// DeleteJobsBefore removes jobs in the given terminal statuses whose
// completion time is older than the cutoff. Returns the number deleted.
func (s *JobStorage) DeleteJobsBefore(ctx context.Context, cutoff time.Time, statuses []models.JobStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	type victim struct {
		jobKey   []byte
		indexKey []byte
	}
	victims := []victim{}

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		for _, status := range statuses {
			prefix := jobIndexScanPrefix(status)
			itOpts := badgerdb.DefaultIteratorOptions
			itOpts.Prefix = prefix
			itOpts.PrefetchValues = false

			type candidate struct {
				id       string
				indexKey []byte
			}
			candidates := []candidate{}

			it := txn.NewIterator(itOpts)
			for it.Rewind(); it.Valid(); it.Next() {
				key := it.Item().KeyCopy(nil)
				id, err := jobIDFromIndexKey(key, prefix)
				if err != nil {
					it.Close()
					return err
				}
				candidates = append(candidates, candidate{id: id, indexKey: key})
			}
			it.Close()

			for _, c := range candidates {
				job, err := getJobTxn(txn, c.id)
				if err == badgerdb.ErrKeyNotFound {
					continue
				}
				if errors.Is(err, errCorruptRecord) {
					// Completion time is unreadable, leave the row alone
					continue
				}
				if err != nil {
					return err
				}
				if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
					continue
				}
				victims = append(victims, victim{jobKey: jobKey(c.id), indexKey: c.indexKey})
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan jobs for deletion: %w", err)
	}

	if len(victims) == 0 {
		return 0, nil
	}

	// Terminal jobs never change status, so a write batch is safe here and
	// avoids transaction size limits on large purges
	wb := s.db.Badger().NewWriteBatch()
	defer wb.Cancel()

	for _, v := range victims {
		if err := wb.Delete(v.jobKey); err != nil {
			return 0, fmt.Errorf("failed to delete job: %w", err)
		}
		if err := wb.Delete(v.indexKey); err != nil {
			return 0, fmt.Errorf("failed to delete job index: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush deletions: %w", err)
	}

	return len(victims), nil
}

// Close is a no-op; the shared connection is closed by the manager
func (s *JobStorage) Close() error {
	return nil
}
