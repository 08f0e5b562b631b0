package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/common"
	"github.com/ternarybob/opero/internal/interfaces"
)

// Manager bundles the Badger-backed stores behind interfaces.StorageManager
type Manager struct {
	db            *BadgerDB
	jobStorage    *JobStorage
	jobLogStorage *JobLogStorage
	logger        arbor.ILogger
}

// NewManager opens the Badger database and wires up the stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger database: %w", err)
	}

	return &Manager{
		db:            db,
		jobStorage:    NewJobStorage(db, logger),
		jobLogStorage: NewJobLogStorage(db, logger),
		logger:        logger,
	}, nil
}

// JobStorage returns the job store
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobStorage
}

// JobLogStorage returns the job log store
func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLogStorage
}

// Close closes the shared database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
