package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	job      interfaces.JobStorage
	file     interfaces.FileStorage
	document interfaces.DocumentStorage
	blob     interfaces.BlobStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		job:      NewJobStorage(db, logger),
		file:     NewFileStorage(db, logger),
		document: NewDocumentStorage(db, logger),
		blob:     NewBlobStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the audit job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// FileStorage returns the audit file storage interface
func (m *Manager) FileStorage() interfaces.FileStorage {
	return m.file
}

// DocumentStorage returns the source document storage interface
func (m *Manager) DocumentStorage() interfaces.DocumentStorage {
	return m.document
}

// BlobStorage returns the blob storage interface
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blob
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
