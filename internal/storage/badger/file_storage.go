package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrFileNotFound is returned when a file ID does not resolve to a record
var ErrFileNotFound = fmt.Errorf("file not found")

// FileStorage implements the FileStorage interface for Badger
type FileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFileStorage creates a new FileStorage instance
func NewFileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FileStorage {
	return &FileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FileStorage) SaveFile(ctx context.Context, file *models.AuditFile) error {
	if file.ID == "" {
		return fmt.Errorf("file ID is required")
	}

	if err := s.db.Store().Upsert(file.ID, file); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// SaveFiles persists the job's file snapshot in one transaction so a job
// is never created with a partial file set.
func (s *FileStorage) SaveFiles(ctx context.Context, files []*models.AuditFile) error {
	tx := s.db.Store().Badger().NewTransaction(true)
	defer tx.Discard()

	for _, file := range files {
		if err := s.upsertTx(tx, file); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file snapshot: %w", err)
	}
	return nil
}

func (s *FileStorage) upsertTx(tx *badger.Txn, file *models.AuditFile) error {
	if file.ID == "" {
		return fmt.Errorf("file ID is required")
	}
	if err := s.db.Store().TxUpsert(tx, file.ID, file); err != nil {
		return fmt.Errorf("failed to save file %s: %w", file.ID, err)
	}
	return nil
}

func (s *FileStorage) GetFile(ctx context.Context, fileID string) (*models.AuditFile, error) {
	var file models.AuditFile
	if err := s.db.Store().Get(fileID, &file); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

func (s *FileStorage) ListFiles(ctx context.Context, jobID string) ([]*models.AuditFile, error) {
	var files []models.AuditFile
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("Position")
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	result := make([]*models.AuditFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}

func (s *FileStorage) ListFilesByStatus(ctx context.Context, jobID string, status models.FileStatus) ([]*models.AuditFile, error) {
	var files []models.AuditFile
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").
		And("Status").Eq(status).
		SortBy("Position")
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list files by status: %w", err)
	}

	result := make([]*models.AuditFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}

func (s *FileStorage) CountTerminal(ctx context.Context, jobID string) (int, error) {
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").
		And("Status").In(
		models.FileStatusDone,
		models.FileStatusFailed,
		models.FileStatusSkipped,
	)
	count, err := s.db.Store().Count(&models.AuditFile{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count terminal files: %w", err)
	}
	return int(count), nil
}
