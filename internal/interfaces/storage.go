package interfaces

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// JobStorage persists audit job records. Every state transition is
// written through here; the runner never caches job state across
// invocations.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.AuditJob) error
	GetJob(ctx context.Context, jobID string) (*models.AuditJob, error)
	ListJobsByStatus(ctx context.Context, statuses ...models.JobStatus) ([]*models.AuditJob, error)
}

// FileStorage persists per-document work items
type FileStorage interface {
	SaveFile(ctx context.Context, file *models.AuditFile) error
	SaveFiles(ctx context.Context, files []*models.AuditFile) error
	GetFile(ctx context.Context, fileID string) (*models.AuditFile, error)

	// ListFiles returns every file of a job in snapshot (FIFO) order
	ListFiles(ctx context.Context, jobID string) ([]*models.AuditFile, error)

	// ListFilesByStatus returns a job's files with the given status, in
	// snapshot order
	ListFilesByStatus(ctx context.Context, jobID string, status models.FileStatus) ([]*models.AuditFile, error)

	// CountTerminal returns how many of a job's files have reached a
	// terminal status (done, failed or skipped)
	CountTerminal(ctx context.Context, jobID string) (int, error)
}

// DocumentStorage reads the source document collection that a job
// snapshots at creation time
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	ListByCollection(ctx context.Context, collectionID string) ([]*models.Document, error)
}

// BlobStorage is the blob store keyed by path. Chunk manifests describe
// files split at upload time.
type BlobStorage interface {
	Upload(ctx context.Context, path string, data []byte) error
	Download(ctx context.Context, path string) ([]byte, error)
	SaveManifest(ctx context.Context, manifest *models.ChunkManifest) error
	GetManifest(ctx context.Context, storagePath string) (*models.ChunkManifest, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	FileStorage() FileStorage
	DocumentStorage() DocumentStorage
	BlobStorage() BlobStorage
	Close() error
}
