package interfaces

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// ContentRetriever fetches a document's raw bytes from blob storage,
// transparently reassembling files that were split into chunks at upload
// time.
type ContentRetriever interface {
	Resolve(ctx context.Context, file *models.AuditFile) ([]byte, error)
}

// EvidenceExtractor turns raw document bytes into evidence snippets.
// Dispatch is by declared MIME type and filename extension, with content
// sniffing as a fallback.
type EvidenceExtractor interface {
	Extract(ctx context.Context, fileName, contentType string, data []byte) ([]models.Snippet, error)
}

// AnalysisService is the optional secondary analysis backend consulted
// during synthesis with a condensed evidence payload.
type AnalysisService interface {
	Analyze(ctx context.Context, payload *AnalysisPayload) (*models.AnalysisResult, error)
	Enabled() bool
}

// AnalysisPayload is the condensed evidence sent to the secondary backend
type AnalysisPayload struct {
	JobID string                `json:"job_id"`
	Files []AnalysisFilePayload `json:"files"`
}

// AnalysisFilePayload is one file's contribution to the condensed payload
type AnalysisFilePayload struct {
	FileName     string `json:"file_name"`
	DocumentType string `json:"document_type"`
	Summary      string `json:"summary"`
}

// AuditService is the job controller: the four actions callers may
// invoke. It does not decide who may call it; authorization is an
// external concern.
type AuditService interface {
	// Start creates a queued job and snapshots the collection's documents
	// into pending files
	Start(ctx context.Context, collectionID, createdBy string) (*models.AuditJob, error)

	// Run executes one bounded batch. Calling Run on a terminal job is a
	// no-op returning the stored record, which makes polling and
	// automatic retries safe.
	Run(ctx context.Context, jobID string, maxFiles int) (*models.AuditJob, error)

	// Status is a pure read
	Status(ctx context.Context, jobID string) (*models.AuditJob, error)

	// Cancel transitions a queued or running job to cancelled. In-flight
	// batches are not interrupted; cancellation takes effect at the next
	// invocation boundary.
	Cancel(ctx context.Context, jobID string) (*models.AuditJob, error)
}
