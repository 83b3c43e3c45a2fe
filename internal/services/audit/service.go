// -----------------------------------------------------------------------
// Audit Service - Job controller for the four audit actions
// -----------------------------------------------------------------------

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/llm"
)

// Service orchestrates audit jobs. All authoritative state lives in the
// durable store; the service holds no job state in memory, so any
// instance can serve any invocation.
type Service struct {
	jobs      interfaces.JobStorage
	files     interfaces.FileStorage
	documents interfaces.DocumentStorage
	retriever interfaces.ContentRetriever
	extractor interfaces.EvidenceExtractor
	llm       interfaces.LLMService
	analysis  interfaces.AnalysisService
	retry     *llm.RetryPolicy
	config    *common.AuditConfig
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.AuditService = (*Service)(nil)

// NewService creates the audit job controller. The analysis service may
// be nil when no secondary backend is configured.
func NewService(
	storage interfaces.StorageManager,
	retriever interfaces.ContentRetriever,
	extractor interfaces.EvidenceExtractor,
	llmService interfaces.LLMService,
	analysis interfaces.AnalysisService,
	config *common.AuditConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		jobs:      storage.JobStorage(),
		files:     storage.FileStorage(),
		documents: storage.DocumentStorage(),
		retriever: retriever,
		extractor: extractor,
		llm:       llmService,
		analysis:  analysis,
		retry:     llm.NewRetryPolicy(config.MaxRetries, config.InitialBackoffDuration()),
		config:    config,
		logger:    logger,
	}
}

// Start creates a queued job and atomically snapshots every document in
// the collection into pending files. Later uploads or deletions in the
// collection do not affect the job. An empty collection is not an error;
// the first run completes it with a report saying no documents were found.
func (s *Service) Start(ctx context.Context, collectionID, createdBy string) (*models.AuditJob, error) {
	if collectionID == "" {
		return nil, NewValidationError("collection id is required")
	}

	docs, err := s.documents.ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collectionID, err)
	}

	now := time.Now().UTC()
	job := &models.AuditJob{
		ID:           common.NewJobID(),
		CollectionID: collectionID,
		CreatedBy:    createdBy,
		Status:       models.JobStatusQueued,
		TotalFiles:   len(docs),
		CurrentStep:  "Queued",
		CreatedAt:    now,
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	files := make([]*models.AuditFile, 0, len(docs))
	for i, doc := range docs {
		files = append(files, &models.AuditFile{
			ID:          common.NewFileID(),
			JobID:       job.ID,
			DocumentID:  doc.ID,
			StoragePath: doc.StoragePath,
			FileName:    doc.Name,
			ContentType: doc.ContentType,
			IsChunked:   doc.IsChunked,
			Position:    i,
			Status:      models.FileStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err := s.files.SaveFiles(ctx, files); err != nil {
		return nil, fmt.Errorf("failed to snapshot collection files: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("collection_id", collectionID).
		Int("total_files", job.TotalFiles).
		Msg("Audit job created")

	return job, nil
}

// Status is a pure read
func (s *Service) Status(ctx context.Context, jobID string) (*models.AuditJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// Cancel transitions a queued or running job to cancelled. A terminal job
// cannot be cancelled. In-flight batches finish their current file; the
// cancellation takes effect at the next invocation boundary, and a
// cancelled job is never resumed.
func (s *Service) Cancel(ctx context.Context, jobID string) (*models.AuditJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.IsTerminal() {
		return nil, &StateError{
			JobID:   job.ID,
			Status:  string(job.Status),
			Message: "only queued or running jobs can be cancelled",
		}
	}

	job.MarkCancelled()
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save cancelled job: %w", err)
	}

	s.logger.Info().Str("job_id", job.ID).Msg("Audit job cancelled")
	return job, nil
}
