// -----------------------------------------------------------------------
// Batch Runner - One bounded, resumable unit of audit work
// -----------------------------------------------------------------------

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/indago/internal/models"
)

// fileOutcome carries one file's pipeline result across the timeout race
type fileOutcome struct {
	factsJSON    string
	evidenceJSON string
	skipped      bool
	skipReason   string
	err          error
}

// Run executes one batch: claim up to maxFiles pending files, process
// them sequentially, persist progress after every file, and trigger
// synthesis once every file is terminal. Calling Run on a terminal job is
// a no-op returning the stored record, so polling and retries are safe.
func (s *Service) Run(ctx context.Context, jobID string, maxFiles int) (*models.AuditJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.IsTerminal() {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Run called on terminal job, nothing to do")
		return job, nil
	}

	job.MarkStarted()
	active, err := s.saveJobIfActive(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to save running job: %w", err)
	}
	if !active {
		return job, nil
	}

	if err := s.reclaimStaleFiles(ctx, job); err != nil {
		return nil, err
	}

	claimed, err := s.claimBatch(ctx, job, maxFiles)
	if err != nil {
		return nil, err
	}

	for i, file := range claimed {
		if err := ctx.Err(); err != nil {
			return job, err
		}

		job.CurrentStep = fmt.Sprintf("Processing %s", file.FileName)
		active, err := s.saveJobIfActive(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("failed to save job step: %w", err)
		}
		if !active {
			return job, s.releaseClaim(ctx, claimed[i:])
		}

		s.processFileWithTimeout(ctx, file)

		if err := s.files.SaveFile(ctx, file); err != nil {
			return nil, fmt.Errorf("failed to save file %s: %w", file.ID, err)
		}

		processed, err := s.files.CountTerminal(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count terminal files: %w", err)
		}
		job.UpdateProgress(processed, time.Now().UTC())
		active, err = s.saveJobIfActive(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("failed to save job progress: %w", err)
		}
		if !active {
			return job, s.releaseClaim(ctx, claimed[i+1:])
		}

		s.logger.Info().
			Str("job_id", job.ID).
			Str("file", file.FileName).
			Str("status", string(file.Status)).
			Int("processed", job.ProcessedFiles).
			Int("total", job.TotalFiles).
			Msg("File processed")
	}

	// A crashed invocation can persist a file's terminal status without
	// the matching job record update. Recount from the files themselves
	// so the synthesis check never trusts a stale ProcessedFiles.
	processed, err := s.files.CountTerminal(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count terminal files: %w", err)
	}
	job.UpdateProgress(processed, time.Now().UTC())
	active, err = s.saveJobIfActive(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to save job progress: %w", err)
	}
	if !active {
		return job, nil
	}

	if job.ProcessedFiles >= job.TotalFiles {
		if err := s.synthesize(ctx, job); err != nil {
			return nil, err
		}
	}

	return job, nil
}

// saveJobIfActive persists the in-memory job record unless the stored
// record went terminal underneath this invocation, which happens when a
// cancel lands while a batch is in flight. On a lost race the stored
// record replaces the in-memory one so the caller returns the truth, and
// false signals the batch must stop.
func (s *Service) saveJobIfActive(ctx context.Context, job *models.AuditJob) (bool, error) {
	stored, err := s.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if stored.IsTerminal() {
		s.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(stored.Status)).
			Msg("Job went terminal mid-batch, aborting")
		*job = *stored
		return false, nil
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// releaseClaim requeues claimed files an aborted batch will no longer
// process, so the stored file states stay truthful.
func (s *Service) releaseClaim(ctx context.Context, files []*models.AuditFile) error {
	for _, file := range files {
		if file.Status != models.FileStatusProcessing {
			continue
		}
		file.Requeue()
		if err := s.files.SaveFile(ctx, file); err != nil {
			return fmt.Errorf("failed to release claim on file %s: %w", file.ID, err)
		}
	}
	return nil
}

// reclaimStaleFiles requeues processing files abandoned by a crashed
// invocation. A file still inside its timeout window may belong to a
// live batch and is left alone.
func (s *Service) reclaimStaleFiles(ctx context.Context, job *models.AuditJob) error {
	processing, err := s.files.ListFilesByStatus(ctx, job.ID, models.FileStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing files: %w", err)
	}

	staleBefore := time.Now().UTC().Add(-(s.config.FileTimeoutDuration() + s.config.StaleGraceDuration()))
	for _, file := range processing {
		if file.UpdatedAt.After(staleBefore) {
			continue
		}
		file.Requeue()
		if err := s.files.SaveFile(ctx, file); err != nil {
			return fmt.Errorf("failed to requeue stale file %s: %w", file.ID, err)
		}
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("file", file.FileName).
			Msg("Reclaimed file stuck in processing")
	}
	return nil
}

// claimBatch marks up to maxFiles pending files as processing, in
// snapshot (FIFO) order
func (s *Service) claimBatch(ctx context.Context, job *models.AuditJob, maxFiles int) ([]*models.AuditFile, error) {
	if maxFiles < 1 {
		maxFiles = s.config.MaxFilesPerBatch
	}
	if maxFiles > s.config.MaxFilesPerBatch {
		maxFiles = s.config.MaxFilesPerBatch
	}

	pending, err := s.files.ListFilesByStatus(ctx, job.ID, models.FileStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending files: %w", err)
	}
	if len(pending) > maxFiles {
		pending = pending[:maxFiles]
	}

	for _, file := range pending {
		file.MarkProcessing()
		if err := s.files.SaveFile(ctx, file); err != nil {
			return nil, fmt.Errorf("failed to claim file %s: %w", file.ID, err)
		}
	}
	return pending, nil
}

// processFileWithTimeout races the retrieve/extract/LLM pipeline against
// the per-file timeout and records exactly one terminal status on the
// file. The losing branch's work is discarded, never partially saved.
func (s *Service) processFileWithTimeout(ctx context.Context, file *models.AuditFile) {
	timeout := s.config.FileTimeoutDuration()
	fileCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan fileOutcome, 1)
	go func() {
		resultCh <- s.processFile(fileCtx, file)
	}()

	select {
	case outcome := <-resultCh:
		switch {
		case outcome.err != nil && errors.Is(outcome.err, context.DeadlineExceeded):
			// The pipeline noticed the expired deadline itself; same
			// outcome as losing the race below.
			file.MarkSkipped(fmt.Sprintf("Processing timed out after %s", timeout))
		case outcome.err != nil:
			file.MarkFailed(outcome.err.Error())
		case outcome.skipped:
			file.MarkSkipped(outcome.skipReason)
		default:
			file.MarkDone(outcome.factsJSON, outcome.evidenceJSON)
		}
	case <-fileCtx.Done():
		file.MarkSkipped(fmt.Sprintf("Processing timed out after %s", timeout))
		s.logger.Warn().
			Str("file", file.FileName).
			Dur("timeout", timeout).
			Msg("File skipped on timeout")
	}
}

// processFile runs the full per-file pipeline: content retrieval, format
// extraction, fact extraction, citation validation
func (s *Service) processFile(ctx context.Context, file *models.AuditFile) fileOutcome {
	data, err := s.retriever.Resolve(ctx, file)
	if err != nil {
		return fileOutcome{err: fmt.Errorf("content retrieval failed: %w", err)}
	}

	snippets, err := s.extractor.Extract(ctx, file.FileName, file.ContentType, data)
	if err != nil {
		return fileOutcome{err: err}
	}
	if len(snippets) == 0 {
		return fileOutcome{skipped: true, skipReason: "No usable evidence could be extracted from this document"}
	}

	facts, err := s.extractFacts(ctx, file, snippets)
	if err != nil {
		return fileOutcome{err: err}
	}

	factsJSON, err := encodeFacts(facts)
	if err != nil {
		return fileOutcome{err: err}
	}
	evidenceJSON, err := encodeEvidence(snippets)
	if err != nil {
		return fileOutcome{err: err}
	}

	return fileOutcome{factsJSON: factsJSON, evidenceJSON: evidenceJSON}
}
