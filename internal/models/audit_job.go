// -----------------------------------------------------------------------
// Audit Job - Durable job record driving the forensic audit pipeline
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of an audit job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ProgressSynthesisCap is the highest progress value a job may reach from
// per-file work alone. The final 10% is reserved for report synthesis.
const ProgressSynthesisCap = 90

// MaxEstimatedRemainingSeconds caps the ETA so a single slow early file
// cannot produce a runaway estimate.
const MaxEstimatedRemainingSeconds = 4 * 60 * 60

// AuditJob is the authoritative record for one forensic audit over a
// document collection. The runner holds no state between invocations;
// everything needed to resume lives on this record and its AuditFiles.
//
// Once Status is terminal (completed, failed, cancelled) the record is
// immutable and no further batches may run against it.
type AuditJob struct {
	ID           string `json:"id" badgerhold:"key"`
	CollectionID string `json:"collection_id"`
	CreatedBy    string `json:"created_by"`

	Status JobStatus `json:"status"`

	// Progress tracking
	TotalFiles                int    `json:"total_files"`
	ProcessedFiles            int    `json:"processed_files"`
	Progress                  int    `json:"progress"` // 0-100, capped at 90 until synthesis completes
	EstimatedRemainingSeconds int    `json:"estimated_remaining_seconds"`
	CurrentStep               string `json:"current_step"`
	Error                     string `json:"error,omitempty"`

	// Output, set only on completion
	ReportMarkdown string `json:"report_markdown,omitempty"`
	ReportJSON     string `json:"report_json,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job can no longer change state
func (j *AuditJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}

// MarkStarted transitions the job to running. StartedAt is set once, on
// the first batch only, so ETA math stays stable across invocations.
func (j *AuditJob) MarkStarted() {
	j.Status = JobStatusRunning
	if j.StartedAt == nil {
		now := time.Now().UTC()
		j.StartedAt = &now
	}
}

// MarkCompleted marks the job as completed with the final report attached
func (j *AuditJob) MarkCompleted(reportMarkdown, reportJSON string) {
	j.Status = JobStatusCompleted
	j.ReportMarkdown = reportMarkdown
	j.ReportJSON = reportJSON
	j.Progress = 100
	j.EstimatedRemainingSeconds = 0
	j.CurrentStep = "Report complete"
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkFailed marks the job as failed. Per-file progress is preserved.
func (j *AuditJob) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkCancelled marks the job as cancelled by the user
func (j *AuditJob) MarkCancelled() {
	j.Status = JobStatusCancelled
	j.Error = "Cancelled by user"
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// UpdateProgress recomputes ProcessedFiles, Progress and the remaining
// time estimate from the per-file terminal counts. Progress is linear in
// processed/total, scaled so that per-file work tops out at the synthesis
// cap.
func (j *AuditJob) UpdateProgress(processed int, now time.Time) {
	j.ProcessedFiles = processed

	if j.TotalFiles > 0 {
		j.Progress = processed * ProgressSynthesisCap / j.TotalFiles
	}

	if j.StartedAt == nil || processed == 0 {
		return
	}

	elapsed := now.Sub(*j.StartedAt)
	remaining := j.TotalFiles - processed
	eta := int(elapsed.Seconds()) * remaining / processed
	if eta > MaxEstimatedRemainingSeconds {
		eta = MaxEstimatedRemainingSeconds
	}
	if eta < 0 {
		eta = 0
	}
	j.EstimatedRemainingSeconds = eta
}

// Validate checks the job record is internally consistent
func (j *AuditJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.CollectionID == "" {
		return fmt.Errorf("collection ID is required")
	}
	if j.ProcessedFiles > j.TotalFiles {
		return fmt.Errorf("processed_files %d exceeds total_files %d", j.ProcessedFiles, j.TotalFiles)
	}
	switch j.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
	default:
		return fmt.Errorf("invalid job status: %s", j.Status)
	}
	return nil
}
