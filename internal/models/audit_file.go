// -----------------------------------------------------------------------
// Audit File - Per-document work item snapshotted at job creation
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileStatus represents the per-file state machine:
// pending -> processing -> {done|failed|skipped}
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusDone       FileStatus = "done"
	FileStatusFailed     FileStatus = "failed"
	FileStatusSkipped    FileStatus = "skipped"
)

// AuditFile is one document's work item within an audit job. Files are
// snapshotted when the job is created; later uploads or deletions in the
// source collection do not affect an in-flight job.
type AuditFile struct {
	ID         string `json:"id" badgerhold:"key"`
	JobID      string `json:"job_id" badgerhold:"index"`
	DocumentID string `json:"document_id"`

	// Source document reference, captured at snapshot time
	StoragePath string `json:"storage_path"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	IsChunked   bool   `json:"is_chunked"`

	// Position preserves the collection's upload order so batches are
	// claimed FIFO even when CreatedAt timestamps collide.
	Position int `json:"position"`

	Status FileStatus `json:"status"`
	Error  string     `json:"error,omitempty"`

	// FactsJSON holds the validated structured facts; EvidenceJSON keeps
	// the raw extracted snippets for citation verification and audit trail.
	FactsJSON    string `json:"facts_json,omitempty"`
	EvidenceJSON string `json:"evidence_json,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true once the file has reached exactly one terminal status
func (f *AuditFile) IsTerminal() bool {
	return f.Status == FileStatusDone ||
		f.Status == FileStatusFailed ||
		f.Status == FileStatusSkipped
}

// MarkProcessing claims the file for the current batch
func (f *AuditFile) MarkProcessing() {
	f.Status = FileStatusProcessing
	f.UpdatedAt = time.Now().UTC()
}

// MarkDone records validated facts and the retained evidence
func (f *AuditFile) MarkDone(factsJSON, evidenceJSON string) {
	f.Status = FileStatusDone
	f.FactsJSON = factsJSON
	f.EvidenceJSON = evidenceJSON
	f.Error = ""
	f.touchTerminal()
}

// MarkFailed records a definite per-file error
func (f *AuditFile) MarkFailed(errorMsg string) {
	f.Status = FileStatusFailed
	f.Error = errorMsg
	f.touchTerminal()
}

// MarkSkipped records a recoverable skip (no usable evidence, or timeout)
// with a placeholder empty-facts payload.
func (f *AuditFile) MarkSkipped(reason string) {
	f.Status = FileStatusSkipped
	f.FactsJSON = EmptyFactsJSON(reason)
	f.touchTerminal()
}

// Requeue returns a stale processing file to pending so a later batch can
// reclaim it after a crashed invocation.
func (f *AuditFile) Requeue() {
	f.Status = FileStatusPending
	f.UpdatedAt = time.Now().UTC()
}

func (f *AuditFile) touchTerminal() {
	now := time.Now().UTC()
	f.UpdatedAt = now
	f.CompletedAt = &now
}

// Facts decodes the stored facts payload
func (f *AuditFile) Facts() (*FileFacts, error) {
	if f.FactsJSON == "" {
		return nil, fmt.Errorf("file %s has no facts", f.ID)
	}
	var facts FileFacts
	if err := json.Unmarshal([]byte(f.FactsJSON), &facts); err != nil {
		return nil, fmt.Errorf("failed to decode facts for file %s: %w", f.ID, err)
	}
	return &facts, nil
}

// Evidence decodes the stored evidence snippets
func (f *AuditFile) Evidence() ([]Snippet, error) {
	if f.EvidenceJSON == "" {
		return nil, nil
	}
	var snippets []Snippet
	if err := json.Unmarshal([]byte(f.EvidenceJSON), &snippets); err != nil {
		return nil, fmt.Errorf("failed to decode evidence for file %s: %w", f.ID, err)
	}
	return snippets, nil
}
