// -----------------------------------------------------------------------
// Audit Handler - Action-based audit API and report download
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/audit"
	"github.com/ternarybob/indago/internal/services/report"
	badgerstorage "github.com/ternarybob/indago/internal/storage/badger"
)

// AuditRequest is the single action-dispatched request body.
// POST /api/audit
type AuditRequest struct {
	Action       string `json:"action" validate:"required,oneof=start run status cancel"`
	CollectionID string `json:"collectionId,omitempty"`
	JobID        string `json:"jobId,omitempty"`
	MaxFiles     int    `json:"maxFiles,omitempty" validate:"min=0,max=5"`
	CreatedBy    string `json:"createdBy,omitempty"`
}

// AuditHandler serves the audit job API
type AuditHandler struct {
	auditService  interfaces.AuditService
	reportService *report.Service
	validate      *validator.Validate
	logger        arbor.ILogger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService interfaces.AuditService, reportService *report.Service, logger arbor.ILogger) *AuditHandler {
	return &AuditHandler{
		auditService:  auditService,
		reportService: reportService,
		validate:      validator.New(),
		logger:        logger,
	}
}

// AuditHandler dispatches the four audit actions:
//
//	{action:"start", collectionId}      -> {jobId, totalFiles}
//	{action:"run", jobId, maxFiles?}    -> {job}
//	{action:"status", jobId}            -> {job}
//	{action:"cancel", jobId}            -> {job}
func (h *AuditHandler) AuditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: %s", err.Error()))
		return
	}

	ctx := r.Context()

	switch req.Action {
	case "start":
		job, err := h.auditService.Start(ctx, req.CollectionID, req.CreatedBy)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"jobId":      job.ID,
			"totalFiles": job.TotalFiles,
		})

	case "run":
		if req.JobID == "" {
			h.writeError(w, http.StatusBadRequest, "jobId is required")
			return
		}
		job, err := h.auditService.Run(ctx, req.JobID, req.MaxFiles)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJob(w, job)

	case "status":
		if req.JobID == "" {
			h.writeError(w, http.StatusBadRequest, "jobId is required")
			return
		}
		job, err := h.auditService.Status(ctx, req.JobID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJob(w, job)

	case "cancel":
		if req.JobID == "" {
			h.writeError(w, http.StatusBadRequest, "jobId is required")
			return
		}
		job, err := h.auditService.Cancel(ctx, req.JobID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJob(w, job)
	}
}

// ReportPDFHandler serves the completed report as a PDF download.
// GET /api/audit/{jobId}/report.pdf
func (h *AuditHandler) ReportPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 4 {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	jobID := pathParts[2]

	job, err := h.auditService.Status(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if job.Status != models.JobStatusCompleted || job.ReportMarkdown == "" {
		h.writeError(w, http.StatusNotFound, "Report is not available for this job")
		return
	}

	pdf, err := h.reportService.RenderPDF(job.ReportMarkdown)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to render report PDF")
		h.writeError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+"-report.pdf"))
	w.Write(pdf)
}

func (h *AuditHandler) writeJob(w http.ResponseWriter, job *models.AuditJob) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"job": job})
}

func (h *AuditHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuditHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP status codes. Internal
// details stay in the logs, not in the response.
func (h *AuditHandler) writeServiceError(w http.ResponseWriter, err error) {
	var vErr *audit.ValidationError
	var sErr *audit.StateError

	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, vErr.Message)
	case errors.As(err, &sErr):
		h.writeError(w, http.StatusConflict, sErr.Error())
	case errors.Is(err, badgerstorage.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, "Job not found")
	default:
		h.logger.Error().Err(err).Msg("Audit request failed")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
