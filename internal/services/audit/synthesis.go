// -----------------------------------------------------------------------
// Report Synthesis - One cross-document LLM pass over all validated facts
// -----------------------------------------------------------------------

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

const synthesisSystemPrompt = `You are a forensic auditor writing the final findings report over a set of documents. You will receive, per document, the validated facts already extracted from it and the evidence snippets behind them, each snippet keyed by a job-wide ID of the form "<file tag>:<snippet id>".

Your task:
- Identify inconsistencies and corroborations ACROSS documents: dates that disagree, amounts that do not reconcile, parties named differently, claims one document supports and another contradicts.
- Assign each finding a severity: "high", "medium", "low", or "needs_more_evidence".
- Assign each finding a confidence score from 0 to 100.
- Every finding must cite evidence: {"snippet_id": "<file tag>:<snippet id>", "quote": "<text copied verbatim from that snippet>"}. Findings without verbatim citations will be discarded.
- Where the evidence is insufficient, use severity "needs_more_evidence" rather than speculating.

Respond with JSON only:
{
  "overview": "<3-6 sentence executive overview>",
  "findings": [{"title": "...", "description": "...", "severity": "high", "confidence": 80, "citations": [{"snippet_id": "f1:s2", "quote": "..."}]}],
  "risk_score": <0-100 number or null>
}`

// synthesize fires exactly once, after every file is terminal. It builds
// the cross-document payload, runs the synthesis LLM call and the
// optional secondary analysis concurrently, validates citations against
// the job-wide snippet index, and completes the job. A synthesis failure
// fails the job; a half-made report is never presented as a completed
// audit.
func (s *Service) synthesize(ctx context.Context, job *models.AuditJob) error {
	job.CurrentStep = "Synthesizing findings"
	active, err := s.saveJobIfActive(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to save job step: %w", err)
	}
	if !active {
		return nil
	}

	files, err := s.files.ListFiles(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list job files: %w", err)
	}

	if len(files) == 0 {
		report := &models.Report{
			Overview: "No documents were found in the collection; there is nothing to audit.",
			Findings: []models.Finding{},
			Files:    []models.ReportFileSummary{},
		}
		return s.complete(ctx, job, report, nil)
	}

	payload, index := buildSynthesisPayload(files)

	// The secondary backend runs alongside the main synthesis call; its
	// absence or failure never blocks the report.
	analysisCh := s.startSecondaryAnalysis(ctx, job, files)

	var response string
	callErr := s.retry.Do(ctx, s.logger, "synthesize report", func(callCtx context.Context) error {
		var chatErr error
		response, chatErr = s.llm.Chat(callCtx, []interfaces.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: payload},
		})
		return chatErr
	})
	if callErr != nil {
		return s.failSynthesis(ctx, job, fmt.Errorf("synthesis call failed: %w", callErr))
	}

	var raw models.Report
	if err := decodeLLMJSON(response, &raw); err != nil {
		return s.failSynthesis(ctx, job, fmt.Errorf("synthesis returned unparseable output: %w", err))
	}

	report := &models.Report{
		Overview:  raw.Overview,
		Findings:  ValidateFindings(raw.Findings, index),
		Files:     buildFileSummaries(files),
		RiskScore: raw.RiskScore,
	}

	var analysis *models.AnalysisResult
	if analysisCh != nil {
		analysis = <-analysisCh
	}

	return s.complete(ctx, job, report, analysis)
}

// failSynthesis records the job-level failure while preserving the
// per-file progress already made
func (s *Service) failSynthesis(ctx context.Context, job *models.AuditJob, cause error) error {
	s.logger.Error().Err(cause).Str("job_id", job.ID).Msg("Report synthesis failed")
	job.MarkFailed(fmt.Sprintf("Report synthesis failed: %s", cause.Error()))
	if _, err := s.saveJobIfActive(ctx, job); err != nil {
		return fmt.Errorf("failed to save failed job: %w", err)
	}
	return nil
}

func (s *Service) complete(ctx context.Context, job *models.AuditJob, report *models.Report, analysis *models.AnalysisResult) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return s.failSynthesis(ctx, job, fmt.Errorf("failed to encode report: %w", err))
	}

	markdown := renderReportMarkdown(job, report, analysis)
	job.MarkCompleted(markdown, string(reportJSON))
	saved, err := s.saveJobIfActive(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to save completed job: %w", err)
	}
	if !saved {
		return nil
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("findings", len(report.Findings)).
		Msg("Audit job completed")
	return nil
}

// startSecondaryAnalysis kicks off the optional backend with a condensed
// payload. Returns nil when no backend is configured.
func (s *Service) startSecondaryAnalysis(ctx context.Context, job *models.AuditJob, files []*models.AuditFile) <-chan *models.AnalysisResult {
	if s.analysis == nil || !s.analysis.Enabled() {
		return nil
	}

	payload := &interfaces.AnalysisPayload{JobID: job.ID}
	for _, file := range files {
		entry := interfaces.AnalysisFilePayload{FileName: file.FileName}
		if facts, err := file.Facts(); err == nil {
			entry.DocumentType = facts.DocumentType
			entry.Summary = facts.Summary
		}
		payload.Files = append(payload.Files, entry)
	}

	ch := make(chan *models.AnalysisResult, 1)
	go func() {
		result, err := s.analysis.Analyze(ctx, payload)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Secondary analysis failed, continuing without it")
			ch <- nil
			return
		}
		ch <- result
	}()
	return ch
}

// buildSynthesisPayload renders every file's facts and evidence into one
// prompt, qualifying snippet IDs with a per-file tag so citations stay
// resolvable job-wide. Returns the prompt and the qualified snippet index
// the validator checks citations against.
func buildSynthesisPayload(files []*models.AuditFile) (string, map[string]models.Snippet) {
	var builder strings.Builder
	index := make(map[string]models.Snippet)

	builder.WriteString("Documents under audit:\n")
	for i, file := range files {
		tag := fmt.Sprintf("f%d", i+1)
		builder.WriteString(fmt.Sprintf("\n=== Document %s: %s (status: %s) ===\n", tag, file.FileName, file.Status))

		if file.FactsJSON != "" {
			builder.WriteString("Validated facts:\n")
			builder.WriteString(file.FactsJSON)
			builder.WriteByte('\n')
		}

		snippets, err := file.Evidence()
		if err != nil || len(snippets) == 0 {
			continue
		}
		builder.WriteString("Evidence snippets:\n")
		for _, snippet := range snippets {
			qualified := fmt.Sprintf("%s:%s", tag, snippet.ID)
			index[qualified] = models.Snippet{ID: qualified, Location: snippet.Location, Text: snippet.Text}
			builder.WriteString(fmt.Sprintf("[%s] (%s)\n%s\n", qualified, snippet.Location, snippet.Text))
		}
	}

	return builder.String(), index
}

func severityRank(severity string) int {
	switch severity {
	case models.SeverityHigh:
		return 0
	case models.SeverityMedium:
		return 1
	case models.SeverityLow:
		return 2
	default:
		return 3
	}
}

func buildFileSummaries(files []*models.AuditFile) []models.ReportFileSummary {
	summaries := make([]models.ReportFileSummary, 0, len(files))
	for _, file := range files {
		summary := models.ReportFileSummary{
			FileName: file.FileName,
			Status:   string(file.Status),
		}
		if facts, err := file.Facts(); err == nil {
			summary.DocumentType = facts.DocumentType
			summary.Summary = facts.Summary
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// renderReportMarkdown produces the final human-readable report. The
// secondary analysis, when present, is prepended rather than replacing
// the synthesis findings.
func renderReportMarkdown(job *models.AuditJob, report *models.Report, analysis *models.AnalysisResult) string {
	var builder strings.Builder

	builder.WriteString("# Forensic Audit Report\n\n")
	builder.WriteString(fmt.Sprintf("Generated %s for collection `%s` (%d files).\n\n",
		time.Now().UTC().Format("2006-01-02 15:04 UTC"), job.CollectionID, job.TotalFiles))

	if analysis != nil && analysis.Analysis != "" {
		builder.WriteString("## Secondary Analysis\n\n")
		builder.WriteString(analysis.Analysis)
		builder.WriteString("\n\n")
		if analysis.RiskScore != nil {
			builder.WriteString(fmt.Sprintf("Secondary risk score: %.0f/100\n\n", *analysis.RiskScore))
		}
	}

	builder.WriteString("## Overview\n\n")
	builder.WriteString(report.Overview)
	builder.WriteString("\n\n")

	if report.RiskScore != nil {
		builder.WriteString(fmt.Sprintf("Overall risk score: %.0f/100\n\n", *report.RiskScore))
	}

	builder.WriteString("## Findings\n\n")
	if len(report.Findings) == 0 {
		builder.WriteString("No cross-document findings survived citation validation.\n\n")
	}
	findings := make([]models.Finding, len(report.Findings))
	copy(findings, report.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank(findings[i].Severity) < severityRank(findings[j].Severity)
	})
	for _, finding := range findings {
		builder.WriteString(fmt.Sprintf("### %s\n\n", finding.Title))
		builder.WriteString(fmt.Sprintf("**Severity:** %s | **Confidence:** %d/100\n\n", finding.Severity, finding.Confidence))
		builder.WriteString(finding.Description)
		builder.WriteString("\n\n")
		for _, citation := range finding.Citations {
			builder.WriteString(fmt.Sprintf("> %s\n> (%s)\n\n", citation.Quote, citation.SnippetID))
		}
	}

	builder.WriteString("## Files Reviewed\n\n")
	builder.WriteString("| File | Status | Type | Summary |\n|------|--------|------|--------|\n")
	for _, file := range report.Files {
		builder.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			file.FileName, file.Status, file.DocumentType, strings.ReplaceAll(file.Summary, "\n", " ")))
	}

	return builder.String()
}
