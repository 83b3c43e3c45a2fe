// -----------------------------------------------------------------------
// Report Model - Cross-document synthesis output
// -----------------------------------------------------------------------

package models

// Finding severities assigned by the synthesis stage
const (
	SeverityHigh              = "high"
	SeverityMedium            = "medium"
	SeverityLow               = "low"
	SeverityNeedsMoreEvidence = "needs_more_evidence"
)

// Finding is one cross-document inconsistency or corroboration surfaced
// by the synthesis stage. Citations resolve against the originating
// file's stored evidence, using job-wide qualified snippet IDs.
type Finding struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	Confidence  int        `json:"confidence"` // 0-100
	Citations   []Citation `json:"citations"`
}

// ReportFileSummary is the per-file entry in the report appendix
type ReportFileSummary struct {
	FileName     string `json:"file_name"`
	Status       string `json:"status"`
	DocumentType string `json:"document_type,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// Report is the structured form of the final audit report. The markdown
// rendering is derived from this plus the optional secondary analysis.
type Report struct {
	Overview  string              `json:"overview"`
	Findings  []Finding           `json:"findings"`
	Files     []ReportFileSummary `json:"files"`
	RiskScore *float64            `json:"risk_score,omitempty"`
}

// AnalysisResult is the response shape of the optional secondary
// analysis backend.
type AnalysisResult struct {
	Analysis      string   `json:"analysis"`
	RiskScore     *float64 `json:"riskScore,omitempty"`
	FilesAnalyzed int      `json:"filesAnalyzed,omitempty"`
}
