// -----------------------------------------------------------------------
// Citation Validator - Drops any claim not backed by a verbatim quote
// -----------------------------------------------------------------------

package audit

import (
	"strings"

	"github.com/ternarybob/indago/internal/models"
)

// normalizeQuote trims surrounding whitespace and normalizes line endings
// before the substring check
func normalizeQuote(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// validCitations keeps only citations whose quote is a literal substring
// of the cited snippet's text. Unknown snippet IDs and fabricated quotes
// are dropped silently.
func validCitations(citations []models.Citation, snippets map[string]models.Snippet) []models.Citation {
	kept := make([]models.Citation, 0, len(citations))
	for _, c := range citations {
		snippet, ok := snippets[c.SnippetID]
		if !ok {
			continue
		}
		quote := normalizeQuote(c.Quote)
		if quote == "" {
			continue
		}
		if !strings.Contains(normalizeQuote(snippet.Text), quote) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// ValidateFacts is a pure function that strips unsupported claims from raw
// LLM output. Any fact or red flag left with zero surviving citations is
// removed entirely; partial uncited claims are never retained. This is the
// anti-hallucination gate and runs identically after the per-file call and
// the cross-document synthesis call.
func ValidateFacts(raw *models.FileFacts, snippets map[string]models.Snippet) *models.FileFacts {
	cleaned := &models.FileFacts{
		DocumentType: raw.DocumentType,
		Summary:      raw.Summary,
		Facts:        make([]models.Fact, 0, len(raw.Facts)),
		RedFlags:     make([]models.RedFlag, 0, len(raw.RedFlags)),
	}
	if cleaned.DocumentType == "" {
		cleaned.DocumentType = "unknown"
	}

	for _, fact := range raw.Facts {
		citations := validCitations(fact.Citations, snippets)
		if len(citations) == 0 {
			continue
		}
		fact.Citations = citations
		cleaned.Facts = append(cleaned.Facts, fact)
	}

	for _, flag := range raw.RedFlags {
		citations := validCitations(flag.Citations, snippets)
		if len(citations) == 0 {
			continue
		}
		flag.Citations = citations
		cleaned.RedFlags = append(cleaned.RedFlags, flag)
	}

	return cleaned
}

// ValidateFindings applies the same citation contract to cross-document
// findings, resolved against the combined snippet index. A finding with no
// surviving citation is downgraded out of the report.
func ValidateFindings(findings []models.Finding, snippets map[string]models.Snippet) []models.Finding {
	kept := make([]models.Finding, 0, len(findings))
	for _, finding := range findings {
		citations := validCitations(finding.Citations, snippets)
		if len(citations) == 0 {
			continue
		}
		finding.Citations = citations
		kept = append(kept, finding)
	}
	return kept
}
