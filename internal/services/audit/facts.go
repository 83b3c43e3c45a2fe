// -----------------------------------------------------------------------
// Fact Extraction - One structured LLM call per file, citations mandatory
// -----------------------------------------------------------------------

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// factsSystemPrompt constrains the per-file extraction call. Facts that
// cannot be tied to a verbatim quote are worthless downstream, so the
// instruction set forbids invention outright.
const factsSystemPrompt = `You are a forensic document auditor. You will receive evidence snippets extracted from exactly one document. Extract structured facts from those snippets and nothing else.

Rules:
- Never invent facts. Every fact and every red flag must be supported by the snippets you were given.
- Every fact and red flag must carry at least one citation: {"snippet_id": "<id>", "quote": "<text copied verbatim from that snippet>"}. Citations with altered or paraphrased quotes will be discarded.
- When the evidence does not establish something, say "unknown" or "needs_more_evidence" rather than guessing.
- Red flags are risk indicators found inside this document: inconsistencies, unusual terms, missing signatures, altered dates and the like.

Respond with JSON only, no prose, in exactly this shape:
{
  "document_type": "<short label, or unknown>",
  "summary": "<2-4 sentence factual summary>",
  "facts": [{"key": "<name>", "value": "<value>", "citations": [{"snippet_id": "s1", "quote": "..."}]}],
  "internal_red_flags": [{"description": "<what and why>", "severity": "high|medium|low", "citations": [{"snippet_id": "s1", "quote": "..."}]}]
}`

// extractFacts runs the per-file LLM call and returns validated facts.
// Only this file's snippets are sent; cross-document reasoning happens
// later, at synthesis.
func (s *Service) extractFacts(ctx context.Context, file *models.AuditFile, snippets []models.Snippet) (*models.FileFacts, error) {
	userPrompt := buildFactsPrompt(file.FileName, snippets)

	var response string
	err := s.retry.Do(ctx, s.logger, "extract facts", func(callCtx context.Context) error {
		var chatErr error
		response, chatErr = s.llm.Chat(callCtx, []interfaces.Message{
			{Role: "system", Content: factsSystemPrompt},
			{Role: "user", Content: userPrompt},
		})
		return chatErr
	})
	if err != nil {
		return nil, fmt.Errorf("fact extraction call failed: %w", err)
	}

	var raw models.FileFacts
	if err := decodeLLMJSON(response, &raw); err != nil {
		return nil, fmt.Errorf("fact extraction returned unparseable output: %w", err)
	}

	cleaned := ValidateFacts(&raw, models.SnippetIndex(snippets))

	s.logger.Debug().
		Str("file", file.FileName).
		Int("facts", len(cleaned.Facts)).
		Int("red_flags", len(cleaned.RedFlags)).
		Int("dropped_facts", len(raw.Facts)-len(cleaned.Facts)).
		Msg("Extracted and validated facts")

	return cleaned, nil
}

func buildFactsPrompt(fileName string, snippets []models.Snippet) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Document: %s\n\nEvidence snippets:\n", fileName))
	for _, snippet := range snippets {
		builder.WriteString(fmt.Sprintf("\n[%s] (%s)\n%s\n", snippet.ID, snippet.Location, snippet.Text))
	}
	return builder.String()
}

// encodeFacts marshals validated facts for persistence on the file record
func encodeFacts(facts *models.FileFacts) (string, error) {
	data, err := json.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("failed to encode facts: %w", err)
	}
	return string(data), nil
}

// encodeEvidence marshals the snippets retained for citation resolution
func encodeEvidence(snippets []models.Snippet) (string, error) {
	data, err := json.Marshal(snippets)
	if err != nil {
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}
	return string(data), nil
}
