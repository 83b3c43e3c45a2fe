// -----------------------------------------------------------------------
// Evidence Model - Snippets, citations and per-file facts
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"unicode/utf8"
)

// SnippetTextBudget is the maximum number of characters retained per
// evidence snippet. Text beyond the budget is clipped and marked.
const SnippetTextBudget = 25000

// TruncationMarker is appended to snippet text that was clipped
const TruncationMarker = "[TRUNCATED]"

// Snippet is a bounded chunk of text extracted from one document. Snippets
// are the only permissible source of facts: every claim must cite one.
type Snippet struct {
	ID       string `json:"id"`
	Location string `json:"location"` // e.g. "page 3", "sheet Balances", "body"
	Text     string `json:"text"`
}

// NewSnippet builds a snippet, enforcing the text budget. The clip backs
// up to a rune boundary so truncated text stays valid UTF-8.
func NewSnippet(id, location, text string) Snippet {
	if len(text) > SnippetTextBudget {
		cut := SnippetTextBudget
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + TruncationMarker
	}
	return Snippet{ID: id, Location: location, Text: text}
}

// Citation asserts that specific text within a specific snippet supports
// a fact. Quote must be a literal substring of the cited snippet's text;
// the citation validator drops anything that fails that check.
type Citation struct {
	SnippetID string `json:"snippet_id"`
	Quote     string `json:"quote"`
}

// Fact is a structured key/value pair extracted from one document
type Fact struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Citations []Citation `json:"citations"`
}

// RedFlag is a risk indicator found inside a single document
type RedFlag struct {
	Description string     `json:"description"`
	Severity    string     `json:"severity,omitempty"`
	Citations   []Citation `json:"citations"`
}

// FileFacts is the validated output of the per-file extraction stage
type FileFacts struct {
	DocumentType string    `json:"document_type"`
	Summary      string    `json:"summary"`
	Facts        []Fact    `json:"facts"`
	RedFlags     []RedFlag `json:"internal_red_flags"`
}

// EmptyFactsJSON renders a placeholder facts payload for skipped files.
// A skipped file must never surface fabricated facts.
func EmptyFactsJSON(summary string) string {
	data, _ := json.Marshal(FileFacts{
		DocumentType: "unknown",
		Summary:      summary,
		Facts:        []Fact{},
		RedFlags:     []RedFlag{},
	})
	return string(data)
}

// SnippetIndex builds a lookup table from snippet ID to snippet
func SnippetIndex(snippets []Snippet) map[string]Snippet {
	index := make(map[string]Snippet, len(snippets))
	for _, s := range snippets {
		index[s.ID] = s
	}
	return index
}
