package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRenderPDF(t *testing.T) {
	markdown := `# Forensic Audit Report

## Findings

### Date mismatch

**Severity:** high | **Confidence:** 85/100

Two contracts disagree on the execution date.

> Contract dated January 5, 2024.
> (f1:s1)

## Files Reviewed

| File | Status |
|------|--------|
| a.pdf | done |
| b.pdf | skipped |
`

	s := NewService(arbor.NewLogger())
	pdf, err := s.RenderPDF(markdown)

	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestRenderPDFEmptyMarkdown(t *testing.T) {
	s := NewService(arbor.NewLogger())
	pdf, err := s.RenderPDF("")

	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}
