// -----------------------------------------------------------------------
// Evidence Extractor - Dispatches documents to format-specific extraction
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// section is one extracted region of a document before snippet IDs and
// text budgets are applied.
type section struct {
	Location string
	Text     string
}

// fileKind is the extraction route chosen for a document
type fileKind int

const (
	kindText fileKind = iota
	kindPDF
	kindDocx
	kindSheet
	kindImage
)

// Dispatcher routes a document's bytes to the right format extractor and
// returns evidence snippets. Route selection uses the declared MIME type
// and the filename extension first, then falls back to content sniffing.
type Dispatcher struct {
	pdf    *pdfExtractor
	vision interfaces.VisionService
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.EvidenceExtractor = (*Dispatcher)(nil)

// NewDispatcher creates an evidence extractor. The vision service is
// optional; without it image files yield no snippets and end up skipped.
func NewDispatcher(vision interfaces.VisionService, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		pdf:    newPDFExtractor(logger),
		vision: vision,
		logger: logger,
	}
}

// Extract produces evidence snippets for one document. Snippet IDs are
// assigned sequentially (s1, s2, ...) and are unique within the file.
// Empty sections are dropped; a fully empty result is not an error, the
// caller records the file as skipped.
func (d *Dispatcher) Extract(ctx context.Context, fileName, contentType string, data []byte) ([]models.Snippet, error) {
	kind := resolveKind(fileName, contentType, data)

	var (
		sections []section
		err      error
	)

	switch kind {
	case kindPDF:
		sections, err = d.pdf.extract(ctx, data)
	case kindDocx:
		sections, err = extractDocx(data)
	case kindSheet:
		sections, err = extractSheet(data)
	case kindImage:
		sections, err = d.extractImage(ctx, contentType, data)
	default:
		sections = extractPlainText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extraction failed for %s: %w", fileName, err)
	}

	snippets := make([]models.Snippet, 0, len(sections))
	for _, sec := range sections {
		text := strings.TrimSpace(sec.Text)
		if text == "" {
			continue
		}
		id := fmt.Sprintf("s%d", len(snippets)+1)
		snippets = append(snippets, models.NewSnippet(id, sec.Location, text))
	}

	d.logger.Debug().
		Str("file", fileName).
		Str("content_type", contentType).
		Int("snippets", len(snippets)).
		Msg("Extracted evidence")

	return snippets, nil
}

func (d *Dispatcher) extractImage(ctx context.Context, contentType string, data []byte) ([]section, error) {
	if d.vision == nil {
		return nil, nil
	}
	mime := contentType
	if !strings.HasPrefix(mime, "image/") {
		mime = mimetype.Detect(data).String()
	}
	text, err := d.vision.RecognizeText(ctx, data, mime)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	return []section{{Location: "image", Text: text}}, nil
}

// resolveKind picks the extraction route. Declared type and extension take
// precedence; unrecognized inputs are sniffed before defaulting to text.
func resolveKind(fileName, contentType string, data []byte) fileKind {
	ext := strings.ToLower(filepath.Ext(fileName))
	mime := strings.ToLower(contentType)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	if kind, ok := kindFromHints(mime, ext); ok {
		return kind
	}

	// Declared type told us nothing useful; trust the bytes.
	sniffed := mimetype.Detect(data)
	if kind, ok := kindFromHints(strings.ToLower(sniffed.String()), strings.ToLower(sniffed.Extension())); ok {
		return kind
	}

	return kindText
}

func kindFromHints(mime, ext string) (fileKind, bool) {
	switch {
	case mime == "application/pdf" || ext == ".pdf":
		return kindPDF, true
	case ext == ".docx" ||
		mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return kindDocx, true
	case ext == ".xlsx" || ext == ".xls" ||
		mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" ||
		mime == "application/vnd.ms-excel":
		return kindSheet, true
	case strings.HasPrefix(mime, "image/") ||
		ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".gif" || ext == ".webp":
		return kindImage, true
	case strings.HasPrefix(mime, "text/") || mime == "application/json":
		return kindText, true
	}
	return kindText, false
}
