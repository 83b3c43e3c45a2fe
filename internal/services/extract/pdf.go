// -----------------------------------------------------------------------
// PDF Extraction - Per-page text layer extraction via pdfcpu
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// pdfExtractor pulls the text layer out of a PDF, one section per page.
// pdfcpu works on files, so the document bytes go through a temp dir.
type pdfExtractor struct {
	logger  arbor.ILogger
	tempDir string
}

func newPDFExtractor(logger arbor.ILogger) *pdfExtractor {
	return &pdfExtractor{
		logger:  logger,
		tempDir: filepath.Join(os.TempDir(), "indago-pdf"),
	}
}

func (e *pdfExtractor) extract(ctx context.Context, data []byte) ([]section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", e.tempDir, err)
	}

	// Unique names so concurrent batches cannot trample each other
	token := uuid.New().String()
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("doc_%s.pdf", token))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s", token))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create page output dir %s: %w", outDir, err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Msg("PDF content extraction failed, no text layer available")
		return nil, nil
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	sections := make([]section, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		sections = append(sections, section{
			Location: fmt.Sprintf("page %d", pageNum),
			Text:     pageTexts[pageNum],
		})
	}

	return sections, nil
}
