// -----------------------------------------------------------------------
// Content Retriever - Fetches document bytes, reassembling split uploads
// -----------------------------------------------------------------------

package content

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// Retriever resolves an audit file to its raw bytes. Large files are
// split into chunk blobs at upload time; for those the placeholder's
// manifest lists the chunks, and the content is their ordered
// concatenation with no gaps or reordering.
type Retriever struct {
	blobs  interfaces.BlobStorage
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ContentRetriever = (*Retriever)(nil)

// NewRetriever creates a new content retriever
func NewRetriever(blobs interfaces.BlobStorage, logger arbor.ILogger) *Retriever {
	return &Retriever{
		blobs:  blobs,
		logger: logger,
	}
}

// Resolve returns the document's bytes. A missing chunk manifest or a
// missing chunk blob is a hard failure for this file only; the caller
// records it and moves on.
func (r *Retriever) Resolve(ctx context.Context, file *models.AuditFile) ([]byte, error) {
	if file.StoragePath == "" {
		return nil, fmt.Errorf("file %s has no storage path", file.ID)
	}

	if !file.IsChunked {
		data, err := r.blobs.Download(ctx, file.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", file.StoragePath, err)
		}
		return data, nil
	}

	return r.reassemble(ctx, file)
}

func (r *Retriever) reassemble(ctx context.Context, file *models.AuditFile) ([]byte, error) {
	manifest, err := r.blobs.GetManifest(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("split file %s has no usable chunk manifest: %w", file.FileName, err)
	}
	if len(manifest.ChunkPaths) == 0 {
		return nil, fmt.Errorf("split file %s has an empty chunk manifest", file.FileName)
	}

	var buf bytes.Buffer
	for i, chunkPath := range manifest.ChunkPaths {
		chunk, err := r.blobs.Download(ctx, chunkPath)
		if err != nil {
			return nil, fmt.Errorf("failed to download chunk %d/%d of %s: %w",
				i+1, len(manifest.ChunkPaths), file.FileName, err)
		}
		buf.Write(chunk)
	}

	r.logger.Debug().
		Str("file", file.FileName).
		Int("chunks", len(manifest.ChunkPaths)).
		Int("bytes", buf.Len()).
		Msg("Reassembled split upload")

	return buf.Bytes(), nil
}
