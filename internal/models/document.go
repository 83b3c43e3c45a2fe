// -----------------------------------------------------------------------
// Document Model - Source documents and chunked-upload manifests
// -----------------------------------------------------------------------

package models

import "time"

// Document is a source record in a document collection. The audit runner
// only reads these; upload and permissioning live in the surrounding
// product.
type Document struct {
	ID           string `json:"id" badgerhold:"key"`
	CollectionID string `json:"collection_id" badgerhold:"index"`
	Name         string `json:"name"`
	StoragePath  string `json:"storage_path"`
	ContentType  string `json:"content_type"`

	// IsChunked marks a split placeholder: the blob at StoragePath is not
	// the content itself, the ordered chunk blobs in the manifest are.
	IsChunked bool `json:"is_chunked"`

	UploadedAt time.Time `json:"uploaded_at"`
}

// ChunkManifest records the ordered chunk blobs of a file that was split
// at upload time. Reassembly is strict concatenation in recorded order.
type ChunkManifest struct {
	StoragePath string    `json:"storage_path" badgerhold:"key"`
	ChunkPaths  []string  `json:"chunk_paths"`
	CreatedAt   time.Time `json:"created_at"`
}
