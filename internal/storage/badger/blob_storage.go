package badger

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrBlobNotFound is returned when a storage path has no blob
var ErrBlobNotFound = fmt.Errorf("blob not found")

// ErrManifestNotFound is returned when a split placeholder has no
// recorded chunk manifest
var ErrManifestNotFound = fmt.Errorf("chunk manifest not found")

// blobRecord stores document bytes base64-encoded, keyed by storage path
type blobRecord struct {
	Path      string `badgerhold:"key"`
	Content   string // base64
	Size      int
	CreatedAt time.Time
}

// BlobStorage implements the BlobStorage interface on Badger. Content is
// addressed purely by storage path, mirroring a bucket keyed by object
// path.
type BlobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBlobStorage creates a new BlobStorage instance
func NewBlobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BlobStorage {
	return &BlobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BlobStorage) Upload(ctx context.Context, path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("blob path is required")
	}

	record := &blobRecord{
		Path:      path,
		Content:   base64.StdEncoding.EncodeToString(data),
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Store().Upsert(path, record); err != nil {
		return fmt.Errorf("failed to save blob %s: %w", path, err)
	}
	return nil
}

func (s *BlobStorage) Download(ctx context.Context, path string) ([]byte, error) {
	var record blobRecord
	if err := s.db.Store().Get(path, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, path)
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", path, err)
	}

	data, err := base64.StdEncoding.DecodeString(record.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob %s: %w", path, err)
	}
	return data, nil
}

func (s *BlobStorage) SaveManifest(ctx context.Context, manifest *models.ChunkManifest) error {
	if manifest.StoragePath == "" {
		return fmt.Errorf("manifest storage path is required")
	}

	if err := s.db.Store().Upsert("manifest:"+manifest.StoragePath, manifest); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

func (s *BlobStorage) GetManifest(ctx context.Context, storagePath string) (*models.ChunkManifest, error) {
	var manifest models.ChunkManifest
	if err := s.db.Store().Get("manifest:"+storagePath, &manifest); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, storagePath)
		}
		return nil, fmt.Errorf("failed to get manifest %s: %w", storagePath, err)
	}
	return &manifest, nil
}
