package badger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/models"
)

func TestBlobRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewBlobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// Binary content with NULs must survive the base64 round trip intact
	payload := []byte("%PDF-1.7\x00\x01\x02 binary tail")
	if err := storage.Upload(ctx, "collections/col-1/doc-1.pdf", payload); err != nil {
		t.Fatalf("Failed to upload blob: %v", err)
	}

	data, err := storage.Download(ctx, "collections/col-1/doc-1.pdf")
	if err != nil {
		t.Fatalf("Failed to download blob: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Downloaded content differs: got %q", data)
	}
}

func TestBlobOverwrite(t *testing.T) {
	db := newTestDB(t)
	storage := NewBlobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	if err := storage.Upload(ctx, "doc-1", []byte("first")); err != nil {
		t.Fatalf("Failed to upload: %v", err)
	}
	if err := storage.Upload(ctx, "doc-1", []byte("second")); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}

	data, err := storage.Download(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Failed to download: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected second upload to win, got %q", data)
	}
}

func TestDownloadMissingBlob(t *testing.T) {
	db := newTestDB(t)
	storage := NewBlobStorage(db, arbor.NewLogger())

	_, err := storage.Download(context.Background(), "missing")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Expected ErrBlobNotFound, got %v", err)
	}
}

func TestUploadRequiresPath(t *testing.T) {
	db := newTestDB(t)
	storage := NewBlobStorage(db, arbor.NewLogger())

	if err := storage.Upload(context.Background(), "", []byte("data")); err == nil {
		t.Fatal("Expected error uploading without a path")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewBlobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	manifest := &models.ChunkManifest{
		StoragePath: "collections/col-1/doc-1.pdf",
		ChunkPaths: []string{
			"collections/col-1/doc-1.pdf.chunk0",
			"collections/col-1/doc-1.pdf.chunk1",
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := storage.SaveManifest(ctx, manifest); err != nil {
		t.Fatalf("Failed to save manifest: %v", err)
	}

	loaded, err := storage.GetManifest(ctx, "collections/col-1/doc-1.pdf")
	if err != nil {
		t.Fatalf("Failed to get manifest: %v", err)
	}
	if len(loaded.ChunkPaths) != 2 {
		t.Fatalf("Expected 2 chunk paths, got %d", len(loaded.ChunkPaths))
	}
	if loaded.ChunkPaths[0] != manifest.ChunkPaths[0] {
		t.Errorf("Chunk order not preserved: %v", loaded.ChunkPaths)
	}

	// A manifest key must never collide with a blob stored at the same path
	if err := storage.Upload(ctx, "collections/col-1/doc-1.pdf", []byte("placeholder")); err != nil {
		t.Fatalf("Failed to upload placeholder: %v", err)
	}
	reloaded, err := storage.GetManifest(ctx, "collections/col-1/doc-1.pdf")
	if err != nil {
		t.Fatalf("Manifest lost after blob upload: %v", err)
	}
	if len(reloaded.ChunkPaths) != 2 {
		t.Errorf("Manifest clobbered by blob at same path")
	}
}

func TestGetManifestNotFound(t *testing.T) {
	db := newTestDB(t)
	storage := NewBlobStorage(db, arbor.NewLogger())

	_, err := storage.GetManifest(context.Background(), "missing")
	if !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("Expected ErrManifestNotFound, got %v", err)
	}
}
