package gcs

import (
	"context"
)

// StorageService archives original uploads in a cloud bucket.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// ArchiveUpload stores data under uploads/{year}/ and returns its gs:// URI.
	ArchiveUpload(ctx context.Context, year, filename string, data []byte) (string, error)

	// ListUploads returns the object names archived for year.
	ListUploads(ctx context.Context, year string) ([]string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// ExtractFilenameFromGCSURI extracts the filename from a storage URI.
	ExtractFilenameFromGCSURI(uri string) string

	Close() error
}
