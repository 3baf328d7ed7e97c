package pipeline

import (
	"context"
)

// StorageService archives the original upload. It is the subset of
// gcs.StorageService the pipeline needs.
type StorageService interface {
	ArchiveUpload(ctx context.Context, year, filename string, data []byte) (string, error)
}
