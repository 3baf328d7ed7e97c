package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/expense-importer/internal/gcs"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// UploadPrefix is the top-level folder of archived spreadsheets.
const UploadPrefix = "uploads"

const uploadTimeout = 2 * time.Minute

// GCSStorageService is the concrete implementation of gcs.StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct {
	client *storage.Client
	bucket string
	log    zerolog.Logger
	now    func() time.Time
}

var _ gcs.StorageService = (*GCSStorageService)(nil)

// NewGCSStorageService creates a client for bucket. It assumes Application
// Default Credentials unless opts say otherwise.
func NewGCSStorageService(ctx context.Context, bucket string, log zerolog.Logger, opts ...option.ClientOption) (*GCSStorageService, error) {
	if bucket == "" {
		return nil, errors.New("NewGCSStorageService: bucket is empty")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: create storage client: %w", err)
	}
	return &GCSStorageService{client: client, bucket: bucket, log: log, now: time.Now}, nil
}

// ObjectName returns uploads/{year}/{YYYYMMDD_HHMMSS}_{name} with the UTC
// timestamp of at. Directory parts of filename are dropped.
func ObjectName(year, filename string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("%s/%s/%s_%s", UploadPrefix, year, at.UTC().Format("20060102_150405"), name)
}

// ArchiveUpload writes data to the bucket and returns the gs:// URI.
func (s *GCSStorageService) ArchiveUpload(ctx context.Context, year, filename string, data []byte) (string, error) {
	objectName := ObjectName(year, filename, s.now())

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(filename)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ArchiveUpload: write object %s: %w", objectName, err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ArchiveUpload: finalize upload: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", s.bucket, objectName)
	s.log.Info().Str("uri", uri).Int("bytes", len(data)).Msg("archived upload")
	return uri, nil
}

// ListUploads returns the object names under uploads/{year}/.
func (s *GCSStorageService) ListUploads(ctx context.Context, year string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: fmt.Sprintf("%s/%s/", UploadPrefix, year)})

	names := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUploads: iterate objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// ExtractFilenameFromGCSURI delegates to the package-level helper.
func (s *GCSStorageService) ExtractFilenameFromGCSURI(uri string) string {
	return ExtractFilenameFromGCSURI(uri)
}

// Close releases the storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	}
	return "application/octet-stream"
}
