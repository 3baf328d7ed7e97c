// Package pipeline turns an uploaded spreadsheet into stored expenses.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/normalize"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
)

// Upload is one spreadsheet submitted for a year.
type Upload struct {
	Filename string
	Year     string
	Data     []byte
}

// PreviewResult is the normalized head of an upload, nothing saved.
type PreviewResult struct {
	Status      string           `json:"status"`
	TotalRows   int              `json:"total_rows"`
	PreviewRows int              `json:"preview_rows"`
	Data        []domain.Expense `json:"data"`
	Filename    string           `json:"filename"`
}

// Importer runs the import and preview pipelines against one Store.
type Importer struct {
	store          storage.Store
	normalizer     normalize.Normalizer
	archive        StorageService
	log            zerolog.Logger
	maxUploadBytes int64
}

// NewImporter creates an Importer. archive may be nil to skip archiving;
// maxUploadBytes <= 0 uses DefaultMaxUploadBytes.
func NewImporter(store storage.Store, n normalize.Normalizer, archive StorageService, maxUploadBytes int64, log zerolog.Logger) *Importer {
	if n == nil {
		n = normalize.HeuristicNormalizer{}
	}
	return &Importer{
		store:          store,
		normalizer:     n,
		archive:        archive,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// Import decodes, normalizes, saves and archives u. Errors matching
// ErrInvalidInput come from the upload itself.
func (im *Importer) Import(ctx context.Context, u Upload) (domain.ImportResult, error) {
	if err := ValidateUpload(u, im.maxUploadBytes); err != nil {
		return domain.ImportResult{}, err
	}

	state := &PipelineState{Upload: u}
	p := NewPipeline(
		&DecodeStep{},
		&NormalizeStep{Normalizer: im.normalizer},
		&SaveStep{Store: im.store},
		&ArchiveStep{Storage: im.archive, Log: im.log},
	)
	if err := p.Execute(ctx, state); err != nil {
		return domain.ImportResult{}, fmt.Errorf("Import: %w", err)
	}

	im.log.Info().
		Str("filename", u.Filename).
		Str("year", u.Year).
		Int("rows", state.TotalRows).
		Int("imported", state.Result.Imported).
		Int("skipped", state.Result.Skipped).
		Str("status", state.Result.Status).
		Msg("import finished")
	return state.Result, nil
}

// Preview normalizes the first PreviewRows rows of u without saving.
func (im *Importer) Preview(ctx context.Context, u Upload) (PreviewResult, error) {
	if err := ValidateUpload(u, im.maxUploadBytes); err != nil {
		return PreviewResult{}, err
	}

	state := &PipelineState{Upload: u}
	p := NewPipeline(
		&DecodeStep{RowLimit: PreviewRows},
		&NormalizeStep{Normalizer: im.normalizer},
	)
	if err := p.Execute(ctx, state); err != nil {
		return PreviewResult{}, fmt.Errorf("Preview: %w", err)
	}

	return PreviewResult{
		Status:      domain.StatusOK,
		TotalRows:   state.TotalRows,
		PreviewRows: len(state.Expenses),
		Data:        state.Expenses,
		Filename:    u.Filename,
	}, nil
}
