package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/normalize"
	"github.com/dvloznov/expense-importer/internal/spreadsheet"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
)

// PipelineStep represents a single step in the import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Upload    Upload
	TotalRows int
	Rows      []domain.RawRow
	Expenses  []domain.Expense
	Result    domain.ImportResult
}

// Step 1: DecodeStep reads the spreadsheet into raw rows. RowLimit > 0
// keeps only the first RowLimit rows; TotalRows always counts all of them.
type DecodeStep struct {
	RowLimit int
}

func (s *DecodeStep) Execute(ctx context.Context, state *PipelineState) error {
	rows, err := spreadsheet.Decode(bytes.NewReader(state.Upload.Data))
	if err != nil {
		return &InputError{Detail: "Failed to parse Excel file", Err: err}
	}
	if len(rows) == 0 {
		return invalid("Excel file is empty")
	}
	state.TotalRows = len(rows)
	if s.RowLimit > 0 && len(rows) > s.RowLimit {
		rows = rows[:s.RowLimit]
	}
	state.Rows = rows
	return nil
}

// Step 2: NormalizeStep maps raw rows to canonical expenses.
type NormalizeStep struct {
	Normalizer normalize.Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	expenses := s.Normalizer.Normalize(ctx, state.Rows, state.Upload.Year)
	if len(expenses) == 0 {
		return errors.New("NormalizeStep: normalization returned no data")
	}
	state.Expenses = expenses
	return nil
}

// Step 3: SaveStep persists the expenses under the upload year.
type SaveStep struct {
	Store storage.Store
}

func (s *SaveStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Result = s.Store.SaveExpenses(ctx, state.Upload.Year, state.Expenses, state.Upload.Filename)
	return nil
}

// Step 4: ArchiveStep copies the original upload to blob storage. Failures
// are logged and never fail the import.
type ArchiveStep struct {
	Storage StorageService
	Log     zerolog.Logger
}

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Storage == nil {
		return nil
	}
	uri, err := s.Storage.ArchiveUpload(ctx, state.Upload.Year, state.Upload.Filename, state.Upload.Data)
	if err != nil {
		s.Log.Warn().Err(err).Str("filename", state.Upload.Filename).Msg("archive upload failed")
		return nil
	}
	state.Result.StorageURL = uri
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
