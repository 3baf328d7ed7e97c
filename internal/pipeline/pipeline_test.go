package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/normalize"
	"github.com/dvloznov/expense-importer/internal/pipeline"
	"github.com/dvloznov/expense-importer/internal/spreadsheet/spreadsheettest"
	"github.com/dvloznov/expense-importer/internal/storage/storagetest"
	"github.com/rs/zerolog"
)

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	ArchiveUploadFunc func(ctx context.Context, year, filename string, data []byte) (string, error)
	calls             int
}

func (m *MockStorageService) ArchiveUpload(ctx context.Context, year, filename string, data []byte) (string, error) {
	m.calls++
	if m.ArchiveUploadFunc != nil {
		return m.ArchiveUploadFunc(ctx, year, filename, data)
	}
	return fmt.Sprintf("gs://mock-bucket/uploads/%s/20230105_101500_%s", year, filename), nil
}

// MockNormalizer is a mock implementation of normalize.Normalizer for testing.
type MockNormalizer struct {
	NormalizeFunc func(ctx context.Context, rows []domain.RawRow, year string) []domain.Expense
}

func (m *MockNormalizer) Normalize(ctx context.Context, rows []domain.RawRow, year string) []domain.Expense {
	if m.NormalizeFunc != nil {
		return m.NormalizeFunc(ctx, rows, year)
	}
	return normalize.Heuristic(rows, year)
}

var header = []string{"Date", "Category", "Description", "Amount"}

func januaryWorkbook(t *testing.T, n int) []byte {
	rows := make([][]interface{}, n)
	for i := range rows {
		rows[i] = []interface{}{fmt.Sprintf("2023-01-%02d", i+1), "Food", fmt.Sprintf("Meal %d", i+1), float64(i + 1)}
	}
	return spreadsheettest.Workbook(t, header, rows...)
}

func TestImporter_Import(t *testing.T) {
	var saved []domain.Expense
	var savedYear, savedFile string
	store := &storagetest.MockStore{
		SaveExpensesFunc: func(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
			saved, savedYear, savedFile = records, year, sourceFile
			return domain.ImportResult{Imported: len(records), Status: domain.StatusOK, Errors: []string{}}
		},
	}
	archive := &MockStorageService{}

	im := pipeline.NewImporter(store, &MockNormalizer{}, archive, 0, zerolog.Nop())
	result, err := im.Import(context.Background(), pipeline.Upload{
		Filename: "jan.xlsx",
		Year:     "2023",
		Data:     januaryWorkbook(t, 3),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.Imported != 3 || result.Status != domain.StatusOK {
		t.Errorf("unexpected result %+v", result)
	}
	if result.StorageURL != "gs://mock-bucket/uploads/2023/20230105_101500_jan.xlsx" {
		t.Errorf("storage url = %q", result.StorageURL)
	}
	if savedYear != "2023" || savedFile != "jan.xlsx" {
		t.Errorf("saved under %q from %q", savedYear, savedFile)
	}
	want := domain.Expense{Date: "2023-01-02", Category: "Food", Description: "Meal 2", Amount: 2}
	if len(saved) != 3 || saved[1] != want {
		t.Errorf("saved = %+v", saved)
	}
	if archive.calls != 1 {
		t.Errorf("expected one archive call, got %d", archive.calls)
	}
}

func TestImporter_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := &MockStorageService{ArchiveUploadFunc: func(ctx context.Context, year, filename string, data []byte) (string, error) {
		return "", errors.New("bucket missing")
	}}

	im := pipeline.NewImporter(&storagetest.MockStore{}, nil, archive, 0, zerolog.Nop())
	result, err := im.Import(context.Background(), pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: januaryWorkbook(t, 2)})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 2 || result.StorageURL != "" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestImporter_NoArchive(t *testing.T) {
	im := pipeline.NewImporter(&storagetest.MockStore{}, nil, nil, 0, zerolog.Nop())
	result, err := im.Import(context.Background(), pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: januaryWorkbook(t, 1)})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.StorageURL != "" {
		t.Errorf("expected no storage url, got %q", result.StorageURL)
	}
}

func TestImporter_SaveErrorIsReturnedAsResult(t *testing.T) {
	store := &storagetest.MockStore{
		SaveExpensesFunc: func(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
			return domain.ImportResult{Skipped: len(records), Status: domain.StatusError, Errors: []string{}, Message: "backend down"}
		},
	}

	im := pipeline.NewImporter(store, nil, nil, 0, zerolog.Nop())
	result, err := im.Import(context.Background(), pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: januaryWorkbook(t, 2)})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Status != domain.StatusError || result.Skipped != 2 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestImporter_InvalidInput(t *testing.T) {
	store := &storagetest.MockStore{
		SaveExpensesFunc: func(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
			t.Fatal("nothing should be saved")
			return domain.ImportResult{}
		},
	}
	im := pipeline.NewImporter(store, nil, nil, 1<<20, zerolog.Nop())

	tests := []struct {
		name    string
		upload  pipeline.Upload
		wantMsg string
	}{
		{"bad extension", pipeline.Upload{Filename: "jan.csv", Year: "2023", Data: januaryWorkbook(t, 1)}, "Invalid file type"},
		{"bad year", pipeline.Upload{Filename: "jan.xlsx", Year: "23", Data: januaryWorkbook(t, 1)}, "Year must be a 4-digit number"},
		{"too large", pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: make([]byte, 1<<20+1)}, "File too large"},
		{"not a workbook", pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: []byte("date,amount")}, "Failed to parse Excel file"},
		{"header only", pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: spreadsheettest.Workbook(t, header)}, "Excel file is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Import(context.Background(), tt.upload)
			if !errors.Is(err, pipeline.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			var ie *pipeline.InputError
			if !errors.As(err, &ie) || !strings.Contains(ie.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestImporter_EmptyNormalizationFails(t *testing.T) {
	n := &MockNormalizer{NormalizeFunc: func(ctx context.Context, rows []domain.RawRow, year string) []domain.Expense {
		return []domain.Expense{}
	}}

	im := pipeline.NewImporter(&storagetest.MockStore{}, n, nil, 0, zerolog.Nop())
	_, err := im.Import(context.Background(), pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: januaryWorkbook(t, 1)})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, pipeline.ErrInvalidInput) {
		t.Error("empty normalization is not an input error")
	}
}

func TestImporter_Preview(t *testing.T) {
	var normalized int
	n := &MockNormalizer{NormalizeFunc: func(ctx context.Context, rows []domain.RawRow, year string) []domain.Expense {
		normalized = len(rows)
		return normalize.Heuristic(rows, year)
	}}
	store := &storagetest.MockStore{
		SaveExpensesFunc: func(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
			t.Fatal("preview must not save")
			return domain.ImportResult{}
		},
	}
	archive := &MockStorageService{}

	im := pipeline.NewImporter(store, n, archive, 0, zerolog.Nop())
	got, err := im.Preview(context.Background(), pipeline.Upload{Filename: "jan.xlsx", Year: "2023", Data: januaryWorkbook(t, 15)})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	if got.Status != domain.StatusOK || got.TotalRows != 15 || got.PreviewRows != pipeline.PreviewRows {
		t.Errorf("unexpected preview %+v", got)
	}
	if normalized != pipeline.PreviewRows || len(got.Data) != pipeline.PreviewRows {
		t.Errorf("normalized %d rows, returned %d", normalized, len(got.Data))
	}
	if got.Filename != "jan.xlsx" || got.Data[0].Description != "Meal 1" {
		t.Errorf("unexpected preview data %+v", got)
	}
	if archive.calls != 0 {
		t.Error("preview must not archive")
	}
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	var ran []int
	step := func(i int, err error) pipeline.PipelineStep {
		return stepFunc(func(ctx context.Context, s *pipeline.PipelineState) error {
			ran = append(ran, i)
			return err
		})
	}

	p := pipeline.NewPipeline(step(1, nil), step(2, errors.New("boom")), step(3, nil))
	err := p.Execute(context.Background(), &pipeline.PipelineState{})

	if err == nil || !strings.Contains(err.Error(), "pipeline step 2 failed") {
		t.Errorf("unexpected error %v", err)
	}
	if len(ran) != 2 {
		t.Errorf("ran steps %v", ran)
	}
}

type stepFunc func(ctx context.Context, s *pipeline.PipelineState) error

func (f stepFunc) Execute(ctx context.Context, s *pipeline.PipelineState) error { return f(ctx, s) }
