package firestore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/dvloznov/expense-importer/internal/storage/storagetest"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBatchSpans(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		reserved int
		want     []span
	}{
		{"empty", 0, 1, nil},
		{"fits in first batch", 10, 1, []span{{0, 10}}},
		{"first batch leaves room for marker", 500, 1, []span{{0, 499}, {499, 500}}},
		{"many batches", 1200, 1, []span{{0, 499}, {499, 999}, {999, 1200}}},
		{"no reservation", 1000, 0, []span{{0, 500}, {500, 1000}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := batchSpans(tt.n, storage.MaxBatchSize, tt.reserved)
			require.Equal(t, tt.want, got)
			for i, s := range got {
				writes := s.end - s.start
				if i == 0 {
					writes += tt.reserved
				}
				require.LessOrEqual(t, writes, storage.MaxBatchSize)
			}
		})
	}
}

func TestExpenseRepository_WithoutClient(t *testing.T) {
	ctx := context.Background()
	repo := NewExpenseRepositoryWithClient(nil, "", zerolog.Nop())

	res := repo.SaveExpenses(ctx, "2023", []domain.Expense{{Date: "2023-01-01", Amount: 1}}, "a.xlsx")
	require.Equal(t, domain.StatusError, res.Status)
	require.Equal(t, 0, res.Imported)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, "firestore client not initialized", res.Message)

	got, err := repo.GetExpensesByYear(ctx, "2023", 10)
	require.True(t, errors.Is(err, storage.ErrUnavailable))
	require.Empty(t, got)

	years, err := repo.GetAllYears(ctx)
	require.True(t, errors.Is(err, storage.ErrUnavailable))
	require.Empty(t, years)

	stats, err := repo.GetYearStatistics(ctx, "2023")
	require.True(t, errors.Is(err, storage.ErrUnavailable))
	require.Equal(t, domain.EmptyYearStats("2023"), stats)

	found, err := repo.SearchExpenses(ctx, domain.SearchFilter{})
	require.True(t, errors.Is(err, storage.ErrUnavailable))
	require.Empty(t, found)

	del := repo.DeleteExpensesByYear(ctx, "2023")
	require.Equal(t, domain.StatusError, del.Status)

	require.NoError(t, repo.Close())
}

func TestExpenseRepository_DefaultCollection(t *testing.T) {
	repo := NewExpenseRepositoryWithClient(nil, "", zerolog.Nop())
	require.Equal(t, DefaultCollection, repo.collection)
}

// The contract suite needs a running emulator:
//
//	gcloud emulators firestore start --host-port=localhost:8080
//	FIRESTORE_EMULATOR_HOST=localhost:8080 go test ./internal/infra/firestore/...
func TestExpenseRepository_Contract(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	storagetest.RunContract(t, func(t *testing.T) storage.Store {
		collection := "expenses_" + uuid.NewString()
		repo, err := NewExpenseRepository(context.Background(), "expense-importer-test", collection, zerolog.Nop())
		require.NoError(t, err)
		return repo
	})
}

func TestExpenseRepository_SaveSpansBatches(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	repo, err := NewExpenseRepository(ctx, "expense-importer-test", "expenses_"+uuid.NewString(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	records := make([]domain.Expense, 1100)
	for i := range records {
		records[i] = domain.Expense{Date: "2023-05-01", Category: "Bulk", Description: "row", Amount: float64(i)}
	}

	res := repo.SaveExpenses(ctx, "2023", records, "bulk.xlsx")
	require.Equal(t, 1100, res.Imported)
	require.Equal(t, 0, res.Skipped)

	del := repo.DeleteExpensesByYear(ctx, "2023")
	require.Equal(t, 1100, del.Deleted)

	years, err := repo.GetAllYears(ctx)
	require.NoError(t, err)
	require.Empty(t, years)
}
