package storagetest

import (
	"context"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
)

// MockStore is a mock implementation of storage.Store. Unset funcs return
// empty successful results.
type MockStore struct {
	SaveExpensesFunc         func(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult
	GetExpensesByYearFunc    func(ctx context.Context, year string, limit int) ([]domain.PersistedExpense, error)
	GetAllYearsFunc          func(ctx context.Context) ([]string, error)
	GetYearStatisticsFunc    func(ctx context.Context, year string) (domain.YearStats, error)
	DeleteExpensesByYearFunc func(ctx context.Context, year string) domain.DeleteResult
	SearchExpensesFunc       func(ctx context.Context, f domain.SearchFilter) ([]domain.PersistedExpense, error)
	CloseFunc                func() error
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) SaveExpenses(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
	if m.SaveExpensesFunc != nil {
		return m.SaveExpensesFunc(ctx, year, records, sourceFile)
	}
	return domain.ImportResult{Imported: len(records), Status: domain.StatusOK, Errors: []string{}}
}

func (m *MockStore) GetExpensesByYear(ctx context.Context, year string, limit int) ([]domain.PersistedExpense, error) {
	if m.GetExpensesByYearFunc != nil {
		return m.GetExpensesByYearFunc(ctx, year, limit)
	}
	return []domain.PersistedExpense{}, nil
}

func (m *MockStore) GetAllYears(ctx context.Context) ([]string, error) {
	if m.GetAllYearsFunc != nil {
		return m.GetAllYearsFunc(ctx)
	}
	return []string{}, nil
}

func (m *MockStore) GetYearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	if m.GetYearStatisticsFunc != nil {
		return m.GetYearStatisticsFunc(ctx, year)
	}
	return domain.EmptyYearStats(year), nil
}

func (m *MockStore) DeleteExpensesByYear(ctx context.Context, year string) domain.DeleteResult {
	if m.DeleteExpensesByYearFunc != nil {
		return m.DeleteExpensesByYearFunc(ctx, year)
	}
	return domain.DeleteResult{Status: domain.StatusOK}
}

func (m *MockStore) SearchExpenses(ctx context.Context, f domain.SearchFilter) ([]domain.PersistedExpense, error) {
	if m.SearchExpensesFunc != nil {
		return m.SearchExpensesFunc(ctx, f)
	}
	return []domain.PersistedExpense{}, nil
}

func (m *MockStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
