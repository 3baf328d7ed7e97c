package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-importer/internal/domain"
)

// Backend names accepted by the store factory.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendBigQuery  = "bigquery"
)

// MaxBatchSize is the largest number of writes committed as one atomic unit
// by the batching backends.
const MaxBatchSize = 500

// ErrUnavailable marks read failures caused by an unreachable or
// uninitialized backend, as opposed to a genuinely empty result.
var ErrUnavailable = errors.New("storage backend unavailable")

// Store is the capability set every expense backend provides.
type Store interface {
	// SaveExpenses persists records under year. Per-record failures are
	// counted in Skipped and never abort the batch.
	SaveExpenses(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult

	// GetExpensesByYear returns the year's records ordered by date descending.
	// limit <= 0 means no limit.
	GetExpensesByYear(ctx context.Context, year string, limit int) ([]domain.PersistedExpense, error)

	// GetAllYears returns every year holding data, newest first.
	GetAllYears(ctx context.Context) ([]string, error)

	// GetYearStatistics aggregates one year partition.
	GetYearStatistics(ctx context.Context, year string) (domain.YearStats, error)

	// DeleteExpensesByYear removes the partition and all of its records.
	// Deleting an unknown year reports Deleted == 0 with status ok.
	DeleteExpensesByYear(ctx context.Context, year string) domain.DeleteResult

	// SearchExpenses applies every set criterion of f and orders by date descending.
	SearchExpenses(ctx context.Context, f domain.SearchFilter) ([]domain.PersistedExpense, error)

	// Close releases the backend client.
	Close() error
}

// UnavailableError wraps the backend failure behind ErrUnavailable.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) true.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable builds an UnavailableError for op.
func Unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
