// Package bigquery is the warehouse expense store: one table with the
// relational column set, written through the streaming inserter.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	DefaultDataset = "expenses"
	DefaultTable   = "expenses"
)

// ExpenseRow is one row of the expenses table.
type ExpenseRow struct {
	ID          string    `bigquery:"id"`          // REQUIRED
	Year        string    `bigquery:"year"`        // REQUIRED
	Date        string    `bigquery:"date"`        // REQUIRED, YYYY-MM-DD
	Category    string    `bigquery:"category"`    // NULLABLE
	Description string    `bigquery:"description"` // NULLABLE
	Amount      float64   `bigquery:"amount"`      // REQUIRED FLOAT64
	SourceFile  string    `bigquery:"source_file"` // REQUIRED
	ImportedAt  time.Time `bigquery:"imported_at"` // REQUIRED TIMESTAMP
	RawData     string    `bigquery:"raw_data"`    // JSON of the normalized record
}

func (r ExpenseRow) persisted() domain.PersistedExpense {
	return domain.PersistedExpense{
		ID:   r.ID,
		Year: r.Year,
		Expense: domain.Expense{
			Date:        r.Date,
			Category:    r.Category,
			Description: r.Description,
			Amount:      r.Amount,
		},
		SourceFile: r.SourceFile,
		ImportedAt: r.ImportedAt,
	}
}

// Table identifies the expenses table.
type Table struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// ref is the fully qualified, backquoted name for standard SQL.
func (t Table) ref() string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, t.TableID)
}

// ExpenseRepository is the BigQuery storage.Store. It holds a shared client
// to avoid creating a new connection for each operation.
type ExpenseRepository struct {
	client  *bigquery.Client
	table   Table
	log     zerolog.Logger
	stamper *storage.Stamper
}

var _ storage.Store = (*ExpenseRepository)(nil)

// NewExpenseRepository creates a client for table.ProjectID and makes sure
// the table exists.
func NewExpenseRepository(ctx context.Context, table Table, log zerolog.Logger, opts ...option.ClientOption) (*ExpenseRepository, error) {
	if table.DatasetID == "" {
		table.DatasetID = DefaultDataset
	}
	if table.TableID == "" {
		table.TableID = DefaultTable
	}

	client, err := bigquery.NewClient(ctx, table.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExpenseRepository: creating client: %w", err)
	}
	if err := EnsureTableWithClient(ctx, client, table); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewExpenseRepository: %w", err)
	}

	return &ExpenseRepository{
		client:  client,
		table:   table,
		log:     log.With().Str("backend", storage.BackendBigQuery).Str("table", table.TableID).Logger(),
		stamper: storage.NewStamper(nil),
	}, nil
}

// Close closes the BigQuery client connection.
func (r *ExpenseRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// SaveExpenses streams the records in chunks of storage.MaxBatchSize.
func (r *ExpenseRepository) SaveExpenses(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
	res := InsertExpensesWithClient(ctx, r.client, r.table, year, records, sourceFile, r.stamper)
	ev := r.log.Info()
	if res.Status != domain.StatusOK {
		ev = r.log.Warn().Str("message", res.Message)
	}
	ev.Str("year", year).Int("imported", res.Imported).Int("skipped", res.Skipped).Msg("saved expenses")
	return res
}

// GetExpensesByYear delegates to GetExpensesByYearWithClient.
func (r *ExpenseRepository) GetExpensesByYear(ctx context.Context, year string, limit int) ([]domain.PersistedExpense, error) {
	out, err := GetExpensesByYearWithClient(ctx, r.client, r.table, year, limit)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("get expenses failed")
		return []domain.PersistedExpense{}, storage.Unavailable("GetExpensesByYear", err)
	}
	return out, nil
}

// GetAllYears delegates to ListYearsWithClient.
func (r *ExpenseRepository) GetAllYears(ctx context.Context) ([]string, error) {
	years, err := ListYearsWithClient(ctx, r.client, r.table)
	if err != nil {
		r.log.Error().Err(err).Msg("list years failed")
		return []string{}, storage.Unavailable("GetAllYears", err)
	}
	return years, nil
}

// GetYearStatistics delegates to YearStatisticsWithClient.
func (r *ExpenseRepository) GetYearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	stats, err := YearStatisticsWithClient(ctx, r.client, r.table, year)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("statistics failed")
		return domain.EmptyYearStats(year), storage.Unavailable("GetYearStatistics", err)
	}
	return stats, nil
}

// DeleteExpensesByYear delegates to DeleteYearWithClient.
func (r *ExpenseRepository) DeleteExpensesByYear(ctx context.Context, year string) domain.DeleteResult {
	n, err := DeleteYearWithClient(ctx, r.client, r.table, year)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("delete failed")
		return domain.DeleteResult{Status: domain.StatusError, Message: err.Error()}
	}
	return domain.DeleteResult{
		Status:  domain.StatusOK,
		Deleted: n,
		Message: fmt.Sprintf("Deleted %d expenses from %s", n, year),
	}
}

// SearchExpenses delegates to SearchExpensesWithClient.
func (r *ExpenseRepository) SearchExpenses(ctx context.Context, f domain.SearchFilter) ([]domain.PersistedExpense, error) {
	out, err := SearchExpensesWithClient(ctx, r.client, r.table, f)
	if err != nil {
		r.log.Error().Err(err).Msg("search failed")
		return []domain.PersistedExpense{}, storage.Unavailable("SearchExpenses", err)
	}
	return out, nil
}
