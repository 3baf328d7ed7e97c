package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// EnsureTableWithClient creates the expenses table when it does not exist yet.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, t Table) error {
	table := client.DatasetInProject(t.ProjectID, t.DatasetID).Table(t.TableID)
	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(ExpenseRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: infer schema: %w", err)
	}
	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("EnsureTable: create: %w", err)
	}
	return nil
}

// InsertExpensesWithClient streams records into the table. Invalid rows are
// skipped by the service and counted individually; any other Put error ends
// the save with the earlier chunks still inserted.
func InsertExpensesWithClient(ctx context.Context, client *bigquery.Client, t Table, year string, records []domain.Expense, sourceFile string, stamper *storage.Stamper) domain.ImportResult {
	var tally storage.ImportTally

	type pending struct {
		index int
		saver *bigquery.StructSaver
	}
	valid := make([]pending, 0, len(records))
	for i, e := range records {
		if err := storage.ValidateExpense(e); err != nil {
			tally.Fail(i, err)
			continue
		}
		raw, err := json.Marshal(e)
		if err != nil {
			tally.Fail(i, err)
			continue
		}
		row := &ExpenseRow{
			ID:          uuid.NewString(),
			Year:        year,
			Date:        e.Date,
			Category:    e.Category,
			Description: e.Description,
			Amount:      e.Amount,
			SourceFile:  sourceFile,
			ImportedAt:  stamper.Next(),
			RawData:     string(raw),
		}
		valid = append(valid, pending{index: i, saver: &bigquery.StructSaver{Struct: row, InsertID: row.ID}})
	}

	inserter := client.DatasetInProject(t.ProjectID, t.DatasetID).Table(t.TableID).Inserter()
	inserter.SkipInvalidRows = true

	for start := 0; start < len(valid); start += storage.MaxBatchSize {
		end := start + storage.MaxBatchSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]
		savers := make([]*bigquery.StructSaver, len(chunk))
		for i, p := range chunk {
			savers[i] = p.saver
		}

		err := inserter.Put(ctx, savers)
		if err == nil {
			tally.Imported += len(chunk)
			continue
		}
		var multi bigquery.PutMultiError
		if !errors.As(err, &multi) {
			return tally.Fatal(len(records), fmt.Errorf("InsertExpenses: inserting rows: %w", err))
		}
		failed := map[int]bool{}
		for _, rowErr := range multi {
			if failed[rowErr.RowIndex] || rowErr.RowIndex < 0 || rowErr.RowIndex >= len(chunk) {
				continue
			}
			failed[rowErr.RowIndex] = true
			tally.Fail(chunk[rowErr.RowIndex].index, rowErr.Errors)
		}
		tally.Imported += len(chunk) - len(failed)
	}

	return tally.Result()
}

func readExpenses(ctx context.Context, q *bigquery.Query) ([]domain.PersistedExpense, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	out := []domain.PersistedExpense{}
	for {
		var r ExpenseRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		out = append(out, r.persisted())
	}
	return out, nil
}

// GetExpensesByYearWithClient returns the year's rows, newest date first.
func GetExpensesByYearWithClient(ctx context.Context, client *bigquery.Client, t Table, year string, limit int) ([]domain.PersistedExpense, error) {
	sql, params := byYearQuery(t, year, limit)
	q := client.Query(sql)
	q.Parameters = params

	out, err := readExpenses(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetExpensesByYear: %w", err)
	}
	return out, nil
}

// SearchExpensesWithClient runs the parameterized search.
func SearchExpensesWithClient(ctx context.Context, client *bigquery.Client, t Table, f domain.SearchFilter) ([]domain.PersistedExpense, error) {
	sql, params := searchQuery(t, f)
	q := client.Query(sql)
	q.Parameters = params

	out, err := readExpenses(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SearchExpenses: %w", err)
	}
	return out, nil
}

// ListYearsWithClient returns the distinct years, newest first.
func ListYearsWithClient(ctx context.Context, client *bigquery.Client, t Table) ([]string, error) {
	it, err := client.Query(yearsQuery(t)).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListYears: query read: %w", err)
	}

	years := []string{}
	for {
		var row struct {
			Year string `bigquery:"year"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListYears: iter next: %w", err)
		}
		years = append(years, row.Year)
	}
	return years, nil
}

type groupRow struct {
	Key   string  `bigquery:"key"`
	N     int64   `bigquery:"n"`
	Total float64 `bigquery:"total"`
}

func readGroups(ctx context.Context, q *bigquery.Query) ([]groupRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}
	var rows []groupRow
	for {
		var g groupRow
		err := it.Next(&g)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, g)
	}
	return rows, nil
}

// YearStatisticsWithClient aggregates one year server side.
func YearStatisticsWithClient(ctx context.Context, client *bigquery.Client, t Table, year string) (domain.YearStats, error) {
	stats := domain.EmptyYearStats(year)
	yearParam := bigquery.QueryParameter{Name: "year", Value: year}

	q := client.Query(totalsQuery(t))
	q.Parameters = []bigquery.QueryParameter{yearParam}
	totals, err := readGroups(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("YearStatistics: totals: %w", err)
	}
	if len(totals) == 0 || totals[0].N == 0 {
		return stats, nil
	}
	stats.TotalExpenses = int(totals[0].N)
	stats.TotalAmount = totals[0].Total

	q = client.Query(byCategoryQuery(t))
	q.Parameters = []bigquery.QueryParameter{yearParam, {Name: "uncategorized", Value: domain.UncategorizedLabel}}
	cats, err := readGroups(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("YearStatistics: by category: %w", err)
	}
	for _, g := range cats {
		stats.ByCategory = append(stats.ByCategory, domain.CategoryTotal{Category: g.Key, Count: int(g.N), Total: g.Total})
	}

	q = client.Query(byMonthQuery(t))
	q.Parameters = []bigquery.QueryParameter{yearParam}
	months, err := readGroups(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("YearStatistics: by month: %w", err)
	}
	for _, g := range months {
		stats.ByMonth = append(stats.ByMonth, domain.MonthTotal{Month: g.Key, Count: int(g.N), Total: g.Total})
	}
	return stats, nil
}
