package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
)

const selectColumns = `id, year, date, category, description, amount, source_file, imported_at`

// ExpenseRepository is the relational storage.Store. It holds one
// long-lived pool limited to a single connection.
type ExpenseRepository struct {
	db      *sql.DB
	log     zerolog.Logger
	stamper *storage.Stamper
}

var _ storage.Store = (*ExpenseRepository)(nil)

// NewExpenseRepository opens the database at path and migrates its schema.
func NewExpenseRepository(path string, log zerolog.Logger) (*ExpenseRepository, error) {
	if err := RunMigrations(path); err != nil {
		return nil, fmt.Errorf("NewExpenseRepository: %w", err)
	}
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("NewExpenseRepository: %w", err)
	}
	return &ExpenseRepository{
		db:      db,
		log:     log.With().Str("backend", storage.BackendSQLite).Logger(),
		stamper: storage.NewStamper(nil),
	}, nil
}

// Close closes the connection pool.
func (r *ExpenseRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveExpenses inserts all records in one transaction. A failed insert only
// skips its record; a failed begin or commit rolls back the whole batch.
func (r *ExpenseRepository) SaveExpenses(ctx context.Context, year string, records []domain.Expense, sourceFile string) domain.ImportResult {
	var tally storage.ImportTally

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO expenses (year, date, category, description, amount, source_file, imported_at, raw_data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range records {
			if err := storage.ValidateExpense(e); err != nil {
				r.log.Warn().Err(err).Int("index", i).Msg("skipping invalid expense")
				tally.Fail(i, err)
				continue
			}
			raw, err := json.Marshal(e)
			if err != nil {
				tally.Fail(i, err)
				continue
			}
			importedAt := r.stamper.Next().Format(time.RFC3339Nano)
			if _, err := stmt.ExecContext(ctx, year, e.Date, e.Category, e.Description, e.Amount, sourceFile, importedAt, string(raw)); err != nil {
				r.log.Warn().Err(err).Int("index", i).Msg("insert failed")
				tally.Fail(i, err)
				continue
			}
			tally.Imported++
		}
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("save batch rolled back")
		var none storage.ImportTally
		return none.Fatal(len(records), fmt.Errorf("SaveExpenses: %w", err))
	}
	return tally.Result()
}

// GetExpensesByYear returns the year's records, newest date first.
func (r *ExpenseRepository) GetExpensesByYear(ctx context.Context, year string, limit int) ([]domain.PersistedExpense, error) {
	query := `SELECT ` + selectColumns + ` FROM expenses WHERE year = ? ORDER BY date DESC, id ASC`
	args := []interface{}{year}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	out, err := r.query(ctx, query, args...)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("get expenses failed")
		return []domain.PersistedExpense{}, storage.Unavailable("GetExpensesByYear", err)
	}
	return out, nil
}

// GetAllYears lists distinct years, newest first.
func (r *ExpenseRepository) GetAllYears(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM expenses ORDER BY year DESC`)
	if err != nil {
		r.log.Error().Err(err).Msg("list years failed")
		return []string{}, storage.Unavailable("GetAllYears", err)
	}
	defer rows.Close()

	years := []string{}
	for rows.Next() {
		var y string
		if err := rows.Scan(&y); err != nil {
			return []string{}, storage.Unavailable("GetAllYears", err)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return []string{}, storage.Unavailable("GetAllYears", err)
	}
	return years, nil
}

// GetYearStatistics aggregates the year in SQL.
func (r *ExpenseRepository) GetYearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	stats, err := r.yearStatistics(ctx, year)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("statistics failed")
		return domain.EmptyYearStats(year), storage.Unavailable("GetYearStatistics", err)
	}
	return stats, nil
}

func (r *ExpenseRepository) yearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	stats := domain.EmptyYearStats(year)

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM expenses WHERE year = ?`, year,
	).Scan(&stats.TotalExpenses, &stats.TotalAmount)
	if err != nil {
		return stats, fmt.Errorf("totals: %w", err)
	}
	if stats.TotalExpenses == 0 {
		return stats, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(category, ''), ?) AS cat, COUNT(*), SUM(amount) AS total
		FROM expenses
		WHERE year = ?
		GROUP BY cat
		ORDER BY total DESC, cat ASC
	`, domain.UncategorizedLabel, year)
	if err != nil {
		return stats, fmt.Errorf("by category: %w", err)
	}
	for rows.Next() {
		var c domain.CategoryTotal
		if err := rows.Scan(&c.Category, &c.Count, &c.Total); err != nil {
			rows.Close()
			return stats, fmt.Errorf("by category scan: %w", err)
		}
		stats.ByCategory = append(stats.ByCategory, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("by category: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT substr(date, 1, 7) AS month, COUNT(*), SUM(amount)
		FROM expenses
		WHERE year = ? AND date <> ''
		GROUP BY month
		ORDER BY month ASC
	`, year)
	if err != nil {
		return stats, fmt.Errorf("by month: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.MonthTotal
		if err := rows.Scan(&m.Month, &m.Count, &m.Total); err != nil {
			return stats, fmt.Errorf("by month scan: %w", err)
		}
		stats.ByMonth = append(stats.ByMonth, m)
	}
	return stats, rows.Err()
}

// DeleteExpensesByYear counts and deletes the year's rows in one transaction.
func (r *ExpenseRepository) DeleteExpensesByYear(ctx context.Context, year string) domain.DeleteResult {
	var deleted int
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE year = ?`, year)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("delete failed")
		return domain.DeleteResult{Status: domain.StatusError, Message: err.Error()}
	}

	r.log.Info().Str("year", year).Int("deleted", deleted).Msg("deleted year")
	return domain.DeleteResult{
		Status:  domain.StatusOK,
		Deleted: deleted,
		Message: fmt.Sprintf("Deleted %d expenses from %s", deleted, year),
	}
}

// SearchExpenses builds a WHERE clause from the set filter fields.
func (r *ExpenseRepository) SearchExpenses(ctx context.Context, f domain.SearchFilter) ([]domain.PersistedExpense, error) {
	query, args := searchQuery(f)
	out, err := r.query(ctx, query, args...)
	if err != nil {
		r.log.Error().Err(err).Msg("search failed")
		return []domain.PersistedExpense{}, storage.Unavailable("SearchExpenses", err)
	}
	return out, nil
}

func searchQuery(f domain.SearchFilter) (string, []interface{}) {
	var where []string
	var args []interface{}

	if f.Year != "" {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.DateFrom != "" {
		where = append(where, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		where = append(where, "date <= ?")
		args = append(args, f.DateTo)
	}
	if f.MinAmount != nil {
		where = append(where, "amount >= ?")
		args = append(args, *f.MinAmount)
	}
	if f.MaxAmount != nil {
		where = append(where, "amount <= ?")
		args = append(args, *f.MaxAmount)
	}

	query := `SELECT ` + selectColumns + ` FROM expenses`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return query + ` ORDER BY date DESC, id ASC`, args
}

func (r *ExpenseRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.PersistedExpense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PersistedExpense{}
	for rows.Next() {
		var (
			e                     domain.PersistedExpense
			id                    int64
			category, description sql.NullString
			importedAt            string
		)
		if err := rows.Scan(&id, &e.Year, &e.Date, &category, &description, &e.Amount, &e.SourceFile, &importedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)
		e.Category = category.String
		e.Description = description.String
		if ts, err := time.Parse(time.RFC3339Nano, importedAt); err == nil {
			e.ImportedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
