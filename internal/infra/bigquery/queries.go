package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-importer/internal/domain"
)

const expenseColumns = `id, year, date, category, description, amount, source_file, imported_at, raw_data`

func byYearQuery(t Table, year string, limit int) (string, []bigquery.QueryParameter) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE year = @year
		ORDER BY date DESC, imported_at ASC`, expenseColumns, t.ref())
	params := []bigquery.QueryParameter{{Name: "year", Value: year}}
	if limit > 0 {
		sql += `
		LIMIT @limit`
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: int64(limit)})
	}
	return sql, params
}

// searchQuery turns the set fields of f into a parameterized WHERE clause.
func searchQuery(t Table, f domain.SearchFilter) (string, []bigquery.QueryParameter) {
	var where []string
	var params []bigquery.QueryParameter

	add := func(cond, name string, value interface{}) {
		where = append(where, cond)
		params = append(params, bigquery.QueryParameter{Name: name, Value: value})
	}
	if f.Year != "" {
		add("year = @year", "year", f.Year)
	}
	if f.Category != "" {
		add("category = @category", "category", f.Category)
	}
	if f.DateFrom != "" {
		add("date >= @date_from", "date_from", f.DateFrom)
	}
	if f.DateTo != "" {
		add("date <= @date_to", "date_to", f.DateTo)
	}
	if f.MinAmount != nil {
		add("amount >= @min_amount", "min_amount", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("amount <= @max_amount", "max_amount", *f.MaxAmount)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", expenseColumns, t.ref())
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql + " ORDER BY date DESC, imported_at ASC", params
}

func yearsQuery(t Table) string {
	return fmt.Sprintf(`SELECT DISTINCT year FROM %s ORDER BY year DESC`, t.ref())
}

func totalsQuery(t Table) string {
	return fmt.Sprintf(`
		SELECT COUNT(*) AS n, IFNULL(SUM(amount), 0) AS total
		FROM %s
		WHERE year = @year`, t.ref())
}

func byCategoryQuery(t Table) string {
	return fmt.Sprintf(`
		SELECT COALESCE(NULLIF(category, ''), @uncategorized) AS key, COUNT(*) AS n, SUM(amount) AS total
		FROM %s
		WHERE year = @year
		GROUP BY key
		ORDER BY total DESC, key ASC`, t.ref())
}

func byMonthQuery(t Table) string {
	return fmt.Sprintf(`
		SELECT SUBSTR(date, 1, 7) AS key, COUNT(*) AS n, SUM(amount) AS total
		FROM %s
		WHERE year = @year AND date <> ''
		GROUP BY key
		ORDER BY key ASC`, t.ref())
}

func deleteYearQuery(t Table) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE year = @year`, t.ref())
}
