// Package normalize maps schema-less spreadsheet rows onto domain.Expense.
package normalize

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-importer/internal/domain"
)

// Normalizer turns raw rows into exactly one expense per row, in order.
type Normalizer interface {
	Normalize(ctx context.Context, rows []domain.RawRow, year string) []domain.Expense
}

var (
	dateKeys        = []string{"date", "day", "time"}
	amountKeys      = []string{"amount", "price", "cost", "rm"}
	amountExactKeys = []string{"amount", "total"}
	descKeys        = []string{"description", "detail", "item", "particular"}
	categoryKeys    = []string{"category", "type", "class"}

	amountNoise = strings.NewReplacer(",", "", "$", "", "RM", "")
)

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func equalsAny(s string, opts []string) bool {
	for _, o := range opts {
		if s == o {
			return true
		}
	}
	return false
}

// HeuristicNormalizer classifies columns by name. It never fails.
type HeuristicNormalizer struct{}

// Normalize implements Normalizer.
func (HeuristicNormalizer) Normalize(_ context.Context, rows []domain.RawRow, year string) []domain.Expense {
	return Heuristic(rows, year)
}

// Heuristic normalizes every row independently. Column names are matched
// case-insensitively by substring; when several columns match a field the
// last one in the row wins.
func Heuristic(rows []domain.RawRow, year string) []domain.Expense {
	out := make([]domain.Expense, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalizeRow(row, year))
	}
	return out
}

func normalizeRow(row domain.RawRow, year string) domain.Expense {
	e := domain.Expense{
		Category:    domain.DefaultCategory,
		Description: domain.DefaultDescription,
	}
	date := ""

	for _, cell := range row {
		if cell.Value == nil {
			continue
		}
		key := strings.ToLower(cell.Column)

		if containsAny(key, dateKeys) {
			if d, ok := dateString(cell.Value); ok {
				date = d
			}
		}
		if containsAny(key, amountKeys) || equalsAny(key, amountExactKeys) {
			if a, ok := parseAmount(cell.Value); ok {
				e.Amount = a
			}
		}
		if containsAny(key, descKeys) {
			e.Description = text(cell.Value)
		}
		if containsAny(key, categoryKeys) {
			e.Category = text(cell.Value)
		}
	}

	e.Date = repairDate(date, year)
	return e
}

// repairDate fills a missing date with January 1st and prefixes partial
// dates with the year. The result is not validated.
func repairDate(date, year string) string {
	if date == "" {
		return year + "-01-01"
	}
	if !strings.HasPrefix(date, year) && strings.ContainsAny(date, "/-") {
		return year + "-" + date
	}
	return date
}

// dateString accepts strings as-is and formats date-like values. Anything
// else is ignored.
func dateString(v interface{}) (string, bool) {
	switch d := v.(type) {
	case string:
		return d, true
	case time.Time:
		return d.Format("2006-01-02"), true
	case *time.Time:
		if d == nil {
			return "", false
		}
		return d.Format("2006-01-02"), true
	case civil.Date:
		return d.String(), true
	case civil.DateTime:
		return d.Date.String(), true
	}
	return "", false
}

// parseAmount strips separators, "$" and "RM" before parsing. Non-finite
// results count as failures.
func parseAmount(v interface{}) (float64, bool) {
	var s string
	switch a := v.(type) {
	case float64:
		s = strconv.FormatFloat(a, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(a), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprint(a)
	case string:
		s = a
	case fmt.Stringer:
		s = a.String()
	default:
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(amountNoise.Replace(s)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func text(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format("2006-01-02")
	}
	return fmt.Sprint(v)
}
