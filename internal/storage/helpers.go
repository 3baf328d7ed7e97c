package storage

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/shopspring/decimal"
)

// ValidateExpense rejects records no backend can store faithfully.
func ValidateExpense(e domain.Expense) error {
	if strings.TrimSpace(e.Date) == "" {
		return errors.New("date is empty")
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) {
		return fmt.Errorf("amount %v is not a finite number", e.Amount)
	}
	return nil
}

// ImportTally accumulates per-record outcomes of a save.
type ImportTally struct {
	Imported int
	Skipped  int
	errors   []string
}

// Fail records a skipped record. Only the first MaxReportedErrors messages are kept.
func (t *ImportTally) Fail(index int, err error) {
	t.Skipped++
	if len(t.errors) < domain.MaxReportedErrors {
		t.errors = append(t.errors, fmt.Sprintf("Error saving expense %d: %v", index, err))
	}
}

// Result turns the tally into an ImportResult. Status is ok only if
// something was imported.
func (t *ImportTally) Result() domain.ImportResult {
	status := domain.StatusError
	if t.Imported > 0 {
		status = domain.StatusOK
	}
	errs := t.errors
	if errs == nil {
		errs = []string{}
	}
	return domain.ImportResult{
		Imported: t.Imported,
		Skipped:  t.Skipped,
		Status:   status,
		Errors:   errs,
	}
}

// Fatal turns the tally into an error result after the batch was aborted.
// Every record not counted as imported is reported as skipped.
func (t *ImportTally) Fatal(total int, err error) domain.ImportResult {
	r := t.Result()
	r.Skipped = total - t.Imported
	r.Status = domain.StatusError
	r.Message = err.Error()
	return r
}

// Stamper hands out imported_at timestamps that never go backwards within a batch.
type Stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewStamper returns a Stamper reading now, or time.Now when now is nil.
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Next returns the next UTC timestamp.
func (s *Stamper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

// SortByDateDesc orders records newest date first, keeping input order for ties.
func SortByDateDesc(records []domain.PersistedExpense) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
}

// SortYearsDesc orders year keys newest first.
func SortYearsDesc(years []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(years)))
}

// CategoryKey maps a missing category onto the Uncategorized label.
func CategoryKey(category string) string {
	if category == "" {
		return domain.UncategorizedLabel
	}
	return category
}

// MonthKey returns the "YYYY-MM" prefix of a date, or "" when the date is empty.
func MonthKey(date string) string {
	if len(date) > 7 {
		return date[:7]
	}
	return date
}

type bucket struct {
	key   string
	count int
	total decimal.Decimal
}

// BuildYearStats aggregates records in memory for backends that cannot
// aggregate server side. Sums are exact decimals converted to float64 at the end.
func BuildYearStats(year string, records []domain.PersistedExpense) domain.YearStats {
	stats := domain.EmptyYearStats(year)
	if len(records) == 0 {
		return stats
	}

	total := decimal.Zero
	categories := map[string]*bucket{}
	months := map[string]*bucket{}
	var catOrder, monthOrder []*bucket

	for _, r := range records {
		amount := decimal.NewFromFloat(r.Amount)
		total = total.Add(amount)

		ck := CategoryKey(r.Category)
		cb, ok := categories[ck]
		if !ok {
			cb = &bucket{key: ck}
			categories[ck] = cb
			catOrder = append(catOrder, cb)
		}
		cb.count++
		cb.total = cb.total.Add(amount)

		mk := MonthKey(r.Date)
		if mk == "" {
			continue
		}
		mb, ok := months[mk]
		if !ok {
			mb = &bucket{key: mk}
			months[mk] = mb
			monthOrder = append(monthOrder, mb)
		}
		mb.count++
		mb.total = mb.total.Add(amount)
	}

	sort.SliceStable(catOrder, func(i, j int) bool {
		if c := catOrder[i].total.Cmp(catOrder[j].total); c != 0 {
			return c > 0
		}
		return catOrder[i].key < catOrder[j].key
	})
	sort.Slice(monthOrder, func(i, j int) bool {
		return monthOrder[i].key < monthOrder[j].key
	})

	stats.TotalExpenses = len(records)
	stats.TotalAmount = total.InexactFloat64()
	for _, b := range catOrder {
		stats.ByCategory = append(stats.ByCategory, domain.CategoryTotal{
			Category: b.key,
			Count:    b.count,
			Total:    b.total.InexactFloat64(),
		})
	}
	for _, b := range monthOrder {
		stats.ByMonth = append(stats.ByMonth, domain.MonthTotal{
			Month: b.key,
			Count: b.count,
			Total: b.total.InexactFloat64(),
		})
	}
	return stats
}
