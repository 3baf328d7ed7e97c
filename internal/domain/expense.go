package domain

import (
	"time"
)

// Sentinel values used when a field could not be resolved.
const (
	DefaultCategory    = "General"
	DefaultDescription = "Expense"
	UncategorizedLabel = "Uncategorized"
)

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// MaxReportedErrors caps the per-record messages kept in an ImportResult.
const MaxReportedErrors = 10

// Expense is the canonical four-field record produced by normalization.
type Expense struct {
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// PersistedExpense is an Expense plus the metadata stamped by a storage backend.
type PersistedExpense struct {
	ID   string `json:"id"`
	Year string `json:"year"`
	Expense
	SourceFile string    `json:"source_file"`
	ImportedAt time.Time `json:"imported_at"`
}

// ImportResult reports how a batch save went.
// Imported + Skipped equals the batch size unless a fatal error happened
// before any write was attempted.
type ImportResult struct {
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	Status     string   `json:"status"`
	Errors     []string `json:"errors"`
	Message    string   `json:"message,omitempty"`
	StorageURL string   `json:"storage_url,omitempty"`
}

// DeleteResult reports the outcome of deleting a year partition.
type DeleteResult struct {
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// CategoryTotal is one row of the per-category breakdown.
type CategoryTotal struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
}

// MonthTotal is one row of the per-month breakdown. Month is "YYYY-MM".
type MonthTotal struct {
	Month string  `json:"month"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// YearStats aggregates one year partition.
type YearStats struct {
	Year          string          `json:"year"`
	TotalExpenses int             `json:"total_expenses"`
	TotalAmount   float64         `json:"total_amount"`
	ByCategory    []CategoryTotal `json:"by_category"`
	ByMonth       []MonthTotal    `json:"by_month"`
}

// EmptyYearStats returns the zeroed statistics for a year with no records.
func EmptyYearStats(year string) YearStats {
	return YearStats{
		Year:       year,
		ByCategory: []CategoryTotal{},
		ByMonth:    []MonthTotal{},
	}
}

// SearchFilter holds the optional, conjunctive search criteria.
// Empty strings and nil pointers mean "no filter".
type SearchFilter struct {
	Year      string
	Category  string
	DateFrom  string
	DateTo    string
	MinAmount *float64
	MaxAmount *float64
}

// Match reports whether e satisfies every set criterion.
// Date bounds compare lexically, which is chronological for YYYY-MM-DD.
func (f SearchFilter) Match(e PersistedExpense) bool {
	if f.Year != "" && e.Year != f.Year {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.DateFrom != "" && e.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && e.Date > f.DateTo {
		return false
	}
	if f.MinAmount != nil && e.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && e.Amount > *f.MaxAmount {
		return false
	}
	return true
}
