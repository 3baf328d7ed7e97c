// Package storagetest holds the behavioral suite every storage.Store
// implementation must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

func amount(f float64) *float64 { return &f }

// Seed is the fixture shared by the search and statistics cases.
var Seed = map[string][]domain.Expense{
	"2023": {
		{Date: "2023-01-15", Category: "Food", Description: "Groceries", Amount: 45.5},
		{Date: "2023-02-01", Category: "Rent", Description: "February rent", Amount: 1200},
		{Date: "2023-02-14", Category: "Food", Description: "Dinner", Amount: 89.99},
		{Date: "2023-03-03", Category: "Travel", Description: "Train", Amount: 150},
		{Date: "2023-03-20", Category: "", Description: "Unknown", Amount: 50},
	},
	"2024": {
		{Date: "2024-01-10", Category: "Food", Description: "Lunch", Amount: 12.3},
		{Date: "2024-02-11", Category: "Travel", Description: "Flight", Amount: 200},
	},
}

func seed(ctx context.Context, t *testing.T, s storage.Store) {
	t.Helper()
	for _, year := range []string{"2023", "2024"} {
		res := s.SaveExpenses(ctx, year, Seed[year], "seed.xlsx")
		require.Equal(t, domain.StatusOK, res.Status, "seeding %s: %+v", year, res)
		require.Equal(t, len(Seed[year]), res.Imported)
	}
}

func descriptions(records []domain.PersistedExpense) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Description)
	}
	return out
}

// RunContract runs the suite against stores built by newStore.
func RunContract(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) storage.Store {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("save then get returns saved records newest first", func(t *testing.T) {
		s := open(t)
		records := []domain.Expense{
			{Date: "2023-01-05", Category: "Office", Description: "Office supplies", Amount: 120.5},
			{Date: "2023-06-30", Category: "Food", Description: "Team lunch", Amount: 0.1},
			{Date: "2023-03-12", Category: "Travel", Description: "Taxi", Amount: 1234.56},
		}

		res := s.SaveExpenses(ctx, "2023", records, "receipts.xlsx")
		require.Equal(t, domain.StatusOK, res.Status)
		require.Equal(t, 3, res.Imported)
		require.Equal(t, 0, res.Skipped)
		require.Empty(t, res.Errors)

		got, err := s.GetExpensesByYear(ctx, "2023", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, []domain.Expense{records[1], records[2], records[0]},
			[]domain.Expense{got[0].Expense, got[1].Expense, got[2].Expense})

		ids := map[string]bool{}
		for _, r := range got {
			require.Equal(t, "2023", r.Year)
			require.Equal(t, "receipts.xlsx", r.SourceFile)
			require.False(t, r.ImportedAt.IsZero())
			require.NotEmpty(t, r.ID)
			require.False(t, ids[r.ID], "duplicate id %s", r.ID)
			ids[r.ID] = true
		}
	})

	t.Run("save accounts for every record", func(t *testing.T) {
		s := open(t)
		records := []domain.Expense{
			{Date: "2023-01-01", Category: "A", Description: "ok", Amount: 1},
			{Date: "", Category: "B", Description: "no date", Amount: 2},
			{Date: "2023-01-02", Category: "C", Description: "ok too", Amount: 3},
		}

		res := s.SaveExpenses(ctx, "2023", records, "mixed.xlsx")
		require.Equal(t, len(records), res.Imported+res.Skipped)
		require.Equal(t, 2, res.Imported)
		require.Equal(t, 1, res.Skipped)
		require.Len(t, res.Errors, 1)
		require.Equal(t, domain.StatusOK, res.Status)
	})

	t.Run("saving nothing reports error status", func(t *testing.T) {
		s := open(t)
		res := s.SaveExpenses(ctx, "2023", nil, "empty.xlsx")
		require.Equal(t, 0, res.Imported)
		require.Equal(t, domain.StatusError, res.Status)
	})

	t.Run("year partition is the caller's, not the date's", func(t *testing.T) {
		s := open(t)
		res := s.SaveExpenses(ctx, "2020", []domain.Expense{
			{Date: "2019-12-31", Category: "Misc", Description: "late entry", Amount: 9},
		}, "late.xlsx")
		require.Equal(t, 1, res.Imported)

		got, err := s.GetExpensesByYear(ctx, "2020", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "2019-12-31", got[0].Date)

		none, err := s.GetExpensesByYear(ctx, "2019", 0)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("limit truncates", func(t *testing.T) {
		s := open(t)
		seed(ctx, t, s)

		got, err := s.GetExpensesByYear(ctx, "2023", 2)
		require.NoError(t, err)
		require.Equal(t, []string{"Unknown", "Train"}, descriptions(got))
	})

	t.Run("unknown year is empty, not an error", func(t *testing.T) {
		s := open(t)
		got, err := s.GetExpensesByYear(ctx, "1900", 10)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("years are listed newest first", func(t *testing.T) {
		s := open(t)
		years, err := s.GetAllYears(ctx)
		require.NoError(t, err)
		require.Empty(t, years)

		seed(ctx, t, s)
		years, err = s.GetAllYears(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"2024", "2023"}, years)
	})

	t.Run("statistics", func(t *testing.T) {
		s := open(t)
		seed(ctx, t, s)

		stats, err := s.GetYearStatistics(ctx, "2023")
		require.NoError(t, err)
		require.Equal(t, "2023", stats.Year)
		require.Equal(t, 5, stats.TotalExpenses)
		require.InDelta(t, 1535.49, stats.TotalAmount, 1e-9)

		require.Len(t, stats.ByCategory, 4)
		require.Equal(t, "Rent", stats.ByCategory[0].Category)
		require.Equal(t, "Travel", stats.ByCategory[1].Category)
		require.Equal(t, "Food", stats.ByCategory[2].Category)
		require.Equal(t, 2, stats.ByCategory[2].Count)
		require.InDelta(t, 135.49, stats.ByCategory[2].Total, 1e-9)
		require.Equal(t, domain.UncategorizedLabel, stats.ByCategory[3].Category)

		require.Len(t, stats.ByMonth, 3)
		require.Equal(t, "2023-01", stats.ByMonth[0].Month)
		require.Equal(t, "2023-02", stats.ByMonth[1].Month)
		require.Equal(t, 2, stats.ByMonth[1].Count)
		require.InDelta(t, 1289.99, stats.ByMonth[1].Total, 1e-9)
		require.Equal(t, "2023-03", stats.ByMonth[2].Month)
	})

	t.Run("statistics of an empty year are zeroed", func(t *testing.T) {
		s := open(t)
		stats, err := s.GetYearStatistics(ctx, "2001")
		require.NoError(t, err)
		require.Equal(t, domain.EmptyYearStats("2001"), stats)
	})

	t.Run("delete removes the partition and is idempotent", func(t *testing.T) {
		s := open(t)
		seed(ctx, t, s)

		res := s.DeleteExpensesByYear(ctx, "2023")
		require.Equal(t, domain.StatusOK, res.Status)
		require.Equal(t, len(Seed["2023"]), res.Deleted)

		got, err := s.GetExpensesByYear(ctx, "2023", 0)
		require.NoError(t, err)
		require.Empty(t, got)

		years, err := s.GetAllYears(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"2024"}, years)

		again := s.DeleteExpensesByYear(ctx, "2023")
		require.Equal(t, domain.StatusOK, again.Status)
		require.Equal(t, 0, again.Deleted)

		recreated := s.SaveExpenses(ctx, "2023", Seed["2023"][:1], "again.xlsx")
		require.Equal(t, 1, recreated.Imported)
		got, err = s.GetExpensesByYear(ctx, "2023", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("search", func(t *testing.T) {
		s := open(t)
		seed(ctx, t, s)

		tests := []struct {
			name   string
			filter domain.SearchFilter
			want   []string
		}{
			{
				name:   "amount range is inclusive across years",
				filter: domain.SearchFilter{MinAmount: amount(50), MaxAmount: amount(200)},
				want:   []string{"Flight", "Unknown", "Train", "Dinner"},
			},
			{
				name:   "category is exact",
				filter: domain.SearchFilter{Category: "Food"},
				want:   []string{"Lunch", "Dinner", "Groceries"},
			},
			{
				name:   "category is case-sensitive",
				filter: domain.SearchFilter{Category: "food"},
				want:   []string{},
			},
			{
				name:   "date range is inclusive",
				filter: domain.SearchFilter{DateFrom: "2023-02-01", DateTo: "2023-03-03"},
				want:   []string{"Train", "Dinner", "February rent"},
			},
			{
				name:   "year scopes the search",
				filter: domain.SearchFilter{Year: "2024"},
				want:   []string{"Flight", "Lunch"},
			},
			{
				name: "filters are conjunctive",
				filter: domain.SearchFilter{
					Year:      "2023",
					Category:  "Food",
					MinAmount: amount(50),
				},
				want: []string{"Dinner"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.SearchExpenses(ctx, tt.filter)
				require.NoError(t, err)
				require.Equal(t, tt.want, descriptions(got))
				for _, r := range got {
					require.True(t, tt.filter.Match(r), "record %+v escaped the filter", r)
				}
			})
		}
	})
}
