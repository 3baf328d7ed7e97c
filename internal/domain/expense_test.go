package domain

import (
	"encoding/json"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestSearchFilter_Match(t *testing.T) {
	e := PersistedExpense{
		Year: "2023",
		Expense: Expense{
			Date:        "2023-03-15",
			Category:    "Food",
			Description: "Lunch",
			Amount:      50,
		},
	}

	tests := []struct {
		name   string
		filter SearchFilter
		want   bool
	}{
		{"empty filter", SearchFilter{}, true},
		{"year match", SearchFilter{Year: "2023"}, true},
		{"year mismatch", SearchFilter{Year: "2024"}, false},
		{"category exact", SearchFilter{Category: "Food"}, true},
		{"category is case-sensitive", SearchFilter{Category: "food"}, false},
		{"date_from inclusive", SearchFilter{DateFrom: "2023-03-15"}, true},
		{"date_from after", SearchFilter{DateFrom: "2023-03-16"}, false},
		{"date_to inclusive", SearchFilter{DateTo: "2023-03-15"}, true},
		{"date_to before", SearchFilter{DateTo: "2023-03-14"}, false},
		{"min inclusive", SearchFilter{MinAmount: ptr(50)}, true},
		{"min above", SearchFilter{MinAmount: ptr(50.01)}, false},
		{"max inclusive", SearchFilter{MaxAmount: ptr(50)}, true},
		{"max below", SearchFilter{MaxAmount: ptr(49.99)}, false},
		{"conjunctive", SearchFilter{Year: "2023", Category: "Food", MinAmount: ptr(10), MaxAmount: ptr(20)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(e); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRawRow_MarshalJSONKeepsColumnOrder(t *testing.T) {
	row := RawRow{
		{Column: "Zeta", Value: "z"},
		{Column: "Alpha", Value: 1.5},
		{Column: "Empty", Value: nil},
	}

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"Zeta":"z","Alpha":1.5,"Empty":null}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestRowFromMap(t *testing.T) {
	row := RowFromMap(map[string]interface{}{"b": 2, "a": 1})

	if len(row) != 2 || row[0].Column != "a" || row[1].Column != "b" {
		t.Fatalf("unexpected row: %+v", row)
	}

	v, ok := row.Get("b")
	if !ok || v != 2 {
		t.Errorf("Get(b) = %v, %v", v, ok)
	}
	if _, ok := row.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestEmptyYearStats(t *testing.T) {
	s := EmptyYearStats("2020")

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"year":"2020","total_expenses":0,"total_amount":0,"by_category":[],"by_month":[]}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}
