package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  string
	}{
		{"xlsx", "expenses.xlsx", ""},
		{"xls", "expenses.xls", ""},
		{"upper case extension", "EXPENSES.XLSX", ""},
		{"empty", "", "No filename"},
		{"blank", "   ", "No filename"},
		{"csv", "expenses.csv", "Invalid file type"},
		{"no extension", "expenses", "Invalid file type"},
		{"xlsx in the middle", "expenses.xlsx.txt", "Invalid file type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Error("expected ErrInvalidInput")
			}
		})
	}
}

func TestValidateYear(t *testing.T) {
	tests := []struct {
		year    string
		wantErr bool
	}{
		{"2023", false},
		{"1999", false},
		{"0000", false},
		{"23", true},
		{"20233", true},
		{"20a3", true},
		{"", true},
		{" 2023", true},
		{"２０２３", true},
	}

	for _, tt := range tests {
		t.Run(tt.year, func(t *testing.T) {
			err := ValidateYear(tt.year)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateYear(%q) error = %v, wantErr %v", tt.year, err, tt.wantErr)
			}
			if err != nil && err.Error() != "Year must be a 4-digit number" {
				t.Errorf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(100, 100); err != nil {
		t.Errorf("size at the limit should pass: %v", err)
	}
	if err := ValidateSize(101, 100); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := ValidateSize(DefaultMaxUploadBytes+1, 0); err == nil {
		t.Error("zero limit should fall back to the default")
	}
}

func TestValidateUpload_Order(t *testing.T) {
	err := ValidateUpload(Upload{Filename: "a.csv", Year: "bad"}, 0)
	if err == nil || !strings.Contains(err.Error(), "Invalid file type") {
		t.Errorf("filename should be checked first, got %v", err)
	}
}
