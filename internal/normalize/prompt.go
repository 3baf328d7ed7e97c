package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/expense-importer/internal/domain"
)

// SampleRows is how many input rows are shown to the model as context.
const SampleRows = 5

func buildPrompt(rows []domain.RawRow, year string) (string, error) {
	sample := rows
	if len(sample) > SampleRows {
		sample = sample[:SampleRows]
	}
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildPrompt: marshal sample: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an expert data normalizer for expense records.\n\n")
	fmt.Fprintf(&b, "Given the following rows from an expense spreadsheet for year %s,\n", year)
	b.WriteString("identify the columns and normalize every row to one JSON format.\n\n")
	fmt.Fprintf(&b, "Input data (sample):\n%s\n\n", sampleJSON)
	b.WriteString("Task:\n")
	b.WriteString("1. Identify which columns hold the date, category or type, description and amount.\n")
	fmt.Fprintf(&b, "2. Convert every date to \"YYYY-MM-DD\" (use year %s when the year is missing).\n", year)
	b.WriteString("3. Make every amount a positive number.\n")
	b.WriteString("4. Assign an expense category (Transport, Food, Office, Utilities, ...).\n")
	b.WriteString("5. Keep or clean the description text.\n\n")
	b.WriteString("Return ONLY a JSON array with one object per input row, in input order:\n")
	b.WriteString("[{\"date\": \"YYYY-MM-DD\", \"category\": \"Category\", \"description\": \"Text\", \"amount\": 0.00}]\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Process all %d rows of the input.\n", len(rows))
	b.WriteString("- If a field is unclear, make a reasonable inference.\n")
	b.WriteString("- Do NOT wrap the response in code fences or add any text.\n")
	b.WriteString("- Output must begin with \"[\" and end with \"]\".\n")
	return b.String(), nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```"), "json")
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}

	return strings.TrimSpace(s)
}
