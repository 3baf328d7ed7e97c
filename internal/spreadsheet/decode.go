// Package spreadsheet decodes uploaded workbooks into raw rows.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned for a workbook without any worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// Decode reads the first sheet of an .xlsx workbook. The first row is the
// header; each later non-empty row becomes one RawRow holding every header
// column in order. Empty cells are nil, numbers are float64 and
// date-formatted numbers are time.Time.
func Decode(r io.Reader) ([]domain.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("Decode: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("Decode: %w", ErrNoSheets)
	}

	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("Decode: read rows: %w", err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("Decode: read raw rows: %w", err)
	}

	out := []domain.RawRow{}
	if len(formatted) == 0 {
		return out, nil
	}

	width := 0
	for _, row := range formatted {
		if len(row) > width {
			width = len(row)
		}
	}
	header := columnNames(formatted[0], width)

	d := &decoder{f: f, sheet: sheet, dateStyles: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}

	for i := 1; i < len(formatted); i++ {
		row := make(domain.RawRow, 0, width)
		empty := true
		for c, name := range header {
			v := d.value(i, c, at(formatted[i], c), at(rowAt(raw, i), c))
			if v != nil {
				empty = false
			}
			row = append(row, domain.Cell{Column: name, Value: v})
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out, nil
}

func at(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func rowAt(rows [][]string, i int) []string {
	if i < len(rows) {
		return rows[i]
	}
	return nil
}

// columnNames names blank headers "Unnamed: i" and suffixes repeats with
// ".1", ".2", ...
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := map[string]int{}
	for i := 0; i < width; i++ {
		name := strings.TrimSpace(at(header, i))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

type decoder struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

// value types one cell. row and col are 0-based.
func (d *decoder) value(row, col int, formatted, raw string) interface{} {
	if formatted == "" && raw == "" {
		return nil
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return formatted
	}

	typ, _ := d.f.GetCellType(d.sheet, axis)
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeDate:
		return formatted
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return formatted
	}
	if d.isDate(axis) {
		if t, err := excelize.ExcelDateToTime(n, d.date1904); err == nil {
			return t
		}
	}
	return n
}

func (d *decoder) isDate(axis string) bool {
	id, err := d.f.GetCellStyle(d.sheet, axis)
	if err != nil || id == 0 {
		return false
	}
	if v, ok := d.dateStyles[id]; ok {
		return v
	}

	v := false
	if style, err := d.f.GetStyle(id); err == nil && style != nil {
		v = builtinDateFormat(style.NumFmt) ||
			(style.CustomNumFmt != nil && customDateFormat(*style.CustomNumFmt))
	}
	d.dateStyles[id] = v
	return v
}

func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// customDateFormat looks for date or time tokens outside literals and
// bracketed sections such as colors or locales.
func customDateFormat(format string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(format) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	return strings.ContainsAny(s, "yd") || (strings.Contains(s, "h") && strings.Contains(s, ":"))
}
