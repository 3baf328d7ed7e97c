package domain

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Cell is one column of a raw spreadsheet row. Value is nil when the cell is absent.
type Cell struct {
	Column string
	Value  interface{}
}

// RawRow is an ordered, schema-less spreadsheet row. Column order is kept
// because normalization lets later matching columns overwrite earlier ones.
type RawRow []Cell

// RowFromMap builds a RawRow from a map, ordering columns by name.
func RowFromMap(m map[string]interface{}) RawRow {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make(RawRow, 0, len(keys))
	for _, k := range keys {
		row = append(row, Cell{Column: k, Value: m[k]})
	}
	return row
}

// Get returns the value of the last cell named column.
func (r RawRow) Get(column string) (interface{}, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Column == column {
			return r[i].Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
