// Package dataset holds tabular text records and reads and writes them as
// spreadsheets.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Table is an ordered set of named columns over string rows. Column names
// are unique and non-empty; every row has exactly len(Columns) cells.
// Cells stay strings in memory; numeric columns are typed only on output.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New validates the header and normalizes rows to the header width. Missing
// trailing cells are filled with "", blank rows are dropped.
func New(columns []string, rows [][]string) (*Table, error) {
	header, err := normalizeHeader(columns)
	if err != nil {
		return nil, err
	}

	table := &Table{Columns: header, Rows: make([][]string, 0, len(rows))}
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		normalized, err := fitRow(row, len(header))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		table.Rows = append(table.Rows, normalized)
	}
	return table, nil
}

// normalizeHeader names blank columns "Unnamed: <i>" (zero-based) and
// renames repeated names to "<name>.1", "<name>.2", ... in header order.
func normalizeHeader(columns []string) ([]string, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("header row is missing")
	}

	header := make([]string, len(columns))
	taken := make(map[string]struct{}, len(columns))
	for i, raw := range columns {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if _, exists := taken[name]; exists {
			base := name
			for n := 1; ; n++ {
				candidate := base + "." + strconv.Itoa(n)
				if _, exists := taken[candidate]; !exists {
					name = candidate
					break
				}
			}
		}
		taken[name] = struct{}{}
		header[i] = name
	}
	return header, nil
}

func fitRow(row []string, width int) ([]string, error) {
	if len(row) > width {
		for _, cell := range row[width:] {
			if strings.TrimSpace(cell) != "" {
				return nil, fmt.Errorf("has %d cells but the header has %d columns", len(row), width)
			}
		}
		row = row[:width]
	}
	fitted := make([]string, width)
	copy(fitted, row)
	return fitted, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, column := range t.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	clone := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		clone.Rows[i] = append([]string(nil), row...)
	}
	return clone
}

// EnsureColumn returns the index of name, appending an empty column when it
// does not exist yet.
func (t *Table) EnsureColumn(name string) int {
	if idx := t.ColumnIndex(name); idx >= 0 {
		return idx
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Columns) - 1
}

// MarshalJSON renders the table as an array of row objects whose keys follow
// column order. Columns whose non-empty cells are all numbers are written as
// JSON numbers, with empty cells as null; every other cell is a string.
func (t *Table) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}

	numeric := t.numericColumns()
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeRecord(&buf, t.Columns, row, numeric); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, columns, row []string, numeric []bool) error {
	buf.WriteByte('{')
	for i, column := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')

		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if numeric[i] {
			buf.WriteString(numberJSON(cell))
			continue
		}
		value, err := json.Marshal(cell)
		if err != nil {
			return err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return nil
}

// numericColumns marks columns with at least one non-empty cell where every
// non-empty cell parses as a finite decimal number.
func (t *Table) numericColumns() []bool {
	numeric := make([]bool, len(t.Columns))
	for col := range t.Columns {
		seen := false
		numeric[col] = true
		for _, row := range t.Rows {
			cell := ""
			if col < len(row) {
				cell = strings.TrimSpace(row[col])
			}
			if cell == "" {
				continue
			}
			seen = true
			if _, ok := parseNumber(cell); !ok {
				numeric[col] = false
				break
			}
		}
		numeric[col] = numeric[col] && seen
	}
	return numeric
}

func parseNumber(cell string) (string, bool) {
	if value, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return strconv.FormatInt(value, 10), true
	}
	if strings.ContainsAny(cell, "xXpP_") {
		return "", false
	}
	value, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return "", false
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

func numberJSON(cell string) string {
	number, ok := parseNumber(strings.TrimSpace(cell))
	if !ok {
		return "null"
	}
	return number
}
