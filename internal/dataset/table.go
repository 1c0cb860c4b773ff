// Package dataset parses uploaded tabular data into the in-memory Table
// consumed by profiling and engine registration.
package dataset

// Column pairs a normalized column name with the header it came from.
// Normalized names are what queries reference; originals are for display.
type Column struct {
	Name     string `json:"name"`
	Original string `json:"original"`
}

// Table is a parsed tabular dataset: an ordered header plus raw string cells.
// Cells are never coerced here; typing is the profiler's job. An empty cell
// is the empty string.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// ColumnNames returns the normalized column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnValues returns every cell of the column at index idx, in row order.
func (t *Table) ColumnValues(idx int) []string {
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, row[idx])
	}
	return out
}
