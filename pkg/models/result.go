package models

// ResultTable is a tabular query result: column names plus row values.
// Values survive a JSON round trip, so callers should expect numbers to
// come back as float64 after a cache hit.
type ResultTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// RowCount returns the number of rows in the table.
func (t *ResultTable) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table carries no rows.
func (t *ResultTable) Empty() bool {
	return t.RowCount() == 0
}
