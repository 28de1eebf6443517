package entity

// QueryResult is a tabular result set in column order.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Column returns the values of column i across all rows.
func (r *QueryResult) Column(i int) []any {
	values := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		if i < len(row) {
			values = append(values, row[i])
		} else {
			values = append(values, nil)
		}
	}
	return values
}
