package chart

import (
	"fmt"
	"sort"
)

// Table is an ordered, rectangular mapping of column name to cell values.
// Cells are string, int64, float64, bool or nil.
type Table struct {
	columns []string
	data    [][]any
}

func NewTable(columns []string, data [][]any) (*Table, error) {
	if len(columns) != len(data) {
		return nil, badShape("%d column names for %d columns", len(columns), len(data))
	}
	seen := make(map[string]bool, len(columns))
	for i, name := range columns {
		if seen[name] {
			return nil, badShape("duplicate column %q", name)
		}
		seen[name] = true
		if len(data[i]) != len(data[0]) {
			return nil, badShape("column %q has %d values, column %q has %d",
				name, len(data[i]), columns[0], len(data[0]))
		}
	}
	return &Table{columns: columns, data: data}, nil
}

func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) NumRows() int {
	if len(t.data) == 0 {
		return 0
	}
	return len(t.data[0])
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]any, bool) {
	for i, c := range t.columns {
		if c == name {
			out := make([]any, len(t.data[i]))
			copy(out, t.data[i])
			return out, true
		}
	}
	return nil, false
}

// Head returns a table with the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > t.NumRows() {
		n = t.NumRows()
	}
	data := make([][]any, len(t.data))
	for i, col := range t.data {
		data[i] = append([]any(nil), col[:n]...)
	}
	return &Table{columns: t.Columns(), data: data}
}

// Select returns a table with only the given columns, in that order.
func (t *Table) Select(names ...string) (*Table, error) {
	data := make([][]any, 0, len(names))
	for _, name := range names {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("no column %q", name)
		}
		data = append(data, col)
	}
	return NewTable(append([]string(nil), names...), data)
}

// SortBy returns a copy of the table ordered by the named column. The sort
// is stable; nil sorts first.
func (t *Table) SortBy(name string, ascending bool) (*Table, error) {
	key, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("no column %q", name)
	}
	order := make([]int, t.NumRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if ascending {
			return lessCell(key[order[a]], key[order[b]])
		}
		return lessCell(key[order[b]], key[order[a]])
	})
	data := make([][]any, len(t.data))
	for c, col := range t.data {
		sorted := make([]any, len(col))
		for i, idx := range order {
			sorted[i] = col[idx]
		}
		data[c] = sorted
	}
	return &Table{columns: t.Columns(), data: data}, nil
}

func lessCell(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
