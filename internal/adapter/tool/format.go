package tool

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

// FormatResult dumps a result as a literal mapping of column name to
// values, e.g. {"Title": ["Innuendo"], "Tracks": [12]}. The dump can be
// pasted into a visualize_data <df> block as is. Rows beyond maxRows are
// dropped with a note.
func FormatResult(result *entity.QueryResult, maxRows int) string {
	rows := result.Rows
	cut := maxRows > 0 && len(rows) > maxRows
	if cut {
		rows = rows[:maxRows]
	}

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range uniqueNames(result.Columns) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(name))
		b.WriteString(": [")
		for r, row := range rows {
			if r > 0 {
				b.WriteString(", ")
			}
			var cell any
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(Literal(cell))
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')

	if cut {
		fmt.Fprintf(&b, "\n(only the first %d rows are shown; aggregate or add a LIMIT to see less data)", maxRows)
	}
	return b.String()
}

// Literal renders one cell as a literal the chart data parser accepts.
func Literal(cell any) string {
	switch v := cell.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "None"
		}
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(v)
	default:
		return strconv.Quote(fmt.Sprint(v))
	}
}

// uniqueNames suffixes repeated column names (Name, Name_2) so the dump is
// a valid mapping.
func uniqueNames(columns []string) []string {
	seen := make(map[string]int, len(columns))
	out := make([]string, len(columns))
	for i, c := range columns {
		seen[c]++
		name := c
		for n := seen[c]; n > 1; n++ {
			candidate := fmt.Sprintf("%s_%d", c, n)
			if seen[candidate] == 0 {
				name = candidate
				seen[candidate] = 1
				break
			}
		}
		out[i] = name
	}
	return out
}
