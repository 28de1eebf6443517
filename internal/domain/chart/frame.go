package chart

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
)

// frame exposes a Table to chart code the way a dataframe would: df["col"],
// df.columns, len(df), df.head(n), df.sort_values(by).
type frame struct {
	table *Table
}

var (
	_ starlark.Mapping  = (*frame)(nil)
	_ starlark.HasAttrs = (*frame)(nil)
	_ starlark.Sequence = (*frame)(nil)
)

func newFrame(t *Table) *frame { return &frame{table: t} }

func (f *frame) String() string {
	return fmt.Sprintf("DataFrame(%d rows x %d columns)", f.table.NumRows(), len(f.table.columns))
}
func (f *frame) Type() string          { return "DataFrame" }
func (f *frame) Freeze()               {}
func (f *frame) Truth() starlark.Bool  { return f.table.NumRows() > 0 }
func (f *frame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrame") }
func (f *frame) Len() int              { return f.table.NumRows() }

// Iterate yields column names.
func (f *frame) Iterate() starlark.Iterator {
	names := make([]starlark.Value, 0, len(f.table.columns))
	for _, c := range f.table.columns {
		names = append(names, starlark.String(c))
	}
	return starlark.NewList(names).Iterate()
}

func (f *frame) Get(key starlark.Value) (starlark.Value, bool, error) {
	switch k := key.(type) {
	case starlark.String:
		col, ok := f.table.Column(string(k))
		if !ok {
			return nil, false, fmt.Errorf("KeyError: %s", k)
		}
		return cellsToList(col), true, nil
	case *starlark.List:
		names, err := stringList(k)
		if err != nil {
			return nil, false, err
		}
		sub, err := f.table.Select(names...)
		if err != nil {
			return nil, false, fmt.Errorf("KeyError: %v", err)
		}
		return newFrame(sub), true, nil
	}
	return nil, false, fmt.Errorf("DataFrame indices must be column names, not %s", key.Type())
}

var frameMethods = map[string]*starlark.Builtin{
	"head":        starlark.NewBuiltin("head", frameHead),
	"sort_values": starlark.NewBuiltin("sort_values", frameSortValues),
	"to_dict":     starlark.NewBuiltin("to_dict", frameToDict),
}

func (f *frame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		return stringsToList(f.table.Columns()), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(f.table.NumRows()), starlark.MakeInt(len(f.table.columns))}, nil
	}
	if b, ok := frameMethods[name]; ok {
		return b.BindReceiver(f), nil
	}
	return nil, nil
}

func (f *frame) AttrNames() []string {
	names := []string{"columns", "shape"}
	for name := range frameMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func frameHead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return newFrame(b.Receiver().(*frame).table.Head(n)), nil
}

func frameSortValues(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by string
	ascending := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
		return nil, err
	}
	sorted, err := b.Receiver().(*frame).table.SortBy(by, ascending)
	if err != nil {
		return nil, err
	}
	return newFrame(sorted), nil
}

func frameToDict(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	t := b.Receiver().(*frame).table
	d := starlark.NewDict(len(t.columns))
	for i, name := range t.columns {
		if err := d.SetKey(starlark.String(name), cellsToList(t.data[i])); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// dataFrame implements pd.DataFrame(mapping).
func dataFrame(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, nil, 1, &data); err != nil {
		return nil, err
	}
	switch d := data.(type) {
	case *frame:
		return d, nil
	case *starlark.Dict:
		columns := make([]string, 0, d.Len())
		cols := make([][]any, 0, d.Len())
		for _, item := range d.Items() {
			name, ok := starlark.AsString(item[0])
			if !ok {
				name = item[0].String()
			}
			iterable, ok := item[1].(starlark.Iterable)
			if !ok {
				return nil, fmt.Errorf("DataFrame: column %q is not a sequence", name)
			}
			cells, err := valuesToCells(iterable)
			if err != nil {
				return nil, err
			}
			columns = append(columns, name)
			cols = append(cols, cells)
		}
		t, err := NewTable(columns, cols)
		if err != nil {
			return nil, err
		}
		return newFrame(t), nil
	}
	return nil, fmt.Errorf("DataFrame: expected a dict, got %s", data.Type())
}

func cellToValue(cell any) starlark.Value {
	switch v := cell.(type) {
	case nil:
		return starlark.None
	case string:
		return starlark.String(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		return starlark.Float(v)
	case bool:
		return starlark.Bool(v)
	}
	return starlark.String(fmt.Sprint(cell))
}

func cellsToList(cells []any) *starlark.List {
	values := make([]starlark.Value, len(cells))
	for i, c := range cells {
		values[i] = cellToValue(c)
	}
	return starlark.NewList(values)
}

func valuesToCells(iterable starlark.Iterable) ([]any, error) {
	it := iterable.Iterate()
	defer it.Done()
	var cells []any
	var v starlark.Value
	for it.Next(&v) {
		switch x := v.(type) {
		case starlark.NoneType:
			cells = append(cells, nil)
		case starlark.String:
			cells = append(cells, string(x))
		case starlark.Int:
			if i, ok := x.Int64(); ok {
				cells = append(cells, i)
			} else {
				cells = append(cells, float64(x.Float()))
			}
		case starlark.Float:
			cells = append(cells, float64(x))
		case starlark.Bool:
			cells = append(cells, bool(x))
		default:
			return nil, fmt.Errorf("unsupported cell value of type %s", v.Type())
		}
	}
	return cells, nil
}

func stringsToList(items []string) *starlark.List {
	values := make([]starlark.Value, len(items))
	for i, s := range items {
		values[i] = starlark.String(s)
	}
	return starlark.NewList(values)
}

func stringList(l *starlark.List) ([]string, error) {
	out := make([]string, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		s, ok := starlark.AsString(l.Index(i))
		if !ok {
			return nil, fmt.Errorf("expected column name, got %s", l.Index(i).Type())
		}
		out = append(out, s)
	}
	return out, nil
}

// floats converts a sequence of numbers for plotting. NaN stands in for
// None.
func floats(name string, v starlark.Value) ([]float64, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: expected a sequence of numbers, got %s", name, v.Type())
	}
	it := iterable.Iterate()
	defer it.Done()
	var out []float64
	var x starlark.Value
	for it.Next(&x) {
		switch n := x.(type) {
		case starlark.Int:
			out = append(out, float64(n.Float()))
		case starlark.Float:
			out = append(out, float64(n))
		case starlark.Bool:
			if n {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		case starlark.NoneType:
			out = append(out, math.NaN())
		default:
			return nil, fmt.Errorf("%s: expected a number, got %s", name, x.Type())
		}
	}
	return out, nil
}

// labels converts a sequence to display strings.
func labels(v starlark.Value) ([]string, bool) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, false
	}
	if _, isString := v.(starlark.String); isString {
		return nil, false
	}
	it := iterable.Iterate()
	defer it.Done()
	var out []string
	var x starlark.Value
	for it.Next(&x) {
		if s, ok := starlark.AsString(x); ok {
			out = append(out, s)
		} else {
			out = append(out, x.String())
		}
	}
	return out, true
}
