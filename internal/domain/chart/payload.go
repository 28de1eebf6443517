package chart

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"go.starlark.net/syntax"
)

var (
	dataBlock = regexp.MustCompile(`(?s)<df>(.*?)</df>`)
	codeBlock = regexp.MustCompile("(?s)```python(.*?)```")
)

// Payload is a parsed visualize_data input.
type Payload struct {
	Data *Table
	Code string
}

// ParsePayload splits raw into its single <df> data block and single
// ```python code block. The data block must be a literal mapping of column
// name to values; it is parsed, never evaluated.
func ParsePayload(raw string) (*Payload, error) {
	datas := dataBlock.FindAllStringSubmatch(raw, -1)
	if len(datas) != 1 {
		return nil, blockCountError("data", len(datas))
	}
	codes := codeBlock.FindAllStringSubmatch(raw, -1)
	if len(codes) != 1 {
		return nil, blockCountError("code", len(codes))
	}

	table, err := ParseTable(datas[0][1])
	if err != nil {
		return nil, err
	}
	return &Payload{Data: table, Code: strings.TrimSpace(codes[0][1])}, nil
}

// ParseTable reads a literal such as {"a": [1, 2], "b": [3, 4]}. A column
// may also be a mapping of row index to value, as produced by a dataframe's
// to_dict().
func ParseTable(src string) (*Table, error) {
	expr, err := syntax.ParseExpr("data", strings.TrimSpace(src), 0)
	if err != nil {
		return nil, badShape("data is not a literal: %v", err)
	}
	value, err := literal(expr)
	if err != nil {
		return nil, badShape("%v", err)
	}
	mapping, ok := value.(orderedMap)
	if !ok {
		return nil, badShape("input is not data in dictionary format")
	}

	columns := make([]string, 0, len(mapping))
	data := make([][]any, 0, len(mapping))
	for _, entry := range mapping {
		name, ok := entry.key.(string)
		if !ok {
			name = fmt.Sprint(entry.key)
		}
		var cells []any
		switch v := entry.value.(type) {
		case []any:
			cells = v
		case orderedMap:
			cells = make([]any, 0, len(v))
			for _, e := range v {
				cells = append(cells, e.value)
			}
		default:
			return nil, badShape("column %q is not a list of values", name)
		}
		for _, cell := range cells {
			if _, nested := cell.([]any); nested {
				return nil, badShape("column %q contains a nested list", name)
			}
			if _, nested := cell.(orderedMap); nested {
				return nil, badShape("column %q contains a nested mapping", name)
			}
		}
		columns = append(columns, name)
		data = append(data, cells)
	}
	return NewTable(columns, data)
}

type mapEntry struct {
	key   any
	value any
}

type orderedMap []mapEntry

// literal converts a literal expression to Go values. Anything that would
// need evaluation (calls, names other than True/False/None, operators other
// than unary sign) is rejected.
func literal(expr syntax.Expr) (any, error) {
	switch e := expr.(type) {
	case *syntax.Literal:
		switch v := e.Value.(type) {
		case string:
			return v, nil
		case int64:
			return v, nil
		case *big.Int:
			f, _ := new(big.Float).SetInt(v).Float64()
			return f, nil
		case float64:
			return v, nil
		}
		return nil, fmt.Errorf("unsupported literal %s", e.Raw)
	case *syntax.Ident:
		switch e.Name {
		case "None":
			return nil, nil
		case "True":
			return true, nil
		case "False":
			return false, nil
		}
		return nil, fmt.Errorf("name %q is not a literal", e.Name)
	case *syntax.ParenExpr:
		return literal(e.X)
	case *syntax.UnaryExpr:
		x, err := literal(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case syntax.MINUS:
			switch n := x.(type) {
			case int64:
				return -n, nil
			case float64:
				return -n, nil
			}
		case syntax.PLUS:
			switch x.(type) {
			case int64, float64:
				return x, nil
			}
		}
		return nil, fmt.Errorf("operator %s is not allowed in data", e.Op)
	case *syntax.ListExpr:
		return literalList(e.List)
	case *syntax.TupleExpr:
		return literalList(e.List)
	case *syntax.DictExpr:
		out := make(orderedMap, 0, len(e.List))
		for _, item := range e.List {
			entry := item.(*syntax.DictEntry)
			k, err := literal(entry.Key)
			if err != nil {
				return nil, err
			}
			v, err := literal(entry.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, mapEntry{key: k, value: v})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expression %T is not a literal", expr)
	}
}

func literalList(items []syntax.Expr) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := literal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
