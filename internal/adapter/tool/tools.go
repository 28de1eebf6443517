package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/chart"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/sqlguard"
)

const (
	DefaultMaxRows = 200
	sampleRows     = 3
)

type ListTablesTool struct {
	db     output.DatabasePort
	logger output.LoggerPort
}

func NewListTablesTool(db output.DatabasePort, logger output.LoggerPort) *ListTablesTool {
	return &ListTablesTool{db: db, logger: logger}
}

func (t *ListTablesTool) Spec() entity.ToolSpec {
	return entity.ToolSpec{
		Name:          entity.ToolListTables,
		Description:   "Comma separated list of the names of the tables in the database.",
		InputContract: "an empty string",
	}
}

func (t *ListTablesTool) Execute(ctx context.Context, _ string) (string, error) {
	tables, err := t.db.ListTables(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(tables, ","), nil
}

type QueryDatabaseTool struct {
	db      output.DatabasePort
	logger  output.LoggerPort
	timeout time.Duration
	maxRows int
}

// NewQueryDatabaseTool runs each query under timeout (0 means no timeout)
// and shows at most maxRows rows.
func NewQueryDatabaseTool(db output.DatabasePort, logger output.LoggerPort, timeout time.Duration, maxRows int) *QueryDatabaseTool {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &QueryDatabaseTool{db: db, logger: logger, timeout: timeout, maxRows: maxRows}
}

func (t *QueryDatabaseTool) Spec() entity.ToolSpec {
	return entity.ToolSpec{
		Name: entity.ToolQueryDatabase,
		Description: fmt.Sprintf("Queries the %s database with a single SELECT statement and returns the result "+
			"as a dictionary where the key is the column name and the value is the list of column values.", t.db.Dialect()),
		InputContract: "one SQL SELECT statement, optionally inside a ```sql fenced block",
	}
}

func (t *QueryDatabaseTool) Execute(ctx context.Context, input string) (string, error) {
	stmt, err := sqlguard.Guard(input)
	if err != nil {
		return "", err
	}
	return t.run(ctx, stmt)
}

func (t *QueryDatabaseTool) run(ctx context.Context, stmt sqlguard.Statement) (string, error) {
	qctx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	result, err := t.db.Execute(qctx, stmt)
	if err != nil {
		if qctx.Err() != nil {
			return "", fmt.Errorf("query interrupted: %w", qctx.Err())
		}
		return "", err
	}
	t.logger.Debug("query returned", "rows", len(result.Rows), "columns", len(result.Columns))
	return FormatResult(result, t.maxRows), nil
}

type DescribeTablesTool struct {
	query  *QueryDatabaseTool
	logger output.LoggerPort
}

func NewDescribeTablesTool(query *QueryDatabaseTool, logger output.LoggerPort) *DescribeTablesTool {
	return &DescribeTablesTool{query: query, logger: logger}
}

func (t *DescribeTablesTool) Spec() entity.ToolSpec {
	return entity.ToolSpec{
		Name:          entity.ToolDescribeTables,
		Description:   "Retrieves the columns and up to 3 sample rows of the specified tables.",
		InputContract: "comma separated table names, e.g. Album,Track",
	}
}

func (t *DescribeTablesTool) Execute(ctx context.Context, input string) (string, error) {
	tables := splitTableNames(input)
	if len(tables) == 0 {
		return "", errors.New("no table names given, expected a comma separated list")
	}

	var b strings.Builder
	b.WriteString("Following are the tables with sample data, where the dictionary key is column name, ")
	fmt.Fprintf(&b, "and data is limited to %d rows:\n\n", sampleRows)
	for _, table := range tables {
		fmt.Fprintf(&b, "#### Table: %s\n\n", table)
		sample, err := t.query.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, sampleRows))
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return "", err
			}
			sample = "Error: " + err.Error()
		}
		b.WriteString(sample)
		b.WriteString("\n\n\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func splitTableNames(input string) []string {
	var names []string
	for _, part := range strings.Split(input, ",") {
		name := strings.Trim(strings.TrimSpace(part), "`\"'[]")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

type VisualizeDataTool struct {
	sandbox *chart.Sandbox
	logger  output.LoggerPort
}

func NewVisualizeDataTool(sandbox *chart.Sandbox, logger output.LoggerPort) *VisualizeDataTool {
	return &VisualizeDataTool{sandbox: sandbox, logger: logger}
}

const visualizeContract = `<df>{"column": [values, ...], ...}</df>
` + "```python" + `
import matplotlib.pyplot as plt
import base64
from io import BytesIO

# df is already initialized from the <df> block, do not create it again
fig, ax = plt.subplots(figsize=(7, 4))
ax.bar(df["column"], df["other_column"])
buf = BytesIO()
plt.savefig(buf, format="svg")
html_str = '<img src="data:image/svg+xml;base64,' + base64.b64encode(buf.getvalue()).decode("utf-8") + '"/>'
` + "```"

func (t *VisualizeDataTool) Spec() entity.ToolSpec {
	return entity.ToolSpec{
		Name: entity.ToolVisualizeData,
		Description: "Visualizes data with matplotlib-style charting code and returns the chart as an html string. " +
			"Usually run after a successful query. The code may only import " + strings.Join(t.sandbox.Modules(), ", ") +
			"; it must not call plt.show(), must save the figure to a BytesIO buffer and assign the html to html_str. " +
			"Figure size should not exceed 7x7.",
		InputContract: visualizeContract,
		Artifact:      true,
	}
}

func (t *VisualizeDataTool) Execute(ctx context.Context, input string) (string, error) {
	html, err := t.sandbox.Render(ctx, input)
	if err != nil {
		return "", err
	}
	t.logger.Debug("chart rendered", "bytes", len(html))
	return html, nil
}
