package userinteraction

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/chart"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

const (
	maxTableRows   = 20
	maxPlainLength = 400
	tableHeader    = "#### Table: "
)

var _ output.RendererPort = (*Console)(nil)

// Console prints a run to a terminal. Tables are drawn from result dumps,
// charts are written to chartDir as html files.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	chartDir string
	style    string
	charts   int
	logger   output.LoggerPort
}

func NewConsole(out io.Writer, chartDir string, logger output.LoggerPort) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out, chartDir: chartDir, style: "dark", logger: logger}
}

// WithStyle sets the glamour style used for the final answer ("dark",
// "light", "notty").
func (c *Console) WithStyle(style string) *Console {
	c.style = style
	return c
}

func (c *Console) OnThought(thought string) {
	if strings.TrimSpace(thought) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	color.New(color.FgBlue).Fprint(c.out, "\n💭 Thought: ")
	color.New(color.Faint).Fprintln(c.out, truncate(thought, maxPlainLength))
}

func (c *Console) OnToolStart(name entity.ToolName, formattedInput string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	icon, title := toolDisplay(name)
	color.New(color.FgYellow, color.Bold).Fprintf(c.out, "\n%s %s\n", icon, title)
	if formattedInput != "" {
		for _, line := range strings.Split(formattedInput, "\n") {
			color.New(color.Faint).Fprintf(c.out, "   %s\n", line)
		}
	}
}

func (c *Console) OnToolEnd(name entity.ToolName, observation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isError(observation) {
		color.New(color.FgRed).Fprint(c.out, "❌ ")
		color.New(color.Faint).Fprintln(c.out, truncate(observation, maxPlainLength))
		return
	}

	green := color.New(color.FgGreen)
	switch name {
	case entity.ToolVisualizeData:
		path, err := c.saveChart(observation)
		if err != nil {
			c.logger.Warn("chart not saved", "error", err)
			green.Fprintf(c.out, "✓ chart rendered (%d bytes)\n", len(observation))
			return
		}
		green.Fprintf(c.out, "✓ chart saved to %s\n", path)
	case entity.ToolListTables:
		green.Fprintf(c.out, "✓ %s\n", strings.ReplaceAll(observation, ",", ", "))
	case entity.ToolDescribeTables:
		for _, section := range strings.Split(observation, tableHeader)[1:] {
			name, body, _ := strings.Cut(section, "\n")
			green.Fprintf(c.out, "✓ %s\n", name)
			c.writeDump(strings.TrimSpace(body))
		}
	case entity.ToolQueryDatabase:
		c.writeDump(observation)
	default:
		green.Fprintf(c.out, "✓ %s\n", truncate(observation, maxPlainLength))
	}
}

func (c *Console) OnFinish(answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	color.New(color.FgCyan, color.Bold).Fprintln(c.out, "\n━━━ Answer ━━━")
	styled, err := glamour.Render(answer, c.style)
	if err != nil {
		fmt.Fprintln(c.out, answer)
		return
	}
	fmt.Fprint(c.out, styled)
}

func (c *Console) OnFailure(reason entity.TerminationReason, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	color.New(color.FgRed, color.Bold).Fprintf(c.out, "\n✗ %s: %s\n", reason, message)
}

// writeDump draws a query_database dump as a table, or prints it as is
// when it does not parse.
func (c *Console) writeDump(dump string) {
	body, note, _ := strings.Cut(dump, "\n(")
	table, err := chart.ParseTable(body)
	if err != nil {
		color.New(color.FgGreen).Fprintf(c.out, "✓ %s\n", truncate(dump, maxPlainLength))
		return
	}

	w := tablewriter.NewWriter(c.out)
	w.SetHeader(table.Columns())
	w.SetAutoFormatHeaders(false)
	rows := table.NumRows()
	for r := 0; r < rows && r < maxTableRows; r++ {
		row := make([]string, 0, len(table.Columns()))
		for _, col := range table.Columns() {
			values, _ := table.Column(col)
			row = append(row, cellText(values[r]))
		}
		w.Append(row)
	}
	w.Render()

	if rows > maxTableRows {
		color.New(color.Faint).Fprintf(c.out, "   ... %d more rows\n", rows-maxTableRows)
	}
	if note != "" {
		color.New(color.Faint).Fprintf(c.out, "   (%s\n", note)
	}
}

func (c *Console) saveChart(html string) (string, error) {
	if c.chartDir == "" {
		return "", fmt.Errorf("no chart directory configured")
	}
	if err := os.MkdirAll(c.chartDir, 0o755); err != nil {
		return "", err
	}
	c.charts++
	name := fmt.Sprintf("%s_chart_%d.html", time.Now().Format("20060102_150405"), c.charts)
	path := filepath.Join(c.chartDir, name)
	page := "<!DOCTYPE html>\n<html><body style=\"text-align:center\">\n" + html + "\n</body></html>\n"
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func toolDisplay(name entity.ToolName) (string, string) {
	displays := map[entity.ToolName][2]string{
		entity.ToolListTables:     {"📋", "List tables"},
		entity.ToolDescribeTables: {"🔍", "Describe tables"},
		entity.ToolQueryDatabase:  {"🗄️", "Query database"},
		entity.ToolVisualizeData:  {"📊", "Visualize data"},
	}
	if display, ok := displays[name]; ok {
		return display[0], display[1]
	}
	return "🔧", name.String()
}

func cellText(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func isError(observation string) bool {
	return strings.HasPrefix(observation, "Error:")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
