package action

import (
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/sqlguard"
)

// FormatInput renders a tool input for display.
func FormatInput(name entity.ToolName, raw string) string {
	switch name {
	case entity.ToolListTables:
		return ""
	case entity.ToolDescribeTables:
		var names []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
		return strings.Join(names, ", ")
	case entity.ToolQueryDatabase:
		return "```sql\n" + sqlguard.Extract(raw) + "\n```"
	default:
		return strings.TrimSpace(raw)
	}
}
