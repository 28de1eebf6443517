package entity

type ToolName string

const (
	ToolListTables     ToolName = "list_tables"
	ToolDescribeTables ToolName = "describe_tables"
	ToolQueryDatabase  ToolName = "query_database"
	ToolVisualizeData  ToolName = "visualize_data"
)

func (t ToolName) String() string {
	return string(t)
}

// ToolSpec is what the planner sees of a tool. Name is matched verbatim by
// the action parser.
type ToolSpec struct {
	Name          ToolName
	Description   string
	InputContract string
	// Artifact marks tools whose observation is renderable markup rather
	// than text for the planner.
	Artifact bool
}
