package output

import "github.com/Neural-Bridge/sql-analyst/internal/domain/entity"

// PromptBuilder renders the planner prompt for the next step of a run.
type PromptBuilder interface {
	Build(query string, tools []entity.ToolSpec, transcript *entity.Transcript) (string, error)
}
