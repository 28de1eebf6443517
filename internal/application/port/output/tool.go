package output

import (
	"context"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

type ToolPort interface {
	Spec() entity.ToolSpec
	Execute(ctx context.Context, input string) (string, error)
}

type ToolRegistry interface {
	Register(tool ToolPort)
	Get(name entity.ToolName) (ToolPort, bool)
	ListTools() []entity.ToolSpec
	// Invoke never fails for tool errors; they come back as an "Error: ..."
	// observation. Only context cancellation is returned as an error.
	Invoke(ctx context.Context, name entity.ToolName, input string) (string, error)
}
