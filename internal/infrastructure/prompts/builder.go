package prompts

import (
	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

var _ output.PromptBuilder = (*Builder)(nil)

// Builder binds a Generator to one database dialect.
type Builder struct {
	gen     *Generator
	dialect string
}

func NewBuilder(gen *Generator, dialect string) *Builder {
	return &Builder{gen: gen, dialect: dialect}
}

func (b *Builder) Build(query string, tools []entity.ToolSpec, transcript *entity.Transcript) (string, error) {
	return b.gen.Generate(tools, b.dialect, query, RenderTranscript(transcript, tools))
}
