package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

type PlannerPromptData struct {
	Instructions string
	Rules        []string
	Tools        []entity.ToolSpec
	ToolNames    []string
	Dialect      string
	Query        string
	Transcript   string
}

// Generator renders the planner prompt. Rules are templates themselves and
// see the same data, so a rule may mention {{ .Dialect }}.
type Generator struct {
	tmpl         *template.Template
	instructions string
	rules        []*template.Template
}

func NewGenerator(baseTemplate string, override *Override) (*Generator, error) {
	tmpl, err := template.New("planner").Funcs(sprig.TxtFuncMap()).Parse(baseTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse planner template: %w", err)
	}

	instructions, rules := DefaultInstructions, DefaultRules
	if override != nil {
		if strings.TrimSpace(override.Instructions) != "" {
			instructions = override.Instructions
		}
		if len(override.Rules) > 0 {
			rules = override.Rules
		}
	}

	g := &Generator{tmpl: tmpl, instructions: instructions}
	for i, rule := range rules {
		t, err := template.New(fmt.Sprintf("rule%d", i)).Funcs(sprig.TxtFuncMap()).Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("parse rule %d: %w", i+1, err)
		}
		g.rules = append(g.rules, t)
	}
	return g, nil
}

func (g *Generator) Generate(tools []entity.ToolSpec, dialect, query, transcript string) (string, error) {
	data := PlannerPromptData{
		Instructions: g.instructions,
		Tools:        tools,
		Dialect:      dialect,
		Query:        query,
		Transcript:   transcript,
	}
	for _, t := range tools {
		data.ToolNames = append(data.ToolNames, t.Name.String())
	}
	for _, rule := range g.rules {
		var buf bytes.Buffer
		if err := rule.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("render %s: %w", rule.Name(), err)
		}
		data.Rules = append(data.Rules, buf.String())
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render planner prompt: %w", err)
	}
	return buf.String(), nil
}
