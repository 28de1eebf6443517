// Package action turns one planner completion into exactly one entity.Action.
package action

import (
	"fmt"
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

const (
	thoughtKey     = "Thought:"
	actionKey      = "Action:"
	actionInputKey = "Action Input:"
	observationKey = "Observation:"
	finalAnswerKey = "Final Answer:"
)

// Parser classifies completions against a fixed set of tool names.
type Parser struct {
	tools map[entity.ToolName]bool
}

func NewParser(specs []entity.ToolSpec) *Parser {
	tools := make(map[entity.ToolName]bool, len(specs))
	for _, s := range specs {
		tools[s.Name] = true
	}
	return &Parser{tools: tools}
}

type line struct {
	text string // with leading whitespace removed
}

func (l line) value(key string) string {
	return strings.TrimSpace(strings.TrimPrefix(l.text, key))
}

func (l line) is(key string) bool { return strings.HasPrefix(l.text, key) }

func (l line) isKey() bool {
	return l.is(thoughtKey) || l.is(actionKey) || l.is(actionInputKey) ||
		l.is(observationKey) || l.is(finalAnswerKey)
}

func split(raw []string) []line {
	lines := make([]line, len(raw))
	for i, r := range raw {
		lines[i] = line{text: strings.TrimLeft(r, " \t")}
	}
	return lines
}

func find(lines []line, key string) []int {
	var idx []int
	for i, l := range lines {
		if l.is(key) {
			idx = append(idx, i)
		}
	}
	return idx
}

// block returns the value on lines[start] after key plus every following
// line until stop reports true.
func block(lines []line, start int, key string, stop func(line) bool, raw []string) string {
	parts := []string{strings.TrimPrefix(lines[start].text, key)}
	for i := start + 1; i < len(lines); i++ {
		if stop(lines[i]) {
			break
		}
		parts = append(parts, raw[i])
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Parse never fails: completions that do not follow the format come back
// as entity.Malformed with the reason.
func (p *Parser) Parse(completion string) entity.Action {
	raw := strings.Split(strings.ReplaceAll(completion, "\r\n", "\n"), "\n")
	lines := split(raw)
	malformed := func(format string, args ...any) entity.Action {
		return entity.Malformed{RawText: completion, Reason: fmt.Sprintf(format, args...)}
	}

	thoughts := find(lines, thoughtKey)
	if len(thoughts) == 0 {
		return malformed("missing '%s' line", strings.TrimSuffix(thoughtKey, ":"))
	}
	thought := block(lines, thoughts[0], thoughtKey, line.isKey, raw)

	if finals := find(lines, finalAnswerKey); len(finals) > 0 {
		text := block(lines, finals[0], finalAnswerKey, func(l line) bool {
			return l.is(actionKey) || l.is(actionInputKey) || l.is(observationKey)
		}, raw)
		if text == "" {
			return malformed("'Final Answer:' is empty")
		}
		return entity.FinalAnswer{Thought: thought, Text: text}
	}

	actions := find(lines, actionKey)
	switch {
	case len(actions) == 0:
		return malformed("missing 'Action:' or 'Final Answer:' line")
	case len(actions) > 1:
		return malformed("found %d 'Action:' lines, only one action per step is allowed", len(actions))
	}
	inputs := find(lines, actionInputKey)
	switch {
	case len(inputs) == 0:
		return malformed("missing 'Action Input:' line")
	case len(inputs) > 1:
		return malformed("found %d 'Action Input:' lines, only one action per step is allowed", len(inputs))
	case inputs[0] < actions[0]:
		return malformed("'Action Input:' must follow 'Action:'")
	}

	name := entity.ToolName(strings.Trim(lines[actions[0]].value(actionKey), "`"))
	if !p.tools[name] {
		return malformed("unknown tool '%s'", name)
	}
	input := block(lines, inputs[0], actionInputKey, func(l line) bool {
		return l.is(observationKey)
	}, raw)
	return entity.ToolCall{Thought: thought, Name: name, RawInput: input}
}
