package prompts

import (
	"fmt"
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

// RenderTranscript writes the steps so far in the same Thought/Action/
// Observation format the planner is asked to produce. Artifact observations
// are summarized; the planner only needs to know the chart was made.
func RenderTranscript(t *entity.Transcript, tools []entity.ToolSpec) string {
	artifacts := make(map[entity.ToolName]bool)
	for _, spec := range tools {
		if spec.Artifact {
			artifacts[spec.Name] = true
		}
	}

	var b strings.Builder
	for _, step := range t.Steps {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch a := step.Action.(type) {
		case entity.ToolCall:
			fmt.Fprintf(&b, "Thought: %s\nAction: %s\nAction Input: %s\n", a.Thought, a.Name, a.RawInput)
			observation := step.Observation
			if artifacts[a.Name] && !strings.HasPrefix(observation, "Error:") {
				observation = fmt.Sprintf("Chart rendered and shown to the user (%d bytes of html).", len(observation))
			}
			fmt.Fprintf(&b, "Observation: %s", observation)
		case entity.Malformed:
			fmt.Fprintf(&b, "Invalid output:\n%s\nObservation: %s", strings.TrimSpace(a.RawText), step.Observation)
		case entity.FinalAnswer:
			fmt.Fprintf(&b, "Thought: %s\nFinal Answer: %s", a.Thought, a.Text)
		}
	}
	return b.String()
}
