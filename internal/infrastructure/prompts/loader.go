package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed planner.txt
var PlannerPrompt string

const DefaultInstructions = `You are an intelligent and advanced decision-making assistant, your primary function is to sequentially determine the next SQL actions required to directly achieve the results specified in the user's input.
- Before reaching the final answer, use visualization tools to help the user understand the result.
- In the final answer summarize the data in a way that answers the question.`

// DefaultRules are appended after the transcript.
var DefaultRules = []string{
	"You MUST double check your query before executing it.\nIf you get an error while executing a query, rewrite the query and try again.\nIf the query executes successfully, but the output is not as expected, rewrite the query and try again.",
	`DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.
If DML statements are requested by users, just return and reply "I'm not able to help with that".`,
	"Make sure to add necessary transformation for functions, e.g. in {{ .Dialect }}, if date format is YYYY/MM/DD, you should convert it to YYYY-MM-DD using REPLACE.",
	"If there is an ambiguous reference to the data in the question, just return to ask for clarification.",
	`If the question does not seem related to the database, just return "I don't know" as the answer.`,
	"When there is a successful SQL execution that produces a table good to visualize, use the visualize_data tool to visualize the data.\nThe final answer should summarize the SQL outputs in markdown, not the visualization outputs.",
}

// Override replaces parts of the planner prompt. Empty fields keep the
// defaults.
type Override struct {
	Instructions string   `yaml:"instructions"`
	Rules        []string `yaml:"rules"`
}

func LoadOverride(path string) (*Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	var o Override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	return &o, nil
}
