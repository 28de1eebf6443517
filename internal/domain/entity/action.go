package entity

// Action is the single decision extracted from one planner completion.
// The set of implementations is closed: ToolCall, FinalAnswer and Malformed.
type Action interface {
	isAction()
	Kind() ActionKind
}

type ActionKind string

const (
	ActionToolCall    ActionKind = "tool_call"
	ActionFinalAnswer ActionKind = "final_answer"
	ActionMalformed   ActionKind = "malformed"
)

type ToolCall struct {
	Thought  string
	Name     ToolName
	RawInput string
}

func (ToolCall) isAction()        {}
func (ToolCall) Kind() ActionKind { return ActionToolCall }

type FinalAnswer struct {
	Thought string
	Text    string
}

func (FinalAnswer) isAction()        {}
func (FinalAnswer) Kind() ActionKind { return ActionFinalAnswer }

// Malformed carries the completion that could not be classified and the
// reason, so the next prompt can ask the planner to correct itself.
type Malformed struct {
	RawText string
	Reason  string
}

func (Malformed) isAction()        {}
func (Malformed) Kind() ActionKind { return ActionMalformed }
