package entity

// LoopState is a state of the agent loop.
type LoopState string

const (
	StatePlanning  LoopState = "planning"
	StateActing    LoopState = "acting"
	StateObserving LoopState = "observing"
	StateDone      LoopState = "done"
	StateFailed    LoopState = "failed"
)

func (s LoopState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

func (s LoopState) String() string {
	return string(s)
}
