package userinteraction

import (
	"sync"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

var _ output.RendererPort = (*Recorder)(nil)

type EventKind string

const (
	EventThought   EventKind = "thought"
	EventToolStart EventKind = "tool_start"
	EventToolEnd   EventKind = "tool_end"
	EventFinish    EventKind = "finish"
	EventFailure   EventKind = "failure"
)

type Event struct {
	Kind   EventKind                `json:"kind"`
	Tool   entity.ToolName          `json:"tool,omitempty"`
	Reason entity.TerminationReason `json:"reason,omitempty"`
	Text   string                   `json:"text"`
}

// Recorder keeps the events of a run in order. It backs the HTTP API and
// tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) OnThought(thought string) {
	r.add(Event{Kind: EventThought, Text: thought})
}

func (r *Recorder) OnToolStart(name entity.ToolName, formattedInput string) {
	r.add(Event{Kind: EventToolStart, Tool: name, Text: formattedInput})
}

func (r *Recorder) OnToolEnd(name entity.ToolName, observation string) {
	r.add(Event{Kind: EventToolEnd, Tool: name, Text: observation})
}

func (r *Recorder) OnFinish(answer string) {
	r.add(Event{Kind: EventFinish, Text: answer})
}

func (r *Recorder) OnFailure(reason entity.TerminationReason, message string) {
	r.add(Event{Kind: EventFailure, Reason: reason, Text: message})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Artifacts returns the observations of successful calls to tool.
func (r *Recorder) Artifacts(tool entity.ToolName) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Kind == EventToolEnd && e.Tool == tool && !isError(e.Text) {
			out = append(out, e.Text)
		}
	}
	return out
}

// Tools lists the tool of every tool_start event.
func (r *Recorder) Tools() []entity.ToolName {
	var out []entity.ToolName
	for _, e := range r.Events() {
		if e.Kind == EventToolStart {
			out = append(out, e.Tool)
		}
	}
	return out
}
