package types

// EventKind is the closed set of classifications for a protocol frame.
type EventKind string

const (
	EventFunctionCall     EventKind = "function_call"
	EventFunctionResponse EventKind = "function_response"
	EventText             EventKind = "text"
	EventTextPartial      EventKind = "text_partial"
	EventThinking         EventKind = "thinking"
)

// Event is the typed view of one classified frame. The raw frame is retained
// for traceability but excluded from persistence.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Text     string         `json:"text,omitempty"`
	Transfer bool           `json:"transfer,omitempty"`
	Frame    Frame          `json:"-"`
}

// IsToolEvent reports whether the event should surface in tool-call history.
func (e Event) IsToolEvent() bool {
	return e.Kind == EventFunctionCall || e.Kind == EventFunctionResponse
}
