package types

import "encoding/json"

// Frame is one unit of the /run streaming protocol. A frame carries zero or
// more parts; the partial flag marks intermediate text snapshots that are
// superseded by later frames in the same turn.
type Frame struct {
	Content *Content        `json:"content,omitempty"`
	Partial bool            `json:"partial,omitempty"`
	Author  string          `json:"author,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is a single content part. Exactly one of Text, FunctionCall, and
// FunctionResponse is expected to be set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

func (f Frame) Parts() []Part {
	if f.Content == nil {
		return nil
	}
	return f.Content.Parts
}
