// Package protocol classifies raw streaming frames into typed events and
// extracts structured payloads from tool responses.
package protocol

import (
	"strings"

	"chatcore/internal/types"
)

// AIPausedSentinel is the reserved text the backend emits instead of a reply
// when a human agent has taken over the conversation. It is compared exactly
// once, at turn finalization; it never reaches the transcript.
const AIPausedSentinel = "__AI_PAUSED__"

// transferCallName is the internal routing call emitted when the root agent
// hands a turn to a sub-agent. Text co-occurring with it is routing chatter.
const transferCallName = "transfer_to_agent"

// Classify reduces one frame to a single typed event. Control-flow parts
// (function calls, then function responses) take precedence over narrative
// text in the same frame; a transfer call additionally discards any text
// riding along with it. A frame with no usable part classifies as thinking,
// which is an absence marker and is never rendered.
func Classify(frame types.Frame) types.Event {
	parts := frame.Parts()

	for _, part := range parts {
		if part.FunctionCall != nil && part.FunctionCall.Name == transferCallName {
			return types.Event{
				Kind:     types.EventFunctionCall,
				Name:     part.FunctionCall.Name,
				Args:     part.FunctionCall.Args,
				Transfer: true,
				Frame:    frame,
			}
		}
	}

	for _, part := range parts {
		if part.FunctionCall != nil {
			return types.Event{
				Kind:  types.EventFunctionCall,
				Name:  part.FunctionCall.Name,
				Args:  part.FunctionCall.Args,
				Frame: frame,
			}
		}
	}

	for _, part := range parts {
		if part.FunctionResponse != nil {
			return types.Event{
				Kind:     types.EventFunctionResponse,
				Name:     part.FunctionResponse.Name,
				Response: part.FunctionResponse.Response,
				Frame:    frame,
			}
		}
	}

	for _, part := range parts {
		if strings.TrimSpace(part.Text) == "" {
			continue
		}
		kind := types.EventText
		if frame.Partial {
			kind = types.EventTextPartial
		}
		return types.Event{Kind: kind, Text: part.Text, Frame: frame}
	}

	return types.Event{Kind: types.EventThinking, Frame: frame}
}
