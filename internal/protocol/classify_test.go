package protocol

import (
	"testing"

	"chatcore/internal/types"
)

func textFrame(text string, partial bool) types.Frame {
	return types.Frame{
		Partial: partial,
		Content: &types.Content{Parts: []types.Part{{Text: text}}},
	}
}

func TestClassifyTransferDiscardsText(t *testing.T) {
	frame := types.Frame{
		Content: &types.Content{Parts: []types.Part{
			{Text: "Routing you to our product specialist."},
			{FunctionCall: &types.FunctionCall{Name: "transfer_to_agent", Args: map[string]any{"agent_name": "product_agent"}}},
		}},
	}

	event := Classify(frame)
	if event.Kind != types.EventFunctionCall {
		t.Fatalf("kind = %s, want %s", event.Kind, types.EventFunctionCall)
	}
	if !event.Transfer {
		t.Fatalf("expected transfer flag")
	}
	if event.Text != "" {
		t.Fatalf("transfer frame leaked text: %q", event.Text)
	}
}

func TestClassifyFunctionCallBeatsText(t *testing.T) {
	frame := types.Frame{
		Content: &types.Content{Parts: []types.Part{
			{Text: "Let me look that up."},
			{FunctionCall: &types.FunctionCall{Name: "search_products", Args: map[string]any{"query": "crv"}}},
		}},
	}

	event := Classify(frame)
	if event.Kind != types.EventFunctionCall {
		t.Fatalf("kind = %s, want %s", event.Kind, types.EventFunctionCall)
	}
	if event.Name != "search_products" {
		t.Fatalf("name = %q", event.Name)
	}
	if event.Transfer {
		t.Fatalf("plain call flagged as transfer")
	}
}

func TestClassifyFunctionResponse(t *testing.T) {
	frame := types.Frame{
		Content: &types.Content{Parts: []types.Part{
			{FunctionResponse: &types.FunctionResponse{Name: "search_products", Response: map[string]any{"result": "ok"}}},
		}},
	}

	event := Classify(frame)
	if event.Kind != types.EventFunctionResponse {
		t.Fatalf("kind = %s, want %s", event.Kind, types.EventFunctionResponse)
	}
	if event.Response["result"] != "ok" {
		t.Fatalf("response not retained: %+v", event.Response)
	}
}

func TestClassifyTextAndPartial(t *testing.T) {
	event := Classify(textFrame("Hi there!", false))
	if event.Kind != types.EventText || event.Text != "Hi there!" {
		t.Fatalf("unexpected event: %+v", event)
	}

	event = Classify(textFrame("Hi th", true))
	if event.Kind != types.EventTextPartial {
		t.Fatalf("kind = %s, want %s", event.Kind, types.EventTextPartial)
	}
}

func TestClassifyEmptyFrameIsThinking(t *testing.T) {
	for _, frame := range []types.Frame{
		{},
		{Content: &types.Content{}},
		{Content: &types.Content{Parts: []types.Part{{Text: "   "}}}},
	} {
		event := Classify(frame)
		if event.Kind != types.EventThinking {
			t.Fatalf("kind = %s, want %s for %+v", event.Kind, types.EventThinking, frame)
		}
	}
}
