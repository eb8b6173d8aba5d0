package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"chatcore/internal/protocol"
	"chatcore/internal/types"
)

// TurnRequest is one user utterance sent to the agent runner.
type TurnRequest struct {
	UserID    string
	SessionID string
	Text      string
}

// TurnResult is the folded outcome of a full /run stream: the final agent
// text, any products surfaced by tool responses, the tool activity, and
// whether the turn ended in a hand-off to a human agent.
type TurnResult struct {
	Text      string
	Products  []types.Product
	ToolCalls []types.Event
	Events    []types.Event
	HandOff   bool
}

type runRequest struct {
	AppName    string     `json:"appName"`
	UserID     string     `json:"userId"`
	SessionID  string     `json:"sessionId"`
	NewMessage runMessage `json:"newMessage"`
	Streaming  bool       `json:"streaming"`
}

type runMessage struct {
	Role  string       `json:"role"`
	Parts []runMsgPart `json:"parts"`
}

type runMsgPart struct {
	Text string `json:"text"`
}

// RunTurn streams one turn and folds the frames into a TurnResult. onEvent,
// when non-nil, observes every classified event as it arrives so callers can
// render live activity. Later full-text frames replace earlier snapshots; a
// final text equal to the pause sentinel is reported as HandOff with the
// text suppressed.
func (c *Client) RunTurn(ctx context.Context, req TurnRequest, onEvent func(types.Event)) (*TurnResult, error) {
	body, err := json.Marshal(runRequest{
		AppName:   c.appName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		NewMessage: runMessage{
			Role:  "user",
			Parts: []runMsgPart{{Text: req.Text}},
		},
		Streaming: true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	result := &TurnResult{}
	scanErr := scanSSE(resp.Body, func(payload string) {
		var frame types.Frame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			c.log.Debug().Str("payload", payload).Msg("skipping malformed run frame")
			return
		}
		frame.Raw = json.RawMessage(payload)

		event := protocol.Classify(frame)
		result.Events = append(result.Events, event)
		if onEvent != nil {
			onEvent(event)
		}
		c.foldEvent(result, event)
	})
	if scanErr != nil {
		// A cancelled turn is the caller's doing, not a protocol failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, scanErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if result.Text == protocol.AIPausedSentinel {
		result.Text = ""
		result.HandOff = true
	}
	return result, nil
}

func (c *Client) foldEvent(result *TurnResult, event types.Event) {
	switch event.Kind {
	case types.EventFunctionCall:
		result.ToolCalls = append(result.ToolCalls, event)
	case types.EventFunctionResponse:
		result.ToolCalls = append(result.ToolCalls, event)
		if products := protocol.ExtractProducts(event.Response); len(products) > 0 {
			result.Products = append(result.Products, products...)
		}
	case types.EventText, types.EventTextPartial:
		// Each text frame is a fresh snapshot of the answer so far.
		result.Text = event.Text
	}
}
