package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chatcore/internal/types"
)

// Listen opens the push stream for a session and delivers decoded events on
// the returned channel. The channel is closed when the stream ends for any
// reason; reconnecting is the caller's job. The returned cancel func tears
// down the underlying request.
func (c *Client) Listen(ctx context.Context, sessionID, userID string) (<-chan types.PushEvent, func(), error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, fmt.Errorf("session id is required")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	path := fmt.Sprintf("/listen/%s?user_id=%s", url.PathEscape(sessionID), url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := decodeAPIError(resp)
		resp.Body.Close()
		cancel()
		return nil, nil, err
	}

	events := make(chan types.PushEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		_ = scanSSE(resp.Body, func(payload string) {
			var event types.PushEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				// The service greets each connection with a non-JSON
				// handshake frame. Skip anything unparsable.
				c.log.Debug().Str("payload", payload).Msg("skipping malformed push frame")
				return
			}
			select {
			case events <- event:
			case <-streamCtx.Done():
			}
		})
	}()

	return events, cancel, nil
}
