// Package client speaks to the remote conversational-agent service: session
// store calls, the streaming /run exchange, and the /listen push stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatcore/internal/types"
)

type Client struct {
	baseURL string
	appName string
	http    *http.Client
	// stream requests must not inherit the JSON timeout
	streamHTTP *http.Client
	log        zerolog.Logger
}

func New(baseURL, appName string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		appName: strings.TrimSpace(appName),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		streamHTTP: &http.Client{},
		log:        log,
	}
}

type createSessionRequest struct {
	AppName string         `json:"app_name"`
	UserID  string         `json:"user_id"`
	State   map[string]any `json:"state,omitempty"`
}

// CreateSession registers a new conversation with the session store service.
func (c *Client) CreateSession(ctx context.Context, userID string, state map[string]any) (*types.SessionRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	var record types.SessionRecord
	req := createSessionRequest{AppName: c.appName, UserID: userID, State: state}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions", req, &record); err != nil {
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, errors.New("session service returned no id")
	}
	return &record, nil
}

// GetSession fetches a stored session with its event history. A not-found
// session surfaces as an *APIError with StatusCode 404.
func (c *Client) GetSession(ctx context.Context, userID, sessionID string) (*types.SessionRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}
	path := fmt.Sprintf("/sessions/%s?user_id=%s&app_name=%s",
		url.PathEscape(sessionID), url.QueryEscape(userID), url.QueryEscape(c.appName))
	var record types.SessionRecord
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	message := payload.Error
	if message == "" {
		message = payload.Detail
	}
	if message == "" {
		message = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an API not-found response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
