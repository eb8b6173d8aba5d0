package types

// SessionEvent is one stored history entry returned by the session service.
type SessionEvent struct {
	ID        string   `json:"id,omitempty"`
	Author    string   `json:"author"`
	Content   *Content `json:"content,omitempty"`
	Timestamp float64  `json:"timestamp,omitempty"`
}

// SessionRecord is a session as returned by the session store service.
type SessionRecord struct {
	ID     string         `json:"id"`
	UserID string         `json:"user_id,omitempty"`
	State  map[string]any `json:"state,omitempty"`
	Events []SessionEvent `json:"events,omitempty"`
}
