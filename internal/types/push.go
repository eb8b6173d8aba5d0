package types

// Push event types delivered on the /listen stream.
const (
	PushNewMessage      = "new_message"
	PushAIStatusChanged = "ai_status_changed"
	PushConnected       = "connected"
)

// PushEvent is one out-of-band notification: a human-agent message or an
// AI pause/resume change for the current session.
type PushEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Author    string `json:"author,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	AIEnabled bool   `json:"ai_enabled,omitempty"`
	AIPaused  bool   `json:"ai_paused,omitempty"`
	Message   string `json:"message,omitempty"`
}
