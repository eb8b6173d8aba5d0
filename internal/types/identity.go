package types

// Identity is the durable conversation identity. UserID never changes once
// resolved; SessionID is cleared on reset, decline, or failed recovery.
type Identity struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}
