package types

import "time"

type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Message is one entry of the conversation transcript. The transcript is
// append-only within a conversation; recovery and reset replace it wholesale.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Products  []Product `json:"products,omitempty"`
	ToolCalls []Event   `json:"tool_calls,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
