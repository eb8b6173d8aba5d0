package types

// Status is the single active conversation status. It is mutated only by the
// session orchestrator.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLoading    Status = "loading"
	StatusStreaming  Status = "streaming"
	StatusHumanMode  Status = "human_mode"
	StatusRecovering Status = "recovering"
)
