package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/client"
	"chatcore/internal/protocol"
	"chatcore/internal/types"
)

// Start resolves the durable identity and probes for a stored session. When
// the service still knows the session and it has visible history, the parsed
// transcript is held as a pending recovery offer; the conversation stays
// locked until the user confirms or declines. A stale or empty session is
// cleared silently.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.initializing = true
	o.status = types.StatusIdle
	o.messages = o.welcomeTranscript()
	o.mu.Unlock()
	o.notify()

	id := o.identity.Resolve(ctx, o.email)

	o.mu.Lock()
	o.userID = id.UserID
	o.mu.Unlock()

	if id.SessionID != "" {
		o.probeStoredSession(ctx, id.UserID, id.SessionID)
	}

	o.mu.Lock()
	o.initializing = false
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) probeStoredSession(ctx context.Context, userID, sessionID string) {
	o.mu.Lock()
	o.status = types.StatusRecovering
	o.mu.Unlock()
	o.notify()

	record, err := o.backend.GetSession(ctx, userID, sessionID)
	if err != nil {
		if client.IsNotFound(err) {
			o.log.Info().Str("session", sessionID).Msg("stored session expired")
		} else {
			o.log.Warn().Err(err).Str("session", sessionID).Msg("session probe failed")
		}
		o.dropStoredSession(ctx)
		return
	}

	history := parseHistory(record.Events)
	if len(history) == 0 {
		o.dropStoredSession(ctx)
		return
	}

	// Status stays recovering until the user confirms or declines.
	o.mu.Lock()
	o.sessionID = sessionID
	o.pendingRecovery = history
	o.mu.Unlock()
	o.notify()
}

// dropStoredSession forgets a session that no longer warrants recovery.
// The user id survives.
func (o *Orchestrator) dropStoredSession(ctx context.Context) {
	o.mu.Lock()
	o.sessionID = ""
	o.pendingRecovery = nil
	o.status = types.StatusIdle
	o.mu.Unlock()
	o.notify()

	if err := o.identity.ClearSession(ctx); err != nil {
		o.log.Warn().Err(err).Msg("stored session clear failed")
	}
}

// ConfirmRecovery restores the offered transcript and resumes the stored
// session, including its push stream.
func (o *Orchestrator) ConfirmRecovery(ctx context.Context) {
	o.mu.Lock()
	if len(o.pendingRecovery) == 0 {
		o.mu.Unlock()
		return
	}
	o.messages = append(o.welcomeTranscript(), o.pendingRecovery...)
	o.pendingRecovery = nil
	o.recovered = true
	o.status = types.StatusIdle
	sessionID := o.sessionID
	userID := o.userID
	o.mu.Unlock()
	o.notify()

	o.attachListener(sessionID, userID)
}

// DeclineRecovery abandons the stored session and starts clean. The user id
// is preserved.
func (o *Orchestrator) DeclineRecovery(ctx context.Context) {
	o.mu.Lock()
	if len(o.pendingRecovery) == 0 {
		o.mu.Unlock()
		return
	}
	o.pendingRecovery = nil
	o.sessionID = ""
	o.status = types.StatusIdle
	o.mu.Unlock()
	o.notify()

	if err := o.identity.ClearSession(ctx); err != nil {
		o.log.Warn().Err(err).Msg("declined session clear failed")
	}
}

// parseHistory turns stored session events into transcript messages. Entries
// without visible text are dropped, as are internal pause markers.
func parseHistory(events []types.SessionEvent) []types.Message {
	var messages []types.Message
	for _, event := range events {
		text := joinTextParts(event.Content)
		if text == "" {
			continue
		}
		role := types.RoleAgent
		if event.Author == "user" {
			role = types.RoleUser
		}
		id := event.ID
		if id == "" {
			id = uuid.NewString()
		}
		messages = append(messages, types.Message{
			ID:        id,
			Role:      role,
			Text:      text,
			Timestamp: timeFromUnixSeconds(event.Timestamp),
		})
	}
	return messages
}

func joinTextParts(content *types.Content) string {
	if content == nil {
		return ""
	}
	var parts []string
	for _, part := range content.Parts {
		text := strings.TrimSpace(part.Text)
		if text == "" || text == protocol.AIPausedSentinel {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

func timeFromUnixSeconds(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
