package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/types"
)

// attachListener starts the supervised push stream for a session. Only one
// listener runs at a time; attaching replaces any previous one. The loop
// reconnects after a fixed delay on every disconnect and only stops when the
// listener context is cancelled.
func (o *Orchestrator) attachListener(sessionID, userID string) {
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	if o.listenerCancel != nil {
		o.listenerCancel()
	}
	o.listenerCancel = cancel
	o.mu.Unlock()

	go o.listenLoop(ctx, sessionID, userID)
}

func (o *Orchestrator) listenLoop(ctx context.Context, sessionID, userID string) {
	for {
		events, cancel, err := o.backend.Listen(ctx, sessionID, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.log.Warn().Err(err).Str("session", sessionID).Msg("push stream connect failed")
		} else {
			for event := range events {
				o.handlePush(ctx, event)
			}
			cancel()
			if ctx.Err() != nil {
				return
			}
			o.log.Debug().Str("session", sessionID).Msg("push stream closed, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.reconnectDelay):
		}
	}
}

func (o *Orchestrator) handlePush(ctx context.Context, event types.PushEvent) {
	// Events still buffered when the listener is cancelled belong to a
	// conversation that no longer exists.
	if ctx.Err() != nil {
		return
	}

	switch event.Type {
	case types.PushNewMessage:
		if event.Content == "" {
			return
		}
		id := event.MessageID
		if id == "" {
			id = uuid.NewString()
		}
		o.mu.Lock()
		o.appendLocked(ctx, types.Message{
			ID:        id,
			Role:      types.RoleAgent,
			Text:      event.Content,
			Timestamp: time.Now(),
		})
		o.mu.Unlock()
		o.notify()

	case types.PushAIStatusChanged:
		o.log.Debug().Bool("ai_paused", event.AIPaused).Bool("ai_enabled", event.AIEnabled).Msg("ai status changed")
		o.mu.Lock()
		o.aiPaused = event.AIPaused
		if event.Message != "" {
			o.appendLocked(ctx, types.Message{
				ID:        uuid.NewString(),
				Role:      types.RoleSystem,
				Text:      event.Message,
				Timestamp: time.Now(),
			})
		}
		// Never clobber an in-flight turn; the fold lands the final status.
		if o.status == types.StatusIdle || o.status == types.StatusHumanMode {
			if o.aiPaused {
				o.status = types.StatusHumanMode
			} else {
				o.status = types.StatusIdle
			}
		}
		o.mu.Unlock()
		o.notify()

	case types.PushConnected:
		// Connection handshake, nothing to apply.

	default:
		// Unknown event types carry nothing actionable.
	}
}
