// Package session owns the conversation lifecycle: sending turns, folding
// stream results into the transcript, recovery of stored sessions, and the
// supervised push listener. All state hangs off one orchestrator guarded by
// a single mutex; callers observe it through immutable snapshots.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatcore/internal/client"
	"chatcore/internal/identity"
	"chatcore/internal/store"
	"chatcore/internal/types"
)

const defaultReconnectDelay = 3 * time.Second

// fallbackReply is shown when a turn produces no agent output at all.
const fallbackReply = "Sorry, I wasn't able to answer that. Please try again."

// Backend is the remote agent surface the orchestrator drives. *client.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	CreateSession(ctx context.Context, userID string, state map[string]any) (*types.SessionRecord, error)
	GetSession(ctx context.Context, userID, sessionID string) (*types.SessionRecord, error)
	RunTurn(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error)
	Listen(ctx context.Context, sessionID, userID string) (<-chan types.PushEvent, func(), error)
}

type Options struct {
	Backend        Backend
	Identity       *identity.Resolver
	Archive        store.TranscriptStore
	Logger         zerolog.Logger
	WelcomeMessage string
	Email          string
	ReconnectDelay time.Duration
}

// Orchestrator is the single writer of conversation state.
type Orchestrator struct {
	backend        Backend
	identity       *identity.Resolver
	archive        store.TranscriptStore
	log            zerolog.Logger
	welcome        string
	email          string
	reconnectDelay time.Duration

	mu              sync.Mutex
	status          types.Status
	messages        []types.Message
	liveEvents      []types.Event
	streamingText   string
	aiPaused        bool
	recovered       bool
	initializing    bool
	pendingRecovery []types.Message
	userID          string
	sessionID       string
	turnCancel      context.CancelFunc
	listenerCancel  context.CancelFunc

	updates chan struct{}
}

// State is an immutable snapshot of the conversation for rendering.
type State struct {
	Messages            []types.Message
	LiveEvents          []types.Event
	Status              types.Status
	StreamingText       string
	AIPaused            bool
	IsInitializing      bool
	IsRecovered         bool
	HasPendingRecovery  bool
	PendingMessageCount int
	SessionID           string
	UserID              string
}

func New(opts Options) *Orchestrator {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &Orchestrator{
		backend:        opts.Backend,
		identity:       opts.Identity,
		archive:        opts.Archive,
		log:            opts.Logger,
		welcome:        opts.WelcomeMessage,
		email:          opts.Email,
		reconnectDelay: delay,
		status:         types.StatusIdle,
		updates:        make(chan struct{}, 1),
	}
}

// Updates pulses whenever conversation state changes. The channel is
// coalescing: a reader that falls behind sees one pending pulse, then
// snapshots fresh state.
func (o *Orchestrator) Updates() <-chan struct{} {
	return o.updates
}

func (o *Orchestrator) notify() {
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state safe to read concurrently.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Messages:            append([]types.Message(nil), o.messages...),
		LiveEvents:          append([]types.Event(nil), o.liveEvents...),
		Status:              o.status,
		StreamingText:       o.streamingText,
		AIPaused:            o.aiPaused,
		IsInitializing:      o.initializing,
		IsRecovered:         o.recovered,
		HasPendingRecovery:  len(o.pendingRecovery) > 0,
		PendingMessageCount: len(o.pendingRecovery),
		SessionID:           o.sessionID,
		UserID:              o.userID,
	}
}

// SendMessage runs one turn end to end and blocks until the stream settles.
// Sends are ignored while a turn is in flight, during recovery negotiation,
// and while the session is initializing. In human mode the message is still
// delivered so the human agent sees it, but no status transition happens.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	o.mu.Lock()
	if o.initializing || len(o.pendingRecovery) > 0 {
		o.mu.Unlock()
		return nil
	}
	if o.status != types.StatusIdle && o.status != types.StatusHumanMode {
		o.mu.Unlock()
		return nil
	}
	humanMode := o.status == types.StatusHumanMode

	userMsg := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}
	o.messages = append(o.messages, userMsg)
	if !humanMode {
		o.status = types.StatusLoading
		o.streamingText = ""
		o.liveEvents = nil
	}
	userID := o.userID
	sessionID := o.sessionID
	o.mu.Unlock()
	o.notify()
	o.archiveMessage(ctx, sessionID, userMsg)

	if sessionID == "" {
		record, err := o.backend.CreateSession(ctx, userID, nil)
		if err != nil {
			o.failTurn(ctx, "I couldn't reach the service. Please try again in a moment.")
			return err
		}
		sessionID = record.ID
		o.mu.Lock()
		o.sessionID = sessionID
		o.mu.Unlock()
		if err := o.identity.PersistSessionID(ctx, userID, sessionID); err != nil {
			o.log.Warn().Err(err).Msg("session id persist failed")
		}
		o.attachListener(sessionID, userID)
		o.archiveMessage(ctx, sessionID, userMsg)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.turnCancel = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		o.turnCancel = nil
		o.mu.Unlock()
	}()

	result, err := o.backend.RunTurn(turnCtx, client.TurnRequest{
		UserID:    userID,
		SessionID: sessionID,
		Text:      text,
	}, o.observeEvent)

	o.mu.Lock()
	defer func() {
		o.mu.Unlock()
		o.notify()
	}()
	o.streamingText = ""

	if err != nil {
		if errors.Is(err, context.Canceled) {
			o.log.Debug().Msg("turn cancelled")
			o.finishTurnLocked()
			return nil
		}
		o.log.Error().Err(err).Msg("turn failed")
		o.appendLocked(ctx, types.Message{
			ID:        uuid.NewString(),
			Role:      types.RoleAgent,
			Text:      "I couldn't reach the service. Please try again in a moment.",
			Timestamp: time.Now(),
		})
		o.finishTurnLocked()
		return err
	}

	switch {
	case result.HandOff:
		o.aiPaused = true
	case result.Text == "" && len(result.Products) == 0:
		if !humanMode {
			o.appendLocked(ctx, types.Message{
				ID:        uuid.NewString(),
				Role:      types.RoleAgent,
				Text:      fallbackReply,
				Timestamp: time.Now(),
			})
		}
	default:
		o.appendLocked(ctx, types.Message{
			ID:        uuid.NewString(),
			Role:      types.RoleAgent,
			Text:      result.Text,
			Products:  result.Products,
			ToolCalls: result.ToolCalls,
			Timestamp: time.Now(),
		})
	}
	o.finishTurnLocked()
	return nil
}

// observeEvent mirrors live stream activity into state while a turn runs.
// Only tool activity enters the live event list; text snapshots go through
// streamingText and thinking markers carry nothing to show.
func (o *Orchestrator) observeEvent(event types.Event) {
	o.mu.Lock()
	if o.status == types.StatusLoading {
		o.status = types.StatusStreaming
	}
	if event.IsToolEvent() {
		o.liveEvents = append(o.liveEvents, event)
	}
	if event.Kind == types.EventText || event.Kind == types.EventTextPartial {
		o.streamingText = event.Text
	}
	o.mu.Unlock()
	o.notify()
}

// CancelStream aborts the in-flight turn, if any. The partial answer is
// discarded; the user's message stays in the transcript.
func (o *Orchestrator) CancelStream() {
	o.mu.Lock()
	cancel := o.turnCancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset discards the conversation and the stored session id. The user id is
// kept so the customer remains recognizable.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	if o.turnCancel != nil {
		o.turnCancel()
	}
	if o.listenerCancel != nil {
		o.listenerCancel()
		o.listenerCancel = nil
	}
	oldSession := o.sessionID
	o.sessionID = ""
	o.messages = o.welcomeTranscript()
	o.liveEvents = nil
	o.streamingText = ""
	o.pendingRecovery = nil
	o.aiPaused = false
	o.recovered = false
	o.status = types.StatusIdle
	o.mu.Unlock()
	o.notify()

	if err := o.identity.ClearSession(ctx); err != nil {
		return err
	}
	if o.archive != nil && oldSession != "" {
		if err := o.archive.Clear(ctx, oldSession); err != nil {
			o.log.Warn().Err(err).Str("session", oldSession).Msg("transcript clear failed")
		}
	}
	return nil
}

// Close stops background work. Safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnCancel != nil {
		o.turnCancel()
		o.turnCancel = nil
	}
	if o.listenerCancel != nil {
		o.listenerCancel()
		o.listenerCancel = nil
	}
}

func (o *Orchestrator) welcomeTranscript() []types.Message {
	if o.welcome == "" {
		return nil
	}
	return []types.Message{{
		ID:        uuid.NewString(),
		Role:      types.RoleAgent,
		Text:      o.welcome,
		Timestamp: time.Now(),
	}}
}

// finishTurnLocked lands the status after a turn: human mode wins over idle.
func (o *Orchestrator) finishTurnLocked() {
	if o.aiPaused {
		o.status = types.StatusHumanMode
	} else if o.status != types.StatusHumanMode {
		o.status = types.StatusIdle
	}
}

// failTurn lands a turn that never produced a stream. Transport failures
// read as a reply from the agent, not as an out-of-band notice.
func (o *Orchestrator) failTurn(ctx context.Context, text string) {
	o.mu.Lock()
	o.appendLocked(ctx, types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleAgent,
		Text:      text,
		Timestamp: time.Now(),
	})
	o.finishTurnLocked()
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) appendLocked(ctx context.Context, msg types.Message) {
	o.messages = append(o.messages, msg)
	o.archiveMessage(ctx, o.sessionID, msg)
}

func (o *Orchestrator) archiveMessage(ctx context.Context, sessionID string, msg types.Message) {
	if o.archive == nil || sessionID == "" {
		return
	}
	if err := o.archive.Append(ctx, sessionID, msg); err != nil {
		o.log.Warn().Err(err).Str("session", sessionID).Msg("transcript append failed")
	}
}
