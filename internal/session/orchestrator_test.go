package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatcore/internal/client"
	"chatcore/internal/identity"
	"chatcore/internal/types"
)

type memoryIdentityStore struct {
	mu sync.Mutex
	id types.Identity
}

func (m *memoryIdentityStore) Load(ctx context.Context) (types.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *memoryIdentityStore) Save(ctx context.Context, id types.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

type fakeBackend struct {
	mu          sync.Mutex
	created     int
	createErr   error
	getRecord   *types.SessionRecord
	getErr      error
	turn        func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error)
	listenCalls int
	listenFn    func(ctx context.Context) (<-chan types.PushEvent, func(), error)
}

func (f *fakeBackend) CreateSession(ctx context.Context, userID string, state map[string]any) (*types.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &types.SessionRecord{ID: "sess-new", UserID: userID}, nil
}

func (f *fakeBackend) GetSession(ctx context.Context, userID, sessionID string) (*types.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getRecord, nil
}

func (f *fakeBackend) RunTurn(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
	if f.turn == nil {
		return &client.TurnResult{}, nil
	}
	return f.turn(ctx, req, onEvent)
}

func (f *fakeBackend) Listen(ctx context.Context, sessionID, userID string) (<-chan types.PushEvent, func(), error) {
	f.mu.Lock()
	f.listenCalls++
	fn := f.listenFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	ch := make(chan types.PushEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, func() {}, nil
}

func (f *fakeBackend) listenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listenCalls
}

func newTestOrchestrator(t *testing.T, backend *fakeBackend, stored types.Identity) (*Orchestrator, *memoryIdentityStore) {
	t.Helper()
	idStore := &memoryIdentityStore{id: stored}
	o := New(Options{
		Backend:        backend,
		Identity:       identity.NewResolver(idStore, zerolog.Nop()),
		Logger:         zerolog.Nop(),
		WelcomeMessage: "Hi! How can I help you today?",
		ReconnectDelay: 10 * time.Millisecond,
	})
	t.Cleanup(o.Close)
	return o, idStore
}

func waitFor(t *testing.T, o *Orchestrator, cond func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		state := o.Snapshot()
		if cond(state) {
			return state
		}
		select {
		case <-deadline:
			t.Fatalf("condition not reached, state: %+v", state)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartFreshSession(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeBackend{}, types.Identity{})
	o.Start(context.Background())

	state := o.Snapshot()
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v", state.Status)
	}
	if state.HasPendingRecovery {
		t.Fatalf("unexpected recovery offer")
	}
	if state.UserID == "" {
		t.Fatalf("no user id resolved")
	}
	if len(state.Messages) != 1 || state.Messages[0].Role != types.RoleAgent {
		t.Fatalf("expected only the welcome message, got %+v", state.Messages)
	}
}

func TestStartExpiredSessionClearsSilently(t *testing.T) {
	backend := &fakeBackend{getErr: &client.APIError{StatusCode: http.StatusNotFound, Message: "gone"}}
	o, idStore := newTestOrchestrator(t, backend, types.Identity{UserID: "u_1", SessionID: "sess-old"})
	o.Start(context.Background())

	state := o.Snapshot()
	if state.Status != types.StatusIdle || state.HasPendingRecovery {
		t.Fatalf("expected silent fresh start, got %+v", state)
	}
	if state.SessionID != "" {
		t.Fatalf("stale session id kept: %q", state.SessionID)
	}
	if idStore.id.SessionID != "" {
		t.Fatalf("stored session id not cleared")
	}
	if idStore.id.UserID != "u_1" {
		t.Fatalf("user id lost: %+v", idStore.id)
	}
}

func recoverableRecord() *types.SessionRecord {
	return &types.SessionRecord{
		ID: "sess-old",
		Events: []types.SessionEvent{
			{Author: "user", Content: &types.Content{Parts: []types.Part{{Text: "Hello"}}}, Timestamp: 1718000000},
			{Author: "assistant", Content: &types.Content{Parts: []types.Part{{Text: "Hi there!"}}}, Timestamp: 1718000001},
			{Author: "assistant", Content: &types.Content{Parts: []types.Part{{FunctionCall: &types.FunctionCall{Name: "lookup"}}}}},
			{Author: "assistant", Content: &types.Content{Parts: []types.Part{{Text: "__AI_PAUSED__"}}}},
			{Author: "user", Content: &types.Content{Parts: []types.Part{{Text: "Thanks"}}}},
		},
	}
}

func TestStartOffersRecovery(t *testing.T) {
	backend := &fakeBackend{getRecord: recoverableRecord()}
	o, _ := newTestOrchestrator(t, backend, types.Identity{UserID: "u_1", SessionID: "sess-old"})
	o.Start(context.Background())

	state := o.Snapshot()
	if !state.HasPendingRecovery {
		t.Fatalf("expected recovery offer")
	}
	// The conversation stays in recovering until the user chooses.
	if state.Status != types.StatusRecovering {
		t.Fatalf("Status = %v, want %v", state.Status, types.StatusRecovering)
	}
	// Tool-only and sentinel entries are not visible history.
	if state.PendingMessageCount != 3 {
		t.Fatalf("PendingMessageCount = %d, want 3", state.PendingMessageCount)
	}
	if len(state.Messages) != 1 {
		t.Fatalf("transcript touched before confirmation: %+v", state.Messages)
	}
}

func TestConfirmRecoveryRestoresTranscript(t *testing.T) {
	backend := &fakeBackend{getRecord: recoverableRecord()}
	o, _ := newTestOrchestrator(t, backend, types.Identity{UserID: "u_1", SessionID: "sess-old"})
	o.Start(context.Background())
	o.ConfirmRecovery(context.Background())

	state := o.Snapshot()
	if state.HasPendingRecovery {
		t.Fatalf("offer not consumed")
	}
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v, want %v", state.Status, types.StatusIdle)
	}
	if !state.IsRecovered {
		t.Fatalf("IsRecovered not set")
	}
	if state.SessionID != "sess-old" {
		t.Fatalf("SessionID = %q", state.SessionID)
	}
	if len(state.Messages) != 4 {
		t.Fatalf("got %d messages, want welcome + 3 recovered: %+v", len(state.Messages), state.Messages)
	}
	if state.Messages[1].Text != "Hello" || state.Messages[1].Role != types.RoleUser {
		t.Fatalf("unexpected first recovered message: %+v", state.Messages[1])
	}
	if state.Messages[2].Text != "Hi there!" || state.Messages[2].Role != types.RoleAgent {
		t.Fatalf("unexpected second recovered message: %+v", state.Messages[2])
	}
	deadline := time.After(2 * time.Second)
	for backend.listenCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("push listener not attached after recovery")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDeclineRecoveryKeepsUserID(t *testing.T) {
	backend := &fakeBackend{getRecord: recoverableRecord()}
	o, idStore := newTestOrchestrator(t, backend, types.Identity{UserID: "u_1", SessionID: "sess-old"})
	o.Start(context.Background())
	o.DeclineRecovery(context.Background())

	state := o.Snapshot()
	if state.HasPendingRecovery || state.SessionID != "" {
		t.Fatalf("decline did not clear session: %+v", state)
	}
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v, want %v", state.Status, types.StatusIdle)
	}
	if len(state.Messages) != 1 {
		t.Fatalf("transcript not fresh: %+v", state.Messages)
	}
	if idStore.id.UserID != "u_1" || idStore.id.SessionID != "" {
		t.Fatalf("stored identity wrong after decline: %+v", idStore.id)
	}
}

func TestSendMessageIgnoredWhilePendingRecovery(t *testing.T) {
	backend := &fakeBackend{getRecord: recoverableRecord()}
	o, _ := newTestOrchestrator(t, backend, types.Identity{UserID: "u_1", SessionID: "sess-old"})
	o.Start(context.Background())

	if err := o.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	state := o.Snapshot()
	if len(state.Messages) != 1 {
		t.Fatalf("send was not ignored: %+v", state.Messages)
	}
}

func TestSendMessageFullTurn(t *testing.T) {
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			if req.SessionID != "sess-new" {
				t.Errorf("SessionID = %q", req.SessionID)
			}
			call := types.Event{Kind: types.EventFunctionCall, Name: "lookup"}
			response := types.Event{Kind: types.EventFunctionResponse, Name: "lookup"}
			text := types.Event{Kind: types.EventText, Text: "Hi there!"}
			for _, ev := range []types.Event{call, response, text} {
				onEvent(ev)
			}
			return &client.TurnResult{
				Text:      "Hi there!",
				ToolCalls: []types.Event{call, response},
			}, nil
		},
	}
	o, idStore := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())

	if err := o.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	state := o.Snapshot()
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v", state.Status)
	}
	if state.SessionID != "sess-new" {
		t.Fatalf("SessionID = %q", state.SessionID)
	}
	if idStore.id.SessionID != "sess-new" {
		t.Fatalf("session id not persisted: %+v", idStore.id)
	}
	// welcome, user, agent
	if len(state.Messages) != 3 {
		t.Fatalf("got %d messages: %+v", len(state.Messages), state.Messages)
	}
	agent := state.Messages[2]
	if agent.Role != types.RoleAgent || agent.Text != "Hi there!" {
		t.Fatalf("unexpected agent message: %+v", agent)
	}
	if len(agent.ToolCalls) != 2 {
		t.Fatalf("tool calls not carried: %+v", agent.ToolCalls)
	}
	// Text snapshots surface through streamingText, not the live event list.
	if len(state.LiveEvents) != 2 {
		t.Fatalf("live events = %d, want 2: %+v", len(state.LiveEvents), state.LiveEvents)
	}
	for _, ev := range state.LiveEvents {
		if !ev.IsToolEvent() {
			t.Fatalf("non-tool event in live list: %+v", ev)
		}
	}
	deadline := time.After(2 * time.Second)
	for backend.listenCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("listener not attached after first send")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSendMessageHandOff(t *testing.T) {
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return &client.TurnResult{HandOff: true}, nil
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())

	if err := o.SendMessage(context.Background(), "I want a human"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	state := o.Snapshot()
	if state.Status != types.StatusHumanMode || !state.AIPaused {
		t.Fatalf("expected human mode, got %+v", state)
	}
	// welcome + user only: a hand-off never yields an agent message.
	if len(state.Messages) != 2 {
		t.Fatalf("unexpected transcript: %+v", state.Messages)
	}
}

func TestSendMessageEmptyResultFallsBack(t *testing.T) {
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return &client.TurnResult{}, nil
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())

	if err := o.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	state := o.Snapshot()
	if len(state.Messages) != 3 {
		t.Fatalf("expected exactly one fallback reply: %+v", state.Messages)
	}
	if state.Messages[2].Role != types.RoleAgent || state.Messages[2].Text != fallbackReply {
		t.Fatalf("unexpected fallback: %+v", state.Messages[2])
	}
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v", state.Status)
	}
}

func TestCancelStreamDiscardsPartial(t *testing.T) {
	started := make(chan struct{})
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			onEvent(types.Event{Kind: types.EventTextPartial, Text: "Let me"})
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())

	done := make(chan error, 1)
	go func() { done <- o.SendMessage(context.Background(), "Hello") }()

	<-started
	o.CancelStream()
	if err := <-done; err != nil {
		t.Fatalf("SendMessage after cancel: %v", err)
	}

	state := o.Snapshot()
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v", state.Status)
	}
	if state.StreamingText != "" {
		t.Fatalf("streaming text survived cancel: %q", state.StreamingText)
	}
	// welcome + user, no agent reply.
	if len(state.Messages) != 2 {
		t.Fatalf("unexpected transcript: %+v", state.Messages)
	}
}

func TestTurnErrorSurfacesAgentMessage(t *testing.T) {
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())

	if err := o.SendMessage(context.Background(), "Hello"); err == nil {
		t.Fatalf("expected error")
	}
	state := o.Snapshot()
	if len(state.Messages) != 3 {
		t.Fatalf("expected exactly one error reply: %+v", state.Messages)
	}
	// Transport failures read as a reply from the agent.
	if state.Messages[2].Role != types.RoleAgent {
		t.Fatalf("error message role = %q, want %q: %+v", state.Messages[2].Role, types.RoleAgent, state.Messages[2])
	}
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v", state.Status)
	}
}

func TestSessionCreateErrorSurfacesAgentMessage(t *testing.T) {
	backend := &fakeBackend{createErr: errors.New("connection refused")}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())

	if err := o.SendMessage(context.Background(), "Hello"); err == nil {
		t.Fatalf("expected error")
	}
	state := o.Snapshot()
	if len(state.Messages) != 3 || state.Messages[2].Role != types.RoleAgent {
		t.Fatalf("expected agent-role error reply: %+v", state.Messages)
	}
	if state.Status != types.StatusIdle {
		t.Fatalf("Status = %v", state.Status)
	}
}

func TestPushNewMessageAppends(t *testing.T) {
	push := make(chan types.PushEvent, 1)
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return &client.TurnResult{Text: "Hi there!"}, nil
		},
		listenFn: func(ctx context.Context) (<-chan types.PushEvent, func(), error) {
			out := make(chan types.PushEvent)
			go func() {
				defer close(out)
				for {
					select {
					case ev := <-push:
						out <- ev
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, func() {}, nil
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())
	if err := o.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	push <- types.PushEvent{Type: types.PushNewMessage, Author: "human_agent", Content: "A human here, how can I help?"}
	state := waitFor(t, o, func(s State) bool { return len(s.Messages) == 4 })
	if state.Messages[3].Role != types.RoleAgent || state.Messages[3].Text != "A human here, how can I help?" {
		t.Fatalf("unexpected pushed message: %+v", state.Messages[3])
	}

	push <- types.PushEvent{Type: types.PushAIStatusChanged, AIPaused: true, Message: "An agent has taken over."}
	state = waitFor(t, o, func(s State) bool { return s.Status == types.StatusHumanMode })
	if !state.AIPaused {
		t.Fatalf("AIPaused not set")
	}
	if state.Messages[len(state.Messages)-1].Role != types.RoleSystem {
		t.Fatalf("status notice missing: %+v", state.Messages)
	}

	push <- types.PushEvent{Type: types.PushAIStatusChanged, AIPaused: false}
	waitFor(t, o, func(s State) bool { return s.Status == types.StatusIdle && !s.AIPaused })
}

func TestListenerReconnects(t *testing.T) {
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return &client.TurnResult{Text: "Hi there!"}, nil
		},
		listenFn: func(ctx context.Context) (<-chan types.PushEvent, func(), error) {
			out := make(chan types.PushEvent)
			close(out)
			return out, func() {}, nil
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())
	if err := o.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for backend.listenCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("listener did not reconnect: %d connects", backend.listenCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPushIgnoredAfterReset(t *testing.T) {
	push := make(chan types.PushEvent, 1)
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return &client.TurnResult{Text: "Hi there!"}, nil
		},
		listenFn: func(ctx context.Context) (<-chan types.PushEvent, func(), error) {
			// Keeps draining even after cancellation, like a buffered
			// stream that still holds events when the reader goes away.
			out := make(chan types.PushEvent)
			go func() {
				defer close(out)
				for ev := range push {
					out <- ev
				}
			}()
			return out, func() {}, nil
		},
	}
	o, _ := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())
	if err := o.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := o.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	push <- types.PushEvent{Type: types.PushNewMessage, Author: "human_agent", Content: "stale"}
	close(push)

	time.Sleep(50 * time.Millisecond)
	state := o.Snapshot()
	if len(state.Messages) != 1 {
		t.Fatalf("stale push landed in fresh transcript: %+v", state.Messages)
	}
}

func TestResetStartsClean(t *testing.T) {
	backend := &fakeBackend{
		turn: func(ctx context.Context, req client.TurnRequest, onEvent func(types.Event)) (*client.TurnResult, error) {
			return &client.TurnResult{HandOff: true}, nil
		},
	}
	o, idStore := newTestOrchestrator(t, backend, types.Identity{})
	o.Start(context.Background())
	if err := o.SendMessage(context.Background(), "human please"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	userID := o.Snapshot().UserID

	if err := o.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	state := o.Snapshot()
	if state.Status != types.StatusIdle || state.AIPaused || state.SessionID != "" {
		t.Fatalf("reset incomplete: %+v", state)
	}
	if len(state.Messages) != 1 {
		t.Fatalf("transcript not fresh: %+v", state.Messages)
	}
	if idStore.id.UserID != userID || idStore.id.SessionID != "" {
		t.Fatalf("stored identity wrong after reset: %+v", idStore.id)
	}
}
