// ABOUTME: Tests for the session Coordinator
// ABOUTME: Covers streaming scenarios, rejection policy, switch races, failures

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fold-console/internal/stream"
	"github.com/2389/fold-console/internal/transport"
)

// openCall captures one OpenStream invocation so tests can drive callbacks.
type openCall struct {
	ctx context.Context
	req transport.SendRequest
	h   transport.Handler
}

// fakePort hands each OpenStream call to the test and blocks until the
// test-driven callbacks settle the stream.
type fakePort struct {
	mu      sync.Mutex
	calls   chan *openCall
	openErr error
}

func newFakePort() *fakePort {
	return &fakePort{calls: make(chan *openCall, 4)}
}

func (p *fakePort) OpenStream(ctx context.Context, req transport.SendRequest, h transport.Handler) error {
	p.mu.Lock()
	err := p.openErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.calls <- &openCall{ctx: ctx, req: req, h: h}
	return nil
}

func (p *fakePort) Send(ctx context.Context, req transport.SendRequest) (string, error) {
	return "", errors.New("not used")
}

func (p *fakePort) next(t *testing.T) *openCall {
	t.Helper()
	select {
	case call := <-p.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OpenStream")
		return nil
	}
}

// fakeHistory serves canned message lists per conversation.
type fakeHistory struct {
	mu       sync.Mutex
	byConv   map[string][]*stream.Message
	err      error
	requests []string
}

func (h *fakeHistory) ConversationMessages(ctx context.Context, conversationID string) ([]*stream.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, conversationID)
	if h.err != nil {
		return nil, h.err
	}
	return h.byConv[conversationID], nil
}

// fakeMirror records mirrored messages.
type fakeMirror struct {
	mu    sync.Mutex
	saved []*stream.Message
}

func (m *fakeMirror) SaveMessage(ctx context.Context, conversationID string, msg *stream.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, msg)
	return nil
}

func (m *fakeMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func newTestCoordinator(t *testing.T, port transport.Port) *Coordinator {
	t.Helper()
	return New(port, &fakeHistory{byConv: map[string][]*stream.Message{}}, nil, "tester", nil)
}

func TestCoordinator_SendAndStreamHappyPath(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "Hello"))

	// User message is visible immediately, before any chunk.
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Text)
	assert.Equal(t, stream.OriginUser, msgs[0].Origin)
	assert.Equal(t, PhaseThinking, c.Phase())

	call := port.next(t)
	assert.Equal(t, "Hello", call.req.Content)
	assert.Equal(t, "tester", call.req.Sender)

	for _, chunk := range []string{"Xin", " chào", "!"} {
		call.h.OnChunk(chunk)
	}
	assert.Equal(t, PhaseStreaming, c.Phase())

	call.h.OnEnd()

	msgs = c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, stream.OriginAssistant, msgs[1].Origin)
	assert.Equal(t, "Xin chào!", msgs[1].Text)
	assert.True(t, msgs[1].Terminal)
	assert.Equal(t, PhaseDone, c.Phase())
	assert.Empty(t, c.Banner())
}

func TestCoordinator_ThinkingIndicatorUntilFirstChunk(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "slow one"))
	call := port.next(t)

	// No assistant bubble while thinking.
	assert.Len(t, c.Messages(), 1)
	assert.Equal(t, PhaseThinking, c.Phase())

	call.h.OnChunk("first")

	// First chunk reveals the message; indicator and message are exclusive.
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[1].Text)
	assert.Equal(t, PhaseStreaming, c.Phase())

	call.h.OnEnd()
}

func TestCoordinator_RejectsSendWhileStreaming(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "first"))
	call := port.next(t)

	err := c.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrStreamActive)

	// Still rejected mid-stream.
	call.h.OnChunk("partial")
	err = c.Send(context.Background(), "third")
	assert.ErrorIs(t, err, ErrStreamActive)

	// Accepted again once the stream settles.
	call.h.OnEnd()
	require.NoError(t, c.Send(context.Background(), "fourth"))
	port.next(t)

	// Only the accepted sends appear in the list.
	var userTexts []string
	for _, m := range c.Messages() {
		if m.Origin == stream.OriginUser {
			userTexts = append(userTexts, m.Text)
		}
	}
	assert.Equal(t, []string{"first", "fourth"}, userTexts)
}

func TestCoordinator_TransportErrorPreservesPartialOutput(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "question"))
	call := port.next(t)

	call.h.OnChunk("Partial")
	call.h.OnError("timeout")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "Partial")
	assert.Contains(t, msgs[1].Text, "[response interrupted: timeout]")
	assert.True(t, msgs[1].Terminal)
	assert.Equal(t, PhaseFailed, c.Phase())
	assert.Contains(t, c.Banner(), "timeout")

	// Coordinator is back to a usable state.
	require.NoError(t, c.Send(context.Background(), "retry"))
	port.next(t)
}

func TestCoordinator_ErrorBeforeAnyChunk(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "question"))
	call := port.next(t)

	call.h.OnError("connection reset")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "[response interrupted: connection reset]", msgs[1].Text)
	assert.Contains(t, c.Banner(), "connection reset")
}

func TestCoordinator_FailedOpenKeepsUserMessage(t *testing.T) {
	port := newFakePort()
	port.openErr = errors.New("dial tcp: connection refused")
	c := newTestCoordinator(t, port)

	settled := make(chan struct{})
	c.OnSettle(func() { close(settled) })

	require.NoError(t, c.Send(context.Background(), "lost?"))

	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settle")
	}

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "lost?", msgs[0].Text)
	assert.Contains(t, msgs[1].Text, "connection refused")
	assert.Equal(t, PhaseFailed, c.Phase())
}

func TestCoordinator_SwitchConversationCancelsStream(t *testing.T) {
	port := newFakePort()
	history := &fakeHistory{byConv: map[string][]*stream.Message{
		"conv-b": {stream.NewUserMessage("old question in B")},
	}}
	c := New(port, history, nil, "tester", nil)

	require.NoError(t, c.SwitchConversation(context.Background(), "conv-a"))
	require.NoError(t, c.Send(context.Background(), "question for A"))
	call := port.next(t)

	call.h.OnChunk("leaked? ")

	require.NoError(t, c.SwitchConversation(context.Background(), "conv-b"))

	// The transport-level call was cancelled outright.
	select {
	case <-call.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream context was not cancelled on switch")
	}

	// Late callbacks from A's stream are inert in B.
	call.h.OnChunk("definitely leaked")
	call.h.OnEnd()

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "old question in B", msgs[0].Text)
	for _, m := range msgs {
		assert.NotContains(t, m.Text, "leaked")
	}
	assert.Equal(t, "conv-b", c.ActiveConversation())
}

func TestCoordinator_SwitchReloadsHistory(t *testing.T) {
	port := newFakePort()
	history := &fakeHistory{byConv: map[string][]*stream.Message{
		"conv-1": {stream.NewUserMessage("hi"), stream.NewUserMessage("again")},
	}}
	c := New(port, history, nil, "tester", nil)

	require.NoError(t, c.SwitchConversation(context.Background(), "conv-1"))
	assert.Len(t, c.Messages(), 2)
	assert.Equal(t, []string{"conv-1"}, history.requests)
}

func TestCoordinator_SwitchHistoryFailureSurfaces(t *testing.T) {
	port := newFakePort()
	history := &fakeHistory{err: errors.New("backend down")}
	c := New(port, history, nil, "tester", nil)

	err := c.SwitchConversation(context.Background(), "conv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	// Active id still moved: the UI points at the new conversation and can retry.
	assert.Equal(t, "conv-1", c.ActiveConversation())
}

func TestCoordinator_MirrorsUserAndFinalAssistantMessages(t *testing.T) {
	port := newFakePort()
	mirror := &fakeMirror{}
	c := New(port, &fakeHistory{}, mirror, "tester", nil)

	require.NoError(t, c.Send(context.Background(), "persist me"))
	call := port.next(t)
	call.h.OnChunk("answer")
	call.h.OnEnd()

	require.Equal(t, 2, mirror.count())
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, "persist me", mirror.saved[0].Text)
	assert.Equal(t, "answer", mirror.saved[1].Text)
	assert.True(t, mirror.saved[1].Terminal)
}

func TestCoordinator_MessagesReturnsSnapshots(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "snap"))
	call := port.next(t)
	call.h.OnChunk("half")

	before := c.Messages()
	call.h.OnChunk(" and the rest")
	call.h.OnEnd()

	// The earlier snapshot is unaffected by later mutation.
	assert.Equal(t, "half", before[1].Text)
	after := c.Messages()
	assert.Equal(t, "half and the rest", after[1].Text)
}

func TestCoordinator_DismissBanner(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	require.NoError(t, c.Send(context.Background(), "q"))
	call := port.next(t)
	call.h.OnError("boom")

	require.NotEmpty(t, c.Banner())
	c.DismissBanner()
	assert.Empty(t, c.Banner())
}

func TestCoordinator_OnChunkFiresPerAcceptedChunk(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	var got []string
	c.OnChunk(func(text string) { got = append(got, text) })

	require.NoError(t, c.Send(context.Background(), "stream it"))
	call := port.next(t)

	call.h.OnChunk("one")
	call.h.OnChunk("two")
	call.h.OnEnd()

	assert.Equal(t, []string{"one", "two"}, got)
}

func TestCoordinator_OnChunkSilentAfterSwitch(t *testing.T) {
	port := newFakePort()
	c := newTestCoordinator(t, port)

	var got []string
	c.OnChunk(func(text string) { got = append(got, text) })

	require.NoError(t, c.SwitchConversation(context.Background(), "conv-1"))
	require.NoError(t, c.Send(context.Background(), "stream it"))
	call := port.next(t)
	call.h.OnChunk("early")

	require.NoError(t, c.SwitchConversation(context.Background(), "conv-2"))
	call.h.OnChunk("late")

	// The chunk from the cancelled stream never reaches the callback.
	assert.Equal(t, []string{"early"}, got)
}
