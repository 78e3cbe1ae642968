// ABOUTME: Coordinator drives streaming sends and owns the visible message list
// ABOUTME: Enforces single-active-stream-per-conversation and cancellation on switch

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/fold-console/internal/stream"
	"github.com/2389/fold-console/internal/transport"
)

// ErrStreamActive is returned by Send while a stream is already live for the
// active conversation. Sends are rejected, not queued: the user resends once
// the stream settles. This is the documented single policy.
var ErrStreamActive = errors.New("a response is already streaming")

// mirrorTimeout bounds best-effort transcript writes so persistence outlives
// a cancelled request context.
const mirrorTimeout = 5 * time.Second

// Phase describes the lifecycle of the current stream session.
type Phase int

const (
	PhaseIdle      Phase = iota // no stream in flight
	PhaseThinking               // stream open, no chunk accepted yet
	PhaseStreaming              // assistant message visible and growing
	PhaseDone                   // last stream finished normally
	PhaseFailed                 // last stream ended in a transport failure
)

// String returns the phase name for logs and rendering.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseThinking:
		return "thinking"
	case PhaseStreaming:
		return "streaming"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamSession correlates one outstanding streaming call to one message and
// one conversation. At most one non-cancelled session exists per coordinator.
type StreamSession struct {
	ResponseID     string
	ConversationID string

	cancelled bool
	cancel    context.CancelFunc
	message   *stream.Message
	visible   bool
	phase     Phase
}

// HistoryLoader fetches a conversation's message history from the backend.
type HistoryLoader interface {
	ConversationMessages(ctx context.Context, conversationID string) ([]*stream.Message, error)
}

// TranscriptWriter mirrors finalized messages into local storage. Writes are
// best effort; failures are logged and never surfaced to the message view.
type TranscriptWriter interface {
	SaveMessage(ctx context.Context, conversationID string, msg *stream.Message) error
}

// Coordinator is the top-level controller of the chat layer. It accepts send
// and switch-conversation commands, drives the transport port, applies
// aggregator results to the visible message list, and converts transport
// failures into terminal messages plus a dismissible banner.
//
// All state is guarded by one mutex; transport callbacks re-enter through
// the handle* methods, so callers must never invoke Coordinator methods
// while holding their own locks around it.
type Coordinator struct {
	mu       sync.Mutex
	agg      *stream.Aggregator
	port     transport.Port
	history  HistoryLoader
	mirror   TranscriptWriter // optional
	sender   string
	logger   *slog.Logger
	onSettle func()            // optional: invoked after a stream reaches Done/Failed
	onChunk  func(text string) // optional: invoked after each accepted chunk

	active   string
	messages []*stream.Message
	current  *StreamSession
	banner   string
}

// New creates a Coordinator. mirror may be nil. Pass nil logger for default.
func New(port transport.Port, history HistoryLoader, mirror TranscriptWriter, sender string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		agg:     stream.New(logger),
		port:    port,
		history: history,
		mirror:  mirror,
		sender:  sender,
		logger:  logger.With("component", "session"),
	}
}

// OnSettle registers a callback fired once per stream after it reaches a
// terminal phase. Used by the CLI to redraw its prompt.
func (c *Coordinator) OnSettle(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSettle = fn
}

// OnChunk registers a callback fired for each chunk accepted into the
// visible message. Used by the CLI to print streamed text as it arrives.
func (c *Coordinator) OnChunk(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChunk = fn
}

// ActiveConversation returns the id of the conversation being rendered, or
// empty when none has been selected yet.
func (c *Coordinator) ActiveConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Phase reports the lifecycle phase of the most recent stream session.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return PhaseIdle
	}
	return c.current.phase
}

// Messages returns a snapshot of the active conversation's message list.
// The returned values are copies: a message growing under a live stream
// cannot be observed mid-mutation through them.
func (c *Coordinator) Messages() []stream.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]stream.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// Banner returns the current error banner, empty when none is shown.
func (c *Coordinator) Banner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// DismissBanner clears the error banner.
func (c *Coordinator) DismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = ""
}

// Send appends the user's question to the message list, opens a stream
// session, and starts the transport call. The user message is appended
// synchronously before any network activity so input is never lost when the
// call fails to start. Returns ErrStreamActive while a stream is live.
func (c *Coordinator) Send(ctx context.Context, question string) error {
	c.mu.Lock()

	if c.current != nil && !c.current.cancelled &&
		(c.current.phase == PhaseThinking || c.current.phase == PhaseStreaming) {
		c.mu.Unlock()
		return ErrStreamActive
	}

	userMsg := stream.NewUserMessage(question)
	c.messages = append(c.messages, userMsg)
	c.banner = ""

	responseID := uuid.New().String()
	assistantMsg, err := c.agg.Begin(responseID)
	if err != nil {
		// A fresh UUID colliding with a tracked session is a programmer
		// error. Loud in logs, invisible in the message view.
		c.logger.Error("aggregator rejected new session", "error", err, "response_id", responseID)
		c.mu.Unlock()
		return nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sess := &StreamSession{
		ResponseID:     responseID,
		ConversationID: c.active,
		cancel:         cancel,
		message:        assistantMsg,
		phase:          PhaseThinking,
	}
	c.current = sess

	req := transport.SendRequest{
		ConversationID: sess.ConversationID,
		Sender:         c.sender,
		Content:        question,
	}
	c.mu.Unlock()

	c.mirrorMessage(sess.ConversationID, userMsg)

	go func() {
		defer cancel()
		err := c.port.OpenStream(streamCtx, req, transport.Handler{
			OnChunk: func(text string) { c.handleChunk(sess, text) },
			OnEnd:   func() { c.handleEnd(sess) },
			OnError: func(message string) { c.handleError(sess, message) },
		})
		if err != nil {
			// The call never opened; no callbacks fired.
			c.handleError(sess, err.Error())
		}
	}()

	return nil
}

// SwitchConversation cancels any live stream, replaces the active
// conversation, and reloads its message history. A late chunk from the
// previous conversation can never reach the new message list.
func (c *Coordinator) SwitchConversation(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if c.current != nil && !c.current.cancelled {
		c.current.cancelled = true
		c.current.cancel()
		chunks := c.agg.ChunkCount(c.current.ResponseID)
		c.agg.Cancel(c.current.ResponseID)
		c.logger.Debug("stream cancelled by conversation switch",
			"response_id", c.current.ResponseID,
			"conversation_id", c.current.ConversationID,
			"chunks_received", chunks)
	}
	c.current = nil
	c.active = conversationID
	c.messages = nil
	c.banner = ""
	c.mu.Unlock()

	if c.history == nil {
		return nil
	}

	msgs, err := c.history.ConversationMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", conversationID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The user may have switched again while history loaded.
	if c.active == conversationID {
		c.messages = msgs
	}
	return nil
}

// handleChunk applies one chunk if the owning session is still live and
// still belongs to the active conversation. The first accepted chunk makes
// the assistant message visible, replacing the thinking indicator.
func (c *Coordinator) handleChunk(sess *StreamSession, text string) {
	c.mu.Lock()

	if sess.cancelled || sess != c.current || sess.ConversationID != c.active {
		c.mu.Unlock()
		return
	}

	if !c.agg.ApplyChunk(sess.ResponseID, text) {
		c.mu.Unlock()
		return
	}

	if !sess.visible {
		c.messages = append(c.messages, sess.message)
		sess.visible = true
		sess.phase = PhaseStreaming
	}

	fn := c.onChunk
	c.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// handleEnd finalizes the session on a normally completed stream.
func (c *Coordinator) handleEnd(sess *StreamSession) {
	c.mu.Lock()

	if sess.cancelled || sess != c.current {
		c.mu.Unlock()
		return
	}

	msg, err := c.agg.Finish(sess.ResponseID)
	if err != nil {
		// Protocol violation; never crash the message view over it.
		c.logger.Error("finish on unknown session", "error", err, "response_id", sess.ResponseID)
		c.settleLocked(sess, PhaseFailed)
		return
	}

	// A stream that ended without ever producing text stays invisible.
	if !sess.visible && msg.Text == "" {
		c.logger.Debug("stream ended with no content", "response_id", sess.ResponseID)
		c.settleLocked(sess, PhaseDone)
		return
	}
	if !sess.visible {
		c.messages = append(c.messages, msg)
		sess.visible = true
	}

	c.settleLocked(sess, PhaseDone)
	c.mirrorMessage(sess.ConversationID, msg)
}

// handleError finalizes the session on a transport failure. Partial output
// is annotated, never discarded, and the failure also lands in the banner.
func (c *Coordinator) handleError(sess *StreamSession, message string) {
	c.mu.Lock()

	if sess.cancelled || sess != c.current {
		c.mu.Unlock()
		return
	}

	msg, err := c.agg.Fail(sess.ResponseID, message)
	if err != nil {
		c.logger.Error("fail on unknown session", "error", err, "response_id", sess.ResponseID)
		c.settleLocked(sess, PhaseFailed)
		return
	}

	if !sess.visible {
		c.messages = append(c.messages, msg)
		sess.visible = true
	}

	c.banner = "Send failed: " + message
	c.settleLocked(sess, PhaseFailed)
	c.mirrorMessage(sess.ConversationID, msg)
}

// settleLocked records the terminal phase and releases mu before invoking
// the settle callback. Must be called with mu held; mu is unlocked on
// return.
func (c *Coordinator) settleLocked(sess *StreamSession, phase Phase) {
	sess.phase = phase
	fn := c.onSettle
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// mirrorMessage writes a message to the local transcript mirror with its
// own timeout so persistence survives request cancellation.
func (c *Coordinator) mirrorMessage(conversationID string, msg *stream.Message) {
	if c.mirror == nil || msg == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := c.mirror.SaveMessage(saveCtx, conversationID, msg); err != nil {
		c.logger.Error("failed to mirror message",
			"error", err,
			"conversation_id", conversationID,
			"message_id", msg.ID)
	}
}
