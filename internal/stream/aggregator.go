// ABOUTME: Aggregator turns chunked assistant output into single growing messages
// ABOUTME: Tracks in-flight response ids and enforces the terminal-message invariant

package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateSession is returned when Begin is called for a response id
// that is already being tracked.
var ErrDuplicateSession = errors.New("response id already tracked")

// ErrUnknownSession is returned when Finish or Fail is called for a
// response id that is not tracked.
var ErrUnknownSession = errors.New("response id not tracked")

// Origin identifies who authored a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Message is a single entry in a conversation's message list. An assistant
// message grows chunk by chunk until Terminal is set; after that it is never
// mutated again.
type Message struct {
	ID        string
	Text      string
	Origin    Origin
	CreatedAt time.Time
	Terminal  bool
}

// NewUserMessage builds a terminal user message with a fresh id.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Text:      text,
		Origin:    OriginUser,
		CreatedAt: time.Now(),
		Terminal:  true,
	}
}

// Aggregator owns the mapping from in-flight response ids to their
// accumulating messages. It is purely in-memory and performs no I/O.
// Chunks are applied in call order; chunks for unknown or already-terminal
// response ids are silently discarded, which is the defined behavior for
// callbacks arriving after cancellation.
type Aggregator struct {
	mu       sync.Mutex
	tracked  map[string]*Message
	received map[string]int // chunk count per response id
	logger   *slog.Logger
}

// New creates an Aggregator. Pass nil logger for default.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		tracked:  make(map[string]*Message),
		received: make(map[string]int),
		logger:   logger.With("component", "aggregator"),
	}
}

// Begin starts tracking a response id and returns its empty, non-terminal
// assistant message. Returns ErrDuplicateSession if the id is already tracked.
func (a *Aggregator) Begin(responseID string) (*Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.tracked[responseID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, responseID)
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Origin:    OriginAssistant,
		CreatedAt: time.Now(),
	}
	a.tracked[responseID] = msg
	a.received[responseID] = 0
	return msg, nil
}

// ApplyChunk appends text to the tracked message in arrival order.
// Reports whether the chunk was accepted. Unknown ids are a no-op, never an
// error: a late chunk from a cancelled stream must not raise or mutate.
func (a *Aggregator) ApplyChunk(responseID, text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, ok := a.tracked[responseID]
	if !ok {
		return false
	}
	msg.Text += text
	a.received[responseID]++
	return true
}

// ChunkCount reports how many chunks a tracked response id has received so
// far. Returns zero for unknown ids.
func (a *Aggregator) ChunkCount(responseID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received[responseID]
}

// Finish marks the message terminal and stops tracking the response id.
// Returns ErrUnknownSession if the id is not tracked.
func (a *Aggregator) Finish(responseID string) (*Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, ok := a.tracked[responseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, responseID)
	}
	msg.Terminal = true
	a.untrackLocked(responseID)
	return msg, nil
}

// Fail terminates the message with a failure annotation and stops tracking.
// If no chunks arrived the notice replaces the empty text; otherwise it is
// appended so partial output is never lost to an error.
func (a *Aggregator) Fail(responseID, errText string) (*Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, ok := a.tracked[responseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, responseID)
	}

	notice := fmt.Sprintf("[response interrupted: %s]", errText)
	if a.received[responseID] == 0 {
		msg.Text = notice
	} else {
		msg.Text += "\n\n" + notice
	}
	msg.Terminal = true
	a.untrackLocked(responseID)
	return msg, nil
}

// Cancel drops tracking for a response id without touching the message text.
// The message is marked terminal so later chunks become no-ops. Unknown ids
// are ignored.
func (a *Aggregator) Cancel(responseID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, ok := a.tracked[responseID]
	if !ok {
		return
	}
	msg.Terminal = true
	a.untrackLocked(responseID)
}

// untrackLocked removes all bookkeeping for a response id. Must be called
// with mu held.
func (a *Aggregator) untrackLocked(responseID string) {
	delete(a.tracked, responseID)
	delete(a.received, responseID)
}
