// ABOUTME: Transport Port consumed by the session layer for streaming sends
// ABOUTME: Defines the request/callback contract plumbed by the SSE client

package transport

import (
	"context"
	"errors"
)

// ErrTransport wraps network and protocol failures from the backend call.
var ErrTransport = errors.New("transport failure")

// SendRequest carries one user question to the backend. ConversationID is
// optional; the backend allocates a conversation when it is empty.
type SendRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
}

// Handler receives streaming callbacks for one open call. Exactly one of
// OnEnd or OnError is invoked last; OnChunk may be invoked any number of
// times before that, in delivery order. Nil callbacks are skipped.
type Handler struct {
	OnChunk func(text string)
	OnEnd   func()
	OnError func(message string)
}

// Port opens streaming calls against the assistant backend.
//
// OpenStream blocks until the stream terminates and dispatches callbacks
// inline from the calling goroutine, preserving chunk delivery order.
// Cancellation is out-of-band via ctx: cancelling the context tears down
// the underlying call and surfaces OnError. A non-nil return value means
// the call could not be started; after the first callback the return value
// is always nil.
//
// Send is the non-streaming fallback: it runs the same call to completion
// and returns the full concatenated answer.
type Port interface {
	OpenStream(ctx context.Context, req SendRequest, h Handler) error
	Send(ctx context.Context, req SendRequest) (string, error)
}
