// Package session coordinates streaming sends for the active conversation.
//
// # Coordinator
//
// The Coordinator is the top-level controller between the CLI surface and
// the transport port:
//
//	coord := session.New(client, history, mirror, "console-user", logger)
//	coord.SwitchConversation(ctx, conversationID)
//	coord.Send(ctx, "why is the deploy red?")
//
// Key guarantees:
//
//   - At most one non-cancelled stream session exists at a time. Send
//     returns ErrStreamActive while one is live; sends are rejected, never
//     queued.
//   - The user message is appended before any network activity, so input
//     survives a call that fails to start.
//   - The first accepted chunk makes the assistant message visible; until
//     then the session is in PhaseThinking and the UI shows an indicator
//     instead of an empty bubble.
//   - Switching conversations cancels the live session. Late callbacks are
//     discarded both here (session identity checks) and in the aggregator
//     (no-op on unknown ids), so a stream opened for conversation A can
//     never mutate conversation B's list.
//   - Transport failures become a terminal assistant message that keeps any
//     partial output, plus a dismissible banner. The coordinator returns to
//     idle and stays usable.
package session
