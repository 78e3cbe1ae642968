// Package transport opens streaming sends against the assistant backend.
//
// The backend answers POST /api/send with a Server-Sent Events stream. The
// Client parses the frames and drives a Handler with ordered chunk
// callbacks; the session layer never touches the wire format.
package transport
