// ABOUTME: SSE streaming client for POST /api/send against the gateway
// ABOUTME: Parses event/data frames and dispatches Handler callbacks in order

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// TokenSource supplies the bearer token attached to each request. It is
// called per request so rotated tokens are picked up without a restart.
type TokenSource func() string

// Client is the SSE implementation of Port. It speaks the gateway's
// /api/send protocol: a JSON POST answered with a text/event-stream body
// carrying "text", "done" and "error" events.
type Client struct {
	baseURL string
	token   TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a streaming client for the given gateway base URL.
// Pass nil token source when the backend is unauthenticated.
func NewClient(baseURL string, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No overall timeout: the response body is a long-lived stream.
		// Cancellation comes from the request context.
		http:   &http.Client{},
		logger: logger.With("component", "transport"),
	}
}

// chunkData is the JSON payload of "text" and "error" SSE events.
type chunkData struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// OpenStream implements Port. Callbacks run inline on the calling
// goroutine, so chunk order is exactly body delivery order.
func (c *Client) OpenStream(ctx context.Context, req SendRequest, h Handler) error {
	resp, err := c.open(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = c.consume(ctx, resp.Body, h)
	if err != nil {
		// Stream was already open: failures surface through OnError,
		// not the return value.
		if h.OnError != nil {
			h.OnError(err.Error())
		}
	}
	return nil
}

// Send implements the non-streaming fallback by accumulating the stream.
func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	var sb strings.Builder
	var streamErr error

	err := c.OpenStream(ctx, req, Handler{
		OnChunk: func(text string) { sb.WriteString(text) },
		OnError: func(message string) { streamErr = fmt.Errorf("%w: %s", ErrTransport, message) },
	})
	if err != nil {
		return "", err
	}
	if streamErr != nil {
		return "", streamErr
	}
	return sb.String(), nil
}

// open performs the POST and validates that a stream came back.
func (c *Client) open(ctx context.Context, req SendRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != nil {
		if t := c.token(); t != "" {
			httpReq.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrTransport, readErrorBody(resp))
	}

	return resp, nil
}

// consume reads SSE frames until a terminal event or EOF. It returns an
// error only for transport-level interruptions; protocol "error" events are
// dispatched to the handler and end the stream normally.
func (c *Client) consume(ctx context.Context, body io.Reader, h Handler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
		default:
		}

		line := scanner.Text()

		// Blank line terminates an event frame.
		if line == "" {
			et := eventType
			if et != "" && len(dataLines) > 0 {
				data := strings.Join(dataLines, "\n")
				if c.dispatchEvent(et, data, h) {
					return nil
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// Comment lines and unknown fields are ignored.
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading stream: %v", ErrTransport, err)
	}

	// EOF without a "done" event still means the backend closed cleanly.
	if h.OnEnd != nil {
		h.OnEnd()
	}
	return nil
}

// dispatchEvent routes one parsed frame. Reports whether the stream is done.
func (c *Client) dispatchEvent(eventType, data string, h Handler) bool {
	switch eventType {
	case "text":
		var d chunkData
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			c.logger.Warn("malformed text event", "error", err)
			return false
		}
		if h.OnChunk != nil {
			h.OnChunk(d.Text)
		}
		return false

	case "done":
		if h.OnEnd != nil {
			h.OnEnd()
		}
		return true

	case "error":
		var d chunkData
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			d.Error = data
		}
		if h.OnError != nil {
			h.OnError(d.Error)
		}
		return true

	case "started", "thinking":
		// Informational; the session layer models thinking itself.
		return false

	default:
		c.logger.Debug("ignoring unknown SSE event", "event", eventType)
		return false
	}
}

// readErrorBody extracts an error message from a non-200 response.
func readErrorBody(resp *http.Response) string {
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok && msg != "" {
				return msg
			}
		}
		return fmt.Sprintf("server returned status %d", resp.StatusCode)
	}
	return fmt.Sprintf("server returned status %d", resp.StatusCode)
}
