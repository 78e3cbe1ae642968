// ABOUTME: HTTP client for the gateway's conversation storage endpoints
// ABOUTME: Normalizes varying list envelopes into one internal representation

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/fold-console/internal/directory"
	"github.com/2389/fold-console/internal/stream"
	"github.com/2389/fold-console/internal/transport"
)

const requestTimeout = 30 * time.Second

// listEnvelopeKeys are the wrapper fields the backend is known to use when
// it does not return a bare array. Varies by endpoint on the origin server.
var listEnvelopeKeys = []string{"conversations", "messages", "data", "items"}

// Client talks to the gateway's conversation CRUD and history endpoints.
// It implements directory.Storage and the session history loader.
type Client struct {
	baseURL string
	token   transport.TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a storage client for the given gateway base URL.
func NewClient(baseURL string, token transport.TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger.With("component", "api"),
	}
}

// summaryJSON is the wire shape of a conversation summary.
type summaryJSON struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s summaryJSON) toSummary() directory.Summary {
	out := directory.Summary{ID: s.ID, UpdatedAt: s.UpdatedAt}
	if s.Title != nil {
		out.Title = *s.Title
	}
	return out
}

// messageJSON is the wire shape of a conversation message.
type messageJSON struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// ListConversations implements directory.Storage.
func (c *Client) ListConversations(ctx context.Context) ([]directory.Summary, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/conversations", nil)
	if err != nil {
		return nil, err
	}

	raw, err := unwrapList(body)
	if err != nil {
		return nil, fmt.Errorf("parsing conversation list: %w", err)
	}

	var wire []summaryJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parsing conversation list: %w", err)
	}

	out := make([]directory.Summary, len(wire))
	for i, s := range wire {
		out[i] = s.toSummary()
	}
	return out, nil
}

// CreateConversation implements directory.Storage.
func (c *Client) CreateConversation(ctx context.Context) (*directory.Summary, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/conversations", nil)
	if err != nil {
		return nil, err
	}

	var wire summaryJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsing created conversation: %w", err)
	}
	s := wire.toSummary()
	return &s, nil
}

// RenameConversation implements directory.Storage.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	payload, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, "/api/conversations/"+id, payload)
	return err
}

// DeleteConversation implements directory.Storage.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/conversations/"+id, nil)
	return err
}

// ConversationMessages loads the message history for a conversation,
// oldest first. Implements the session coordinator's history loader.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]*stream.Message, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	raw, err := unwrapList(body)
	if err != nil {
		return nil, fmt.Errorf("parsing message history: %w", err)
	}

	var wire []messageJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parsing message history: %w", err)
	}

	out := make([]*stream.Message, len(wire))
	for i, m := range wire {
		origin := stream.OriginAssistant
		if m.Origin == string(stream.OriginUser) {
			origin = stream.OriginUser
		}
		out[i] = &stream.Message{
			ID:        m.ID,
			Text:      m.Text,
			Origin:    origin,
			CreatedAt: m.CreatedAt,
			Terminal:  true, // history is settled by definition
		}
	}
	return out, nil
}

// do performs one JSON request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: %s", method, path, errorMessage(resp, data))
	}
	return data, nil
}

// errorMessage extracts a server error string from a failed response.
func errorMessage(resp *http.Response, body []byte) string {
	var errResp map[string]string
	if json.Unmarshal(body, &errResp) == nil {
		if msg, ok := errResp["error"]; ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("server returned status %d", resp.StatusCode)
}

// unwrapList normalizes a list response body into its bare JSON array. The
// backend returns either a plain array or an object wrapping the array
// under one of a few known fields, depending on the endpoint.
func unwrapList(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("[]"), nil
	}

	if trimmed[0] == '[' {
		return json.RawMessage(trimmed), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}

	for _, key := range listEnvelopeKeys {
		if raw, ok := envelope[key]; ok {
			inner := bytes.TrimSpace(raw)
			if len(inner) > 0 && inner[0] == '[' {
				return json.RawMessage(inner), nil
			}
		}
	}
	return nil, fmt.Errorf("unexpected response shape: no list field found")
}
