// ABOUTME: Transcript export rendering to HTML and Markdown
// ABOUTME: Assistant messages are treated as Markdown and converted with goldmark

package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/fold-console/internal/stream"
)

// Transcript is a conversation prepared for export
type Transcript struct {
	Title    string
	Messages []*stream.Message
}

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.message { margin: 1.5rem 0; }
.message .meta { color: #666; font-size: 0.85rem; margin-bottom: 0.25rem; }
.message.user .body { background: #f0f4ff; border-radius: 8px; padding: 0.75rem 1rem; }
.message.assistant .body { padding: 0 0.25rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="message {{.Origin}}">
<div class="meta">{{.Origin}} &middot; {{.Timestamp}}</div>
<div class="body">{{.Body}}</div>
</div>
{{end}}</body>
</html>
`))

type renderedMessage struct {
	Origin    string
	Timestamp string
	Body      template.HTML
}

// HTML writes the transcript as a standalone HTML document. Assistant
// messages are rendered as Markdown; user messages are escaped verbatim.
func HTML(w io.Writer, t *Transcript) error {
	data := struct {
		Title    string
		Messages []renderedMessage
	}{Title: t.Title}

	for _, msg := range t.Messages {
		body, err := messageHTML(msg)
		if err != nil {
			return fmt.Errorf("rendering message %s: %w", msg.ID, err)
		}
		data.Messages = append(data.Messages, renderedMessage{
			Origin:    string(msg.Origin),
			Timestamp: msg.CreatedAt.Format(time.RFC1123),
			Body:      body,
		})
	}

	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}

func messageHTML(msg *stream.Message) (template.HTML, error) {
	if msg.Origin == stream.OriginUser {
		escaped := html.EscapeString(msg.Text)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")
		return template.HTML(escaped), nil
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(msg.Text), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Markdown writes the transcript as a Markdown document with per-message
// origin headings, suitable for dropping into notes.
func Markdown(w io.Writer, t *Transcript) error {
	var b strings.Builder
	b.WriteString("# " + t.Title + "\n")
	for _, msg := range t.Messages {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n",
			msg.Origin, msg.CreatedAt.Format(time.RFC1123), msg.Text)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}
