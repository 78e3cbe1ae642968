// ABOUTME: Transcript export subcommand
// ABOUTME: Renders a conversation to HTML or Markdown via the render package

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/fold-console/internal/render"
	"github.com/2389/fold-console/internal/stream"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
		local  bool
	)

	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation transcript",
		Long:  "Export a conversation to HTML or Markdown. History comes from the gateway, or from the local mirror with --local.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conversationID := args[0]

			var msgs []*stream.Message
			var err error
			if local {
				msgs, err = a.mirror.ConversationMessages(ctx, conversationID)
			} else {
				msgs, err = a.api.ConversationMessages(ctx, conversationID)
			}
			if err != nil {
				return fmt.Errorf("loading transcript: %w", err)
			}

			transcript := &render.Transcript{
				Title:    exportTitle(ctx, a, conversationID),
				Messages: msgs,
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			switch strings.ToLower(format) {
			case "html":
				return render.HTML(out, transcript)
			case "md", "markdown":
				return render.Markdown(out, transcript)
			default:
				return fmt.Errorf("unknown format %q (html, md)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "html", "output format: html or md")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&local, "local", false, "read from the local mirror instead of the gateway")
	return cmd
}

// exportTitle prefers the gateway title, falling back to the conversation id
func exportTitle(ctx context.Context, a *app, conversationID string) string {
	summaries, err := a.dir.List(ctx, "")
	if err == nil {
		for _, s := range summaries {
			if s.ID == conversationID {
				return s.DisplayTitle()
			}
		}
	}
	return conversationID
}
