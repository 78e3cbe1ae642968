// ABOUTME: Interactive chat REPL with streaming output and slash commands
// ABOUTME: Drives the session coordinator and conversation directory from stdin

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/fold-console/internal/directory"
	"github.com/2389/fold-console/internal/session"
	"github.com/2389/fold-console/internal/stream"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runChat(ctx, a)
		},
	}
}

// thinkingIndicator is shown after a send until the first chunk arrives.
const thinkingIndicator = "thinking…"

// eraseLine returns the cursor to column 0 and clears the line.
const eraseLine = "\r\033[K"

// chatUI owns the terminal side of a chat session
type chatUI struct {
	app      *app
	state    *consoleState
	out      io.Writer
	settled  chan struct{}
	thinking atomic.Bool

	assistant *color.Color
	gray      *color.Color
	yellow    *color.Color
	red       *color.Color
}

// newChatUI builds the terminal UI and hooks it into the coordinator's
// stream callbacks.
func newChatUI(a *app, out io.Writer, st *consoleState) *chatUI {
	ui := &chatUI{
		app:       a,
		state:     st,
		out:       out,
		settled:   make(chan struct{}, 1),
		assistant: color.New(color.FgGreen),
		gray:      color.New(color.FgHiBlack),
		yellow:    color.New(color.FgYellow),
		red:       color.New(color.FgRed),
	}

	a.coord.OnChunk(ui.printChunk)
	a.coord.OnSettle(func() {
		select {
		case ui.settled <- struct{}{}:
		default:
		}
	})
	return ui
}

func runChat(ctx context.Context, a *app) error {
	st, err := loadState(a.statePath)
	if err != nil {
		return err
	}

	ui := newChatUI(a, os.Stdout, st)

	a.dir.Mount()
	defer a.dir.Unmount()

	fmt.Printf("fold-console connected to %s\n", a.cfg.Gateway.URL)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := ui.resume(ctx); err != nil {
		return err
	}

	return ui.loop(ctx)
}

// resume reconnects to the remembered conversation, or creates a fresh one
func (ui *chatUI) resume(ctx context.Context) error {
	coord := ui.app.coord

	if ui.state.ActiveConversation != "" {
		if err := coord.SwitchConversation(ctx, ui.state.ActiveConversation); err != nil {
			ui.yellow.Printf("Could not resume conversation %s: %v\n", ui.state.ActiveConversation, err)
			ui.state.ActiveConversation = ""
		} else {
			ui.printTranscript(coord.Messages())
			return nil
		}
	}

	summary, err := ui.app.dir.Create(ctx)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	ui.gray.Printf("Started conversation %s\n\n", summary.ID)
	ui.rememberActive()
	return nil
}

func (ui *chatUI) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := ui.command(ctx, input)
			if err != nil {
				ui.red.Printf("[error] %v\n", err)
			}
			if quit {
				return nil
			}
			fmt.Println()
			continue
		}

		ui.send(ctx, input)
		fmt.Println()
	}
}

// printChunk renders one streamed chunk, replacing the thinking indicator
// the first time text arrives.
func (ui *chatUI) printChunk(text string) {
	ui.clearThinking()
	ui.assistant.Fprint(ui.out, text)
}

// showThinking prints the transient indicator. It must be shown before
// Send starts the stream so a fast first chunk cannot race the erase.
func (ui *chatUI) showThinking() {
	ui.thinking.Store(true)
	ui.gray.Fprint(ui.out, thinkingIndicator)
}

// clearThinking erases the indicator if it is still on screen.
func (ui *chatUI) clearThinking() {
	if ui.thinking.CompareAndSwap(true, false) {
		fmt.Fprint(ui.out, eraseLine)
	}
}

// send streams one question and blocks until the stream settles
func (ui *chatUI) send(ctx context.Context, question string) {
	coord := ui.app.coord

	ui.showThinking()
	if err := coord.Send(ctx, question); err != nil {
		ui.clearThinking()
		if errors.Is(err, session.ErrStreamActive) {
			ui.yellow.Fprintln(ui.out, "A response is still streaming; wait for it to finish.")
			return
		}
		ui.red.Fprintf(ui.out, "[error] %v\n", err)
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-ui.settled:
	}
	// Streams that settle without a chunk leave the indicator behind.
	ui.clearThinking()
	fmt.Fprintln(ui.out)

	if banner := coord.Banner(); banner != "" {
		ui.red.Fprintln(ui.out, banner)
		coord.DismissBanner()
	}
	ui.rememberActive()
}

// command dispatches a slash command; returns true when the REPL should exit
func (ui *chatUI) command(ctx context.Context, input string) (bool, error) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		printChatHelp()

	case "/conversations":
		summaries, err := ui.app.dir.List(ctx, args)
		if err != nil {
			return false, err
		}
		ui.printSummaries(summaries)

	case "/switch":
		if args == "" {
			return false, fmt.Errorf("usage: /switch <conversation-id>")
		}
		if err := ui.app.coord.SwitchConversation(ctx, args); err != nil {
			return false, err
		}
		ui.printTranscript(ui.app.coord.Messages())
		ui.rememberActive()

	case "/new":
		summary, err := ui.app.dir.Create(ctx)
		if err != nil {
			return false, err
		}
		ui.gray.Printf("Started conversation %s\n", summary.ID)
		ui.rememberActive()

	case "/rename":
		if args == "" {
			return false, fmt.Errorf("usage: /rename <new title>")
		}
		active := ui.app.coord.ActiveConversation()
		if active == "" {
			return false, fmt.Errorf("no active conversation")
		}
		if err := ui.app.dir.Rename(ctx, active, args); err != nil {
			return false, err
		}
		if err := ui.app.mirror.SetTitle(ctx, active, args); err != nil {
			ui.app.logger.Warn("failed to mirror title", "error", err)
		}
		ui.gray.Printf("Renamed to %q\n", args)

	case "/delete":
		active := ui.app.coord.ActiveConversation()
		if active == "" {
			return false, fmt.Errorf("no active conversation")
		}
		if err := ui.app.dir.Delete(ctx, active); err != nil {
			return false, err
		}
		if err := ui.app.mirror.DeleteConversation(ctx, active); err != nil {
			ui.app.logger.Warn("failed to prune mirror", "error", err)
		}
		ui.gray.Printf("Deleted %s, now on %s\n", active, ui.app.coord.ActiveConversation())
		ui.printTranscript(ui.app.coord.Messages())
		ui.rememberActive()

	case "/search":
		if args == "" {
			return false, fmt.Errorf("usage: /search <query>")
		}
		hits, err := ui.app.mirror.SearchMessages(ctx, args, 20)
		if err != nil {
			return false, err
		}
		if len(hits) == 0 {
			fmt.Println("No matches in local transcripts")
			break
		}
		for _, hit := range hits {
			ui.gray.Printf("[%s] ", hit.ConversationID)
			fmt.Println(excerpt(hit.Message.Text, 80))
		}

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}

	return false, nil
}

// rememberActive persists the active conversation id for the next run
func (ui *chatUI) rememberActive() {
	active := ui.app.coord.ActiveConversation()
	if active == ui.state.ActiveConversation {
		return
	}
	ui.state.ActiveConversation = active
	if err := saveState(ui.app.statePath, ui.state); err != nil {
		ui.app.logger.Warn("failed to save state", "error", err)
	}
}

func (ui *chatUI) printTranscript(msgs []stream.Message) {
	for _, msg := range msgs {
		if msg.Origin == stream.OriginUser {
			fmt.Printf("> %s\n", msg.Text)
		} else {
			ui.assistant.Println(msg.Text)
		}
	}
}

func (ui *chatUI) printSummaries(summaries []directory.Summary) {
	if len(summaries) == 0 {
		fmt.Println("No conversations")
		return
	}
	active := ui.app.coord.ActiveConversation()
	for _, s := range summaries {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %s  %s", marker, s.ID, s.DisplayTitle())
		ui.gray.Printf("  (%s)\n", s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func printChatHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations [query]   List conversations, optionally filtered")
	fmt.Println("  /switch <id>             Switch to a conversation")
	fmt.Println("  /new                     Start a new conversation")
	fmt.Println("  /rename <title>          Rename the active conversation")
	fmt.Println("  /delete                  Delete the active conversation")
	fmt.Println("  /search <query>          Search local transcripts")
	fmt.Println("  /help                    Show this help")
	fmt.Println("  /quit                    Exit")
}

// excerpt flattens and truncates message text for one-line display
func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
