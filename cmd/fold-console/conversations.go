// ABOUTME: One-shot conversation management subcommands
// ABOUTME: list, new, rename, and delete operating through the directory

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/fold-console/internal/directory"
	"github.com/2389/fold-console/internal/store"
)

func newConversationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage conversations on the gateway",
	}

	var (
		search string
		local  bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if local {
				convs, err := a.mirror.ListConversations(cmd.Context())
				if err != nil {
					return err
				}
				printSummaryTable(mirrorSummaries(convs, search))
				return nil
			}
			summaries, err := a.dir.List(cmd.Context(), search)
			if err != nil {
				return err
			}
			printSummaryTable(summaries)
			return nil
		},
	}
	listCmd.Flags().StringVar(&search, "search", "", "filter by title substring")
	listCmd.Flags().BoolVar(&local, "local", false, "list from the local mirror instead of the gateway")

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := a.dir.Create(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(summary.ID)
			return nil
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.dir.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if err := a.mirror.SetTitle(cmd.Context(), args[0], args[1]); err != nil {
				a.logger.Warn("failed to mirror title", "error", err)
			}
			directory.Refresh()
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.dir.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := a.mirror.DeleteConversation(cmd.Context(), args[0]); err != nil {
				a.logger.Warn("failed to prune mirror", "error", err)
			}
			directory.Refresh()
			return nil
		},
	}

	cmd.AddCommand(listCmd, newCmd, renameCmd, deleteCmd)
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search local transcripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := a.mirror.SearchMessages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("No matches")
				return nil
			}
			gray := color.New(color.FgHiBlack)
			for _, hit := range hits {
				gray.Printf("[%s] ", hit.ConversationID)
				fmt.Println(excerpt(hit.Message.Text, 100))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

// mirrorSummaries converts mirrored conversations for display, applying the
// same case-insensitive display-title filter the directory uses.
func mirrorSummaries(convs []*store.Conversation, search string) []directory.Summary {
	needle := strings.ToLower(search)
	var out []directory.Summary
	for _, c := range convs {
		s := directory.Summary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
		if needle != "" && !strings.Contains(strings.ToLower(s.DisplayTitle()), needle) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func printSummaryTable(summaries []directory.Summary) {
	if len(summaries) == 0 {
		fmt.Println("No conversations")
		return
	}
	gray := color.New(color.FgHiBlack)
	for _, s := range summaries {
		fmt.Printf("%s  %s", s.ID, s.DisplayTitle())
		gray.Printf("  (%s)\n", s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}
