package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/mirror/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled turns, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(func(ctx context.Context, db *store.DB) error {
				turns, err := db.RecentTurns(ctx, limit)
				if err != nil {
					return err
				}
				printTurns(cmd.OutOrStdout(), turns)
				return nil
			})
		},
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "maximum rows to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over utterances and replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(func(ctx context.Context, db *store.DB) error {
				turns, err := db.SearchTurns(ctx, strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				printTurns(cmd.OutOrStdout(), turns)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "conversations",
		Short: "List journaled conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(func(ctx context.Context, db *store.DB) error {
				convs, err := db.Conversations(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTARTED\tTURNS")
				for _, c := range convs {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.ID, c.StartedAt.Local().Format(time.DateTime), c.Turns)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print every entry of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(func(ctx context.Context, db *store.DB) error {
				entries, err := db.Entries(ctx, args[0])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("conversation %q not found", args[0])
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintf(out, "[%d] %s:\n%s\n\n", e.Position, e.Role, strings.TrimRight(e.Content, "\n"))
				}
				return nil
			})
		},
	})

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversations started before a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withJournal(func(ctx context.Context, db *store.DB) error {
				n, err := db.Prune(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d conversation(s)\n", n)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of conversations to delete")
	cmd.AddCommand(prune)

	return cmd
}

// withJournal opens the configured journal for the duration of fn.
func withJournal(fn func(ctx context.Context, db *store.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
		return fmt.Errorf("no journal at %s", cfg.Journal.Path)
	}
	db, err := store.Open(cfg.Journal.Path, log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func printTurns(w io.Writer, turns []store.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "No turns.")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(w, "%s  %s  (%s, %s)\n", t.CreatedAt.Local().Format(time.DateTime), t.ID, t.Command, t.Duration)
		fmt.Fprintf(w, "  > %s\n", t.Utterance)
		fmt.Fprintf(w, "  < %s\n", t.Reply)
	}
}
