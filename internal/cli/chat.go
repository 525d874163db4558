package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/mirror/internal/agent"
	"github.com/soyeahso/mirror/internal/config"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: "With a message, run one turn and print the reply. Without one, read utterances " +
			"line by line from stdin until EOF; the conversation carries over between lines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := validate(config.Validate(&cfg)); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildAssistant(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			verbose = verbose || log.Enabled("debug")
			turn := func(msg string) {
				res := a.runner.Run(ctx, msg)
				printTurn(out, res)
				if verbose {
					fmt.Fprintf(cmd.ErrOrStderr(), "[turn=%s command=%s tokens=%d+%d %s]\n",
						res.ID, commandName(res), res.Usage.InputTokens, res.Usage.OutputTokens, res.Duration.Round(time.Millisecond))
					if res.ToolResult != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", strings.TrimRight(res.ToolResult, "\n"))
					}
				}
			}

			if len(args) > 0 {
				turn(strings.Join(args, " "))
				return nil
			}
			return repl(ctx, cmd.InOrStdin(), out, turn)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print turn details and tool results to stderr (implied by --log-level debug)")

	return cmd
}

// repl runs one turn per non-blank input line.
func repl(ctx context.Context, in io.Reader, out io.Writer, turn func(string)) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			turn(line)
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

// printTurn prints the reply, plus the executed action when the display
// would have to act on it.
func printTurn(w io.Writer, res *agent.TurnResult) {
	fmt.Fprintln(w, res.Reply.Text)
	if res.Action != nil && res.Action.Command == agent.CommandPlaySong {
		fmt.Fprintf(w, "  [%s %s]\n", res.Action.Command, formatParams(res.Action.Parameters()))
	}
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}

func commandName(res *agent.TurnResult) agent.Command {
	if res.Action == nil {
		return agent.CommandNone
	}
	return res.Action.Command
}
