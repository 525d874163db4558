package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soyeahso/mirror/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const masked = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit ~/.mirror/config.yaml",
		Long: `Keys are dotted YAML paths such as weather.defaultLocation or
llm.temperature. Unknown keys are rejected. Credentials are masked on output
unless --reveal is given.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the whole config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			var v any = raw
			if !reveal {
				v = redact("", raw)
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print credentials in clear")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one value or section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			val, ok := config.GetValueAtPath(raw, key)
			if !ok {
				return fmt.Errorf("%s is not set", args[0])
			}
			if !reveal {
				val = redact(key[len(key)-1], val)
			}
			return printValue(cmd.OutOrStdout(), val)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print credentials in clear")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value; ${VAR} references are kept verbatim",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[1])
			err := editConfig(cmd.OutOrStdout(), args[0], func(raw map[string]any, key []string) error {
				config.SetValueAtPath(raw, key, value)
				return nil
			})
			if err != nil {
				return err
			}
			key := strings.Split(args[0], ".")
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], redact(key[len(key)-1], value))
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a value so its default applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := editConfig(cmd.OutOrStdout(), args[0], func(raw map[string]any, key []string) error {
				if !config.UnsetValueAtPath(raw, key) {
					return fmt.Errorf("%s is not set", args[0])
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

// editConfig applies edit to the raw file and saves it, then warns about any
// validation issue the edited key now has. The file is written regardless so
// a multi-step change can pass through invalid states.
func editConfig(w io.Writer, dotted string, edit func(raw map[string]any, key []string) error) error {
	key, err := config.ParseConfigPath(dotted)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := edit(raw, key); err != nil {
		return err
	}
	if err := config.SaveRaw(paths.Config, raw); err != nil {
		return err
	}

	cfg, err := config.Load(paths.Config)
	if err != nil {
		return fmt.Errorf("saved, but the file no longer loads: %w", err)
	}
	for _, issue := range issuesFor(config.Validate(&cfg), dotted) {
		fmt.Fprintf(w, "warning: %s\n", issue)
	}
	return nil
}

// issuesFor keeps the issues at or below the given key.
func issuesFor(issues []config.ValidationIssue, dotted string) []config.ValidationIssue {
	var out []config.ValidationIssue
	for _, issue := range issues {
		if issue.Path == dotted || strings.HasPrefix(issue.Path, dotted+".") {
			out = append(out, issue)
		}
	}
	return out
}

// secretKeys name config fields that hold credentials.
var secretKeys = map[string]bool{
	"apiKey": true,
	"token":  true,
}

// redact masks credential values, descending into sections. Environment
// references such as ${WEATHER_API_KEY} are not secrets and stay visible.
func redact(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = redact(k, child)
		}
		return out
	case string:
		if secretKeys[key] && val != "" && !strings.HasPrefix(val, "${") {
			return masked
		}
		return val
	default:
		return v
	}
}

func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// parseValue types a command-line value the way YAML would: booleans,
// canonical integers, then floats. Anything else stays a string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
