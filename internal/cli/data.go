package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/guildbot/internal/data"
)

// DocumentResult is the JSON output of data get.
type DocumentResult struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// MutationResult is the JSON output of data set and data rm.
type MutationResult struct {
	ID      string       `json:"id"`
	Outcome data.Outcome `json:"outcome"`
}

// ListResult is the JSON output of data ls.
type ListResult struct {
	Dir string   `json:"dir"`
	IDs []string `json:"ids"`
}

// NewDataCommand creates the data command and its subcommands.
func NewDataCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Inspect and edit stored documents",
		Long: `Read and write documents in the configured backend by logical id.

Example:
  guildbot data get bot/config
  guildbot data set command/ping '{"reply":"Pong!"}'
  guildbot data ls mail --store sqlite://bot.db`,
	}

	cmd.AddCommand(newDataGetCommand(rootOpts))
	cmd.AddCommand(newDataSetCommand(rootOpts))
	cmd.AddCommand(newDataRemoveCommand(rootOpts))
	cmd.AddCommand(newDataListCommand(rootOpts))
	return cmd
}

func newDataGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Print a document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			id := args[0]
			raw, ok := data.Read[json.RawMessage](commandContext(cmd), st, id)
			if !ok {
				return NewExitError(ExitFailure, fmt.Sprintf("document not found: %s", id))
			}

			f := formatter(cmd, opts)
			if opts.Format == "json" {
				return f.Success(DocumentResult{ID: id, Value: raw})
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return WrapExitError(ExitFailure, "stored document is not valid JSON", err)
			}
			return f.Success(strings.TrimSpace(buf.String()))
		},
	}
}

func newDataSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <id> <json>",
		Short:         "Write a document",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, body := args[0], []byte(args[1])
			if !json.Valid(body) {
				return NewExitError(ExitCommandError, fmt.Sprintf("value for %s is not valid JSON", id))
			}

			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			o := data.Write(commandContext(cmd), st, id, json.RawMessage(body))
			if err := printMutation(formatter(cmd, opts), opts, "wrote", id, o); err != nil {
				return err
			}
			if !o.Result {
				return NewExitError(ExitFailure, fmt.Sprintf("write of %s incomplete", id))
			}
			return nil
		},
	}
}

func newDataRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <id>",
		Short:         "Delete a document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			id := args[0]
			// A fresh store has nothing cached, so only the backend layer
			// decides whether anything was removed.
			o := st.Remove(commandContext(cmd), id)
			if err := printMutation(formatter(cmd, opts), opts, "removed", id, o); err != nil {
				return err
			}
			if !o.File {
				return NewExitError(ExitFailure, fmt.Sprintf("document not found: %s", id))
			}
			return nil
		},
	}
}

func newDataListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "ls <dir>",
		Short:         "List document ids under a directory",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			dir := args[0]
			seen := make(map[string]bool)
			o := data.ForEachUnder(commandContext(cmd), st, dir, func(_ json.RawMessage, path string) error {
				seen[st.Codec().ID(path)] = true
				return nil
			})
			if !o.File {
				return NewExitError(ExitFailure, fmt.Sprintf("directory not found: %s", dir))
			}

			ids := make([]string, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			f := formatter(cmd, opts)
			if opts.Format == "json" {
				return f.Success(ListResult{Dir: dir, IDs: ids})
			}
			for _, id := range ids {
				fmt.Fprintln(f.Writer, id)
			}
			return nil
		},
	}
}

func printMutation(f *OutputFormatter, opts *RootOptions, verb, id string, o data.Outcome) error {
	if opts.Format == "json" {
		return f.Success(MutationResult{ID: id, Outcome: o})
	}
	fmt.Fprintf(f.Writer, "%s %s (cache=%v file=%v)\n", verb, id, o.Cache, o.File)
	return nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
