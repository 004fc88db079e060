package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roach88/guildbot/internal/data"
)

// Environment variables read when the matching flag is not set.
const (
	EnvStore = "GUILDBOT_STORE"
	EnvRoot  = "GUILDBOT_ROOT"
	EnvToken = "TOKEN"
	EnvOwner = "OWNERID"
)

// DefaultEnvFile is loaded when present unless --env-file names another.
const DefaultEnvFile = ".env"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Store   string // backend DSN
	Root    string // document root inside the backend
	EnvFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the guildbot CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "guildbot",
		Short: "guildbot - a chat bot core",
		Long:  "A chat bot core: a two-layer document store and an action registry that routes interactions to handlers.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := loadEnv(opts.EnvFile, cmd.Flags().Changed("env-file")); err != nil {
				return WrapExitError(ExitCommandError, "failed to load env file", err)
			}
			applyEnvDefaults(cmd, opts)
			configureLogging(cmd.ErrOrStderr(), opts)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "document backend DSN: a directory, file://, memory://, sqlite:// or postgres:// (env "+EnvStore+")")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", data.DefaultRoot, "document root inside the backend (env "+EnvRoot+")")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", DefaultEnvFile, "dotenv file with secrets such as "+EnvToken+" and "+EnvOwner)

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewDataCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadEnv loads a dotenv file without overriding variables already set.
// A missing default file is fine; a missing file named on the command line
// is an error.
func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug("loaded env file", "path", path)
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnvDefaults(cmd *cobra.Command, opts *RootOptions) {
	flags := cmd.Flags()
	if !flags.Changed("store") && opts.Store == "" {
		opts.Store = os.Getenv(EnvStore)
	}
	if !flags.Changed("root") {
		if v := os.Getenv(EnvRoot); v != "" {
			opts.Root = v
		}
	}
}

// configureLogging installs the default slog logger. JSON output gets JSON
// logs so both streams are machine-readable.
func configureLogging(w io.Writer, opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// openStore opens the configured backend behind a store facade.
func openStore(opts *RootOptions, storeOpts ...data.StoreOption) (*data.Store, error) {
	backend, err := data.OpenBackend(opts.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	storeOpts = append([]data.StoreOption{data.WithCodec(data.NewCodec(opts.Root))}, storeOpts...)
	return data.NewStore(backend, storeOpts...), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
