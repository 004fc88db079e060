package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/actions"
	"github.com/roach88/guildbot/internal/data"
	"github.com/roach88/guildbot/internal/engine"
	"github.com/roach88/guildbot/internal/metrics"
	"github.com/roach88/guildbot/internal/sweep"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Events      string // file of JSON events, "-" for stdin
	MetricsAddr string
	Watch       bool
	Owner       string

	// Platform overrides the JSON-lines platform (for testing). The idle
	// mail sweep only runs when the platform can manage channels.
	Platform action.Platform

	// IDGenerator overrides the invocation id source (for testing).
	IDGenerator engine.IDGenerator

	// Now overrides the clock given to actions (for testing).
	Now func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch events until input ends or a signal arrives",
		Long: `Start the dispatcher with the built-in actions.

Events are read as JSON lines from stdin (or --events) and dispatched one at
a time. Replies and results are written to stdout as JSON lines. Idle ModMail
tickets are swept on the interval from the bot/config document.

Example:
  guildbot run --store ./state < events.jsonl
  guildbot run --store sqlite://bot.db --events events.jsonl --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatcher(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Events, "events", "-", `file of JSON events, one per line ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "drop cached documents when their files change on disk")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner user id (env "+EnvOwner+", then bot/config)")

	return cmd
}

func runDispatcher(opts *RunOptions, cmd *cobra.Command) error {
	input, closeInput, err := openEvents(opts.Events, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open events", err)
	}
	defer closeInput()

	collector := metrics.NewCollector("")
	st, err := openStore(opts.RootOptions, data.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	cfg := actions.LoadBotConfig(ctx, st)
	owner := resolveOwner(opts.Owner, cfg)
	if owner == "" {
		slog.Warn("no owner configured, owner-only commands are disabled")
	}
	if os.Getenv(EnvToken) == "" {
		slog.Debug("no platform token set, replies go to stdout")
	}

	reg := action.NewRegistry()
	if err := actions.Register(reg, actions.Deps{OwnerID: owner, Now: opts.Now}); err != nil {
		return WrapExitError(ExitCommandError, "failed to register actions", err)
	}
	slog.Info("action data loaded", "actions", reg.Len(), "with_data", reg.LoadData(ctx, st))

	out := newLineWriter(cmd.OutOrStdout())
	platform := opts.Platform
	if platform == nil {
		platform = linePlatform{out: out}
	}

	var d *engine.Dispatcher
	dispatchOpts := []engine.Option{
		engine.WithPlatform(platform),
		engine.WithMetrics(collector),
		engine.WithResultHandler(func(ev action.Event, res action.Result) {
			collector.SetQueueDepth(d.Pending())
			if err := out.write(Line{Type: "result", EventID: res.ID, Action: ev.ActionName(), Result: &res}); err != nil {
				slog.Error("write result", "id", res.ID, "error", err)
			}
		}),
	}
	if opts.IDGenerator != nil {
		dispatchOpts = append(dispatchOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	d = engine.New(reg, st, dispatchOpts...)

	sched := sweep.New(sweep.WithObserver(collector))
	if cm, ok := platform.(action.ChannelManager); ok {
		now := opts.Now
		if now == nil {
			now = time.Now
		}
		err := sched.Every("mail-idle", cfg.MailEvery(), func(ctx context.Context) error {
			closed, err := actions.SweepIdle(ctx, st, cm, now())
			if closed > 0 {
				slog.Info("idle tickets closed", "count", closed)
			}
			return err
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to schedule mail sweep", err)
		}
	} else {
		slog.Debug("platform cannot manage channels, mail sweep disabled")
	}
	sched.Start()
	defer sched.Stop()

	if opts.Watch {
		w, err := data.NewWatcher(st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch store", err)
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("watcher stopped", "error", err)
			}
		}()
	}

	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: metricsMux(collector)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go readEvents(ctx, input, d)

	slog.Info("dispatcher started", "store", opts.Store, "root", opts.Root)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "dispatcher error", err)
	}

	slog.Info("dispatcher stopped gracefully")
	return nil
}

// readEvents enqueues one event per input line and stops the dispatcher at
// end of input. Malformed lines are logged and skipped.
func readEvents(ctx context.Context, r io.Reader, d *engine.Dispatcher) {
	defer d.Stop()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev action.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			slog.Warn("skipping malformed event", "line", line, "error", err)
			continue
		}
		if !d.Enqueue(ev) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("read events", "error", err)
	}
}

func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func metricsMux(c *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return mux
}

// resolveOwner picks the owner id from the flag, then the environment, then
// the stored bot config.
func resolveOwner(flag string, cfg actions.BotConfig) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvOwner); v != "" {
		return v
	}
	return cfg.OwnerID
}
