package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/dataspace/internal/compiler"
	"github.com/roach88/dataspace/internal/dataspace"
	"github.com/roach88/dataspace/internal/filewatch"
	"github.com/roach88/dataspace/internal/ground"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/metrics"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RunID       string
	Timeout     time.Duration
	MetricsAddr string

	// Names allows overriding the actor name generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Names dataspace.NameGenerator
}

// RunResult summarises a finished run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	Program    string        `json:"program"`
	Events     int64         `json:"events"`
	Actors     []string      `json:"actors"`
	Assertions []string      `json:"assertions"`
	Failures   []ActorFailed `json:"failures,omitempty"`
	Cancelled  bool          `json:"cancelled,omitempty"`
}

// ActorFailed names an actor that terminated with an error.
type ActorFailed struct {
	Actor string `json:"actor"`
	Error string `json:"error"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a rule program until it quiesces",
		Long: `Compile a CUE rule program and run its actors in a fresh dataspace.

The run ends when no actor can make progress, when the timeout expires or
on Ctrl-C. With --watch the run keeps going while the directory is
watched, asserting File facts and sending FileEvent messages.

With --journal every trace event is written to a SQLite database that
"dsrun trace" reads back.

Example:
  dsrun run ./programs/box.cue
  dsrun run --journal ./trace.db --run-id box-1 ./programs/box.cue
  dsrun run --watch ./inbox ./programs/inbox`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int("fuel", 1000, "dataspace rounds per scheduler step")
	cmd.Flags().String("journal", "", "path to SQLite trace journal")
	cmd.Flags().String("watch", "", "directory to watch for file changes")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "journal run id (default: a new UUIDv7)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "stop the run after this long (0 = no limit)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg := opts.Config

	slog.Info("compiling program", "path", path)
	prog, err := LoadProgram(path)
	if err != nil {
		return formatter.LoadFailure(err)
	}
	if errs := compiler.Validate(prog); len(errs) > 0 {
		for _, e := range errs {
			_ = formatter.Error(e.Code, fmt.Sprintf("%s: %s", e.Field, e.Message), nil)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("program is invalid: %d error(s)", len(errs)))
	}
	for _, w := range compiler.AnalyzeCycles(prog) {
		slog.Warn(w.Message, "path", w.Path)
	}
	slog.Info("program compiled", "actors", len(prog.Actors))

	runID := opts.RunID
	if runID == "" {
		runID = dataspace.UUIDv7Generator{}.Generate()
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
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

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	failures := &failureTracer{}
	tracers := []dataspace.Tracer{collector, failures}

	var journal *store.Journal
	if cfg.TraceDB != "" {
		slog.Info("opening trace journal", "path", cfg.TraceDB, "run", runID)
		st, err := store.Open(cfg.TraceDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing trace journal", "error", closeErr)
			}
		}()
		// The journal outlives ctx so a stopped run still records its end.
		journal, err = st.NewJournal(parentCtx, runID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal run", err)
		}
		tracers = append(tracers, journal)
	}
	tracer := dataspace.MultiTracer(tracers...)

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer stop()
	}

	dsOpts := []dataspace.Option{dataspace.WithTracer(tracer)}
	if opts.Names != nil {
		dsOpts = append(dsOpts, dataspace.WithNameGenerator(opts.Names))
	}

	boot := rules.Boot(prog, dataspace.WithTracer(tracer))
	if cfg.WatchDir != "" {
		programBoot := boot
		boot = func(root *dataspace.Facet) {
			programBoot(root)
			filewatch.Spawn(root, cfg.WatchDir)
		}
	}

	g := ground.New(boot,
		ground.WithFuel(cfg.Fuel),
		ground.WithStepObserver(collector),
		ground.WithDataspaceOptions(dsOpts...),
	)

	slog.Info("ground starting", "run", runID, "fuel", cfg.Fuel, "watch", cfg.WatchDir)
	runErr := g.Run(ctx)
	cancelled := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if runErr != nil && !cancelled {
		return WrapExitError(ExitFailure, "ground error", runErr)
	}
	if journal != nil {
		if err := journal.Err(); err != nil {
			return WrapExitError(ExitFailure, "trace journal failed", err)
		}
	}

	result := RunResult{
		RunID:     runID,
		Program:   prog.Source,
		Actors:    g.Dataspace().ActorNames(),
		Failures:  failures.list(),
		Cancelled: cancelled,
	}
	if journal != nil {
		result.Events = journal.Len()
	}
	for _, v := range g.Dataspace().Assertions() {
		result.Assertions = append(result.Assertions, ir.Key(v))
	}

	if err := outputRunResult(formatter, result); err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d actor(s) failed", len(result.Failures)))
	}
	return nil
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}

	w := formatter.Writer
	state := "quiesced"
	if result.Cancelled {
		state = "stopped"
	}
	fmt.Fprintf(w, "Run %s %s\n", result.RunID, state)
	fmt.Fprintf(w, "  Actors left: %d\n", len(result.Actors))
	fmt.Fprintf(w, "  Assertions:  %d\n", len(result.Assertions))
	if result.Events > 0 {
		fmt.Fprintf(w, "  Journaled:   %d event(s)\n", result.Events)
	}
	if formatter.Verbose {
		for _, a := range result.Assertions {
			fmt.Fprintf(w, "    %s\n", a)
		}
	}
	for _, f := range result.Failures {
		fmt.Fprintf(w, "✗ %s failed: %s\n", f.Actor, f.Error)
	}
	return nil
}

// serveMetrics exposes reg over HTTP until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// failureTracer collects actors that terminated with an error.
type failureTracer struct {
	dataspace.NopTracer

	mu       sync.Mutex
	failures []ActorFailed
}

func (t *failureTracer) ActorTerminated(actor string, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, ActorFailed{Actor: actor, Error: err.Error()})
}

func (t *failureTracer) list() []ActorFailed {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ActorFailed(nil), t.failures...)
}
