package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID string
	Kind  string // optional - filter to one event kind
	Actor string // optional - filter to one actor
}

// TraceEntry is one journaled event in the trace timeline.
type TraceEntry struct {
	Seq        int64  `json:"seq"`
	Kind       string `json:"kind"`
	Actor      string `json:"actor"`
	Value      string `json:"value,omitempty"`
	Transition string `json:"transition,omitempty"`
	Error      string `json:"error,omitempty"`
	Line       string `json:"line"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string       `json:"run_id"`
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Started     int `json:"actors_started"`
	Terminated  int `json:"actors_terminated"`
	Failed      int `json:"actors_failed"`
	Patches     int `json:"patches"`
	Messages    int `json:"messages"`
}

// validKinds are the event kinds --kind accepts.
var validKinds = []string{
	store.KindActorStarted,
	store.KindActorTerminated,
	store.KindPatch,
	store.KindMessage,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a journaled run",
		Long: `Read a run back from a SQLite trace journal written by "dsrun run --journal".

Without --run, lists the journaled runs. With --run, shows the run's
timeline in commit order, optionally filtered by event kind or actor.

Examples:
  dsrun trace --journal ./trace.db
  dsrun trace --journal ./trace.db --run box-1
  dsrun trace --journal ./trace.db --run box-1 --kind patch --actor box
  dsrun trace --journal ./trace.db --run box-1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().String("journal", "", "path to SQLite trace journal (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to event kind (actor_started|actor_terminated|patch|message)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "filter to actor name")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	path := opts.Config.TraceDB
	if path == "" {
		return NewExitError(ExitCommandError, "--journal is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	if opts.Kind != "" && !contains(validKinds, opts.Kind) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be one of %v", opts.Kind, validKinds))
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return outputRuns(formatter, runs)
	}

	events, err := st.ReadTrace(ctx, store.TraceFilter{
		RunID: opts.RunID,
		Kind:  opts.Kind,
		Actor: opts.Actor,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	result := TraceResult{
		RunID:    opts.RunID,
		Timeline: buildTimeline(events),
		Stats:    buildStats(events),
	}

	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}
	return outputTraceText(formatter, result)
}

// buildTimeline converts journal rows to timeline entries.
func buildTimeline(events []store.TraceEvent) []TraceEntry {
	timeline := make([]TraceEntry, 0, len(events))
	for _, e := range events {
		entry := TraceEntry{
			Seq:        e.Seq,
			Kind:       e.Kind,
			Actor:      e.Actor,
			Transition: e.Transition,
			Error:      e.Error,
			Line:       e.String(),
		}
		if e.Value != nil {
			entry.Value = ir.Key(e.Value)
		}
		timeline = append(timeline, entry)
	}
	return timeline
}

func buildStats(events []store.TraceEvent) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	for _, e := range events {
		switch e.Kind {
		case store.KindActorStarted:
			stats.Started++
		case store.KindActorTerminated:
			stats.Terminated++
			if e.Error != "" {
				stats.Failed++
			}
		case store.KindPatch:
			stats.Patches++
		case store.KindMessage:
			stats.Messages++
		}
	}
	return stats
}

func outputRuns(formatter *OutputFormatter, runs []store.Run) error {
	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: runs})
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs journaled.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %d event(s)  engine %s\n", r.ID, r.Events, r.EngineVersion)
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, e := range result.Timeline {
			fmt.Fprintf(w, "  [%d] %s\n", e.Seq, e.Line)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Started:      %d\n", result.Stats.Started)
	fmt.Fprintf(w, "  Terminated:   %d (%d failed)\n", result.Stats.Terminated, result.Stats.Failed)
	fmt.Fprintf(w, "  Patches:      %d\n", result.Stats.Patches)
	fmt.Fprintf(w, "  Messages:     %d\n", result.Stats.Messages)

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
