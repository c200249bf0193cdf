package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dataspace/internal/compiler"
	"github.com/roach88/dataspace/internal/dataspace"
	"github.com/roach88/dataspace/internal/ground"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/store"
	"github.com/roach88/dataspace/internal/testutil"
)

// DefaultTimeout bounds a scenario that sets no timeout.
const DefaultTimeout = 10 * time.Second

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Actor names come from a sequential generator so traces are reproducible.
//
// Execution flow:
// 1. Load, compile and validate the program
// 2. Run it on a Ground until quiescent, journaling every trace event
// 3. Read the trace back from the journal
// 4. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	timeout := scenario.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return RunContext(ctx, scenario)
}

// RunContext is Run with a caller-supplied context. Scenario.Timeout is
// ignored.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	prog, err := compiler.Load(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	if errs := compiler.Validate(prog); len(errs) > 0 {
		return nil, fmt.Errorf("program is invalid: %w", errs[0])
	}

	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	journal, err := st.NewJournal(ctx, scenario.Name)
	if err != nil {
		return nil, err
	}
	rec := testutil.NewRecorder()
	tracer := dataspace.MultiTracer(rec, journal)

	opts := []ground.Option{
		ground.WithDataspaceOptions(
			dataspace.WithTracer(tracer),
			dataspace.WithNameGenerator(dataspace.NewSequentialGenerator("actor")),
		),
	}
	if scenario.Fuel > 0 {
		opts = append(opts, ground.WithFuel(scenario.Fuel))
	}
	g := ground.New(rules.Boot(prog, dataspace.WithTracer(tracer)), opts...)

	slog.Debug("running scenario", "name", scenario.Name, "program", scenario.Program)
	if err := g.Run(ctx); err != nil {
		return nil, fmt.Errorf("scenario %s did not quiesce: %w", scenario.Name, err)
	}
	if err := journal.Err(); err != nil {
		return nil, fmt.Errorf("failed to journal trace: %w", err)
	}

	events, err := st.ReadTrace(ctx, store.TraceFilter{RunID: scenario.Name})
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	result := NewResult()
	result.Events = rec.Events()
	for _, e := range events {
		result.Trace = append(result.Trace, e.String())
	}

	// The journal and the recorder saw the same calls in the same order.
	if lines := rec.Lines(); len(lines) != len(result.Trace) {
		return nil, fmt.Errorf("journal has %d events, recorder has %d", len(result.Trace), len(lines))
	}

	final := g.Dataspace().Assertions()
	for _, v := range final {
		result.Final = append(result.Final, ir.Key(v))
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, final) {
		result.AddError(errMsg)
	}

	slog.Debug("scenario finished",
		"name", scenario.Name,
		"events", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}
