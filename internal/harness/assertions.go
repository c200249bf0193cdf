package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}

	return buf.String()
}

// matcher is an EventMatch with its value converted to IR.
type matcher struct {
	EventMatch
	value ir.IRValue
}

func newMatcher(m EventMatch) (matcher, error) {
	out := matcher{EventMatch: m}
	if m.Value != nil {
		v, err := ir.FromGo(m.Value)
		if err != nil {
			return matcher{}, fmt.Errorf("value: %w", err)
		}
		out.value = v
	}
	return out, nil
}

func (m matcher) matches(e testutil.Event) bool {
	if m.Kind != "" && m.Kind != e.Kind {
		return false
	}
	if m.Actor != "" && m.Actor != e.Actor {
		return false
	}
	if m.Transition != "" && (e.Kind != testutil.KindPatch || m.Transition != e.Transition.String()) {
		return false
	}
	if m.value != nil && (e.Value == nil || !ir.Equal(m.value, e.Value)) {
		return false
	}
	return true
}

// String describes the match for failure messages.
func (m matcher) String() string {
	var parts []string
	if m.Kind != "" {
		parts = append(parts, "kind="+m.Kind)
	}
	if m.Actor != "" {
		parts = append(parts, "actor="+m.Actor)
	}
	if m.Transition != "" {
		parts = append(parts, "transition="+m.Transition)
	}
	if m.value != nil {
		parts = append(parts, "value="+ir.Key(m.value))
	}
	if len(parts) == 0 {
		return "any event"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some event matches.
func assertTraceContains(result *Result, assertion Assertion) error {
	m, err := newMatcher(assertion.EventMatch)
	if err != nil {
		return err
	}
	for _, e := range result.Events {
		if m.matches(e) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: m.String(),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertTraceOrder checks that events matching each entry appear in order.
// Events don't need to be consecutive (intervening events are allowed), and
// each entry is searched for after the previous entry's match.
func assertTraceOrder(result *Result, assertion Assertion) error {
	pos := 0
	for i, want := range assertion.Events {
		m, err := newMatcher(want)
		if err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		found := false
		for pos < len(result.Events) {
			e := result.Events[pos]
			pos++
			if m.matches(e) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events[%d] (%s) after events[%d]", i, m, i-1),
				Actual:   "no matching event later in the trace",
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(result *Result, assertion Assertion) error {
	m, err := newMatcher(assertion.EventMatch)
	if err != nil {
		return err
	}
	count := 0
	for _, e := range result.Events {
		if m.matches(e) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, m),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalAssertions checks the dataspace contents after quiescence.
func assertFinalAssertions(result *Result, final []ir.IRValue, assertion Assertion) error {
	present := func(v ir.IRValue) bool {
		for _, f := range final {
			if ir.Equal(f, v) {
				return true
			}
		}
		return false
	}

	for i, raw := range assertion.Values {
		v, err := ir.FromGo(raw)
		if err != nil {
			return fmt.Errorf("values[%d]: %w", i, err)
		}
		if !present(v) {
			return &AssertionError{
				Type:     AssertFinalAssertions,
				Expected: fmt.Sprintf("%s asserted", ir.Key(v)),
				Actual:   fmt.Sprintf("final assertions: %s", strings.Join(result.Final, ", ")),
			}
		}
	}
	for i, raw := range assertion.Absent {
		v, err := ir.FromGo(raw)
		if err != nil {
			return fmt.Errorf("absent[%d]: %w", i, err)
		}
		if present(v) {
			return &AssertionError{
				Type:     AssertFinalAssertions,
				Expected: fmt.Sprintf("%s absent", ir.Key(v)),
				Actual:   "still asserted",
			}
		}
	}
	return nil
}

// assertActorTerminated checks that the actor terminated, and how.
func assertActorTerminated(result *Result, assertion Assertion) error {
	for _, e := range result.Events {
		if e.Kind != testutil.KindActorTerminated || e.Actor != assertion.Actor {
			continue
		}
		switch {
		case assertion.Error == "" && e.Err != nil:
			return &AssertionError{
				Type:     AssertActorTerminated,
				Expected: fmt.Sprintf("%s terminated cleanly", assertion.Actor),
				Actual:   fmt.Sprintf("failed: %v", e.Err),
				Trace:    result.Trace,
			}
		case assertion.Error != "" && (e.Err == nil || !strings.Contains(e.Err.Error(), assertion.Error)):
			actual := "terminated cleanly"
			if e.Err != nil {
				actual = fmt.Sprintf("failed: %v", e.Err)
			}
			return &AssertionError{
				Type:     AssertActorTerminated,
				Expected: fmt.Sprintf("%s failed with %q", assertion.Actor, assertion.Error),
				Actual:   actual,
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertActorTerminated,
		Expected: fmt.Sprintf("%s terminated", assertion.Actor),
		Actual:   "still running",
		Trace:    result.Trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// final is the dataspace contents after the run.
func EvaluateAssertions(result *Result, assertions []Assertion, final []ir.IRValue) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertFinalAssertions:
			err = assertFinalAssertions(result, final, assertion)
		case AssertActorTerminated:
			err = assertActorTerminated(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
