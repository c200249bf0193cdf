package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario runs one rule program to quiescence and asserts on the
// resulting trace and final dataspace.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the CUE file or directory to compile and run.
	// Relative paths are resolved against the scenario file location.
	Program string `yaml:"program"`

	// Fuel overrides the Ground's rounds per step. Zero keeps the default.
	Fuel int `yaml:"fuel,omitempty"`

	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Assertions validate the final trace and dataspace.
	Assertions []Assertion `yaml:"assertions"`
}

// EventMatch selects trace events. Empty fields match anything.
type EventMatch struct {
	// Kind is one of patch, message, actor_started, actor_terminated.
	Kind string `yaml:"kind,omitempty"`

	// Actor is the name of the actor the event is attributed to.
	Actor string `yaml:"actor,omitempty"`

	// Value is compared with the event's value after conversion to IR,
	// so records are written {"@Label": [fields...]}.
	Value any `yaml:"value,omitempty"`

	// Transition filters patches, e.g. absent_to_present.
	Transition string `yaml:"transition,omitempty"`
}

func (m EventMatch) empty() bool {
	return m.Kind == "" && m.Actor == "" && m.Value == nil && m.Transition == ""
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": some event matches
	// - "trace_order": events matching each entry of Events appear in order
	// - "trace_count": exactly Count events match
	// - "final_assertions": every Values entry is asserted at the end and
	//   no Absent entry is
	// - "actor_terminated": Actor terminated; with Error set, it failed
	//   with a message containing Error
	Type string `yaml:"type"`

	EventMatch `yaml:",inline"`

	// Count is the expected number of matches (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order (used by trace_order).
	Events []EventMatch `yaml:"events,omitempty"`

	// Values and Absent are used by final_assertions.
	Values []any `yaml:"values,omitempty"`
	Absent []any `yaml:"absent,omitempty"`

	// Error is a substring of the failure (used by actor_terminated).
	Error string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertFinalAssertions = "final_assertions"
	AssertActorTerminated = "actor_terminated"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// The program path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the program path BEFORE validation
	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program not found: %s", s.Program)
	}
	if s.Fuel < 0 {
		return fmt.Errorf("fuel must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.EventMatch.empty() {
			return fmt.Errorf("assertions[%d]: trace_contains needs at least one of kind, actor, value, transition", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: events needs at least two entries for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalAssertions:
		if len(a.Values) == 0 && len(a.Absent) == 0 {
			return fmt.Errorf("assertions[%d]: values or absent is required for final_assertions", index)
		}
	case AssertActorTerminated:
		if a.Actor == "" {
			return fmt.Errorf("assertions[%d]: actor is required for actor_terminated", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
