// Package harness provides conformance testing for rule programs.
//
// The harness compiles a CUE rule program, runs it to quiescence on a
// Ground with deterministic actor names, and checks the recorded trace and
// the final dataspace contents against the scenario's assertions.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: box-and-client
//	description: "What this scenario validates"
//	program: programs/box.cue
//	fuel: 1000
//	assertions:
//	  - type: trace_contains
//	    kind: message
//	    actor: client
//	    value: {"@SetBox": [1]}
//	  - type: trace_order
//	    events:
//	      - {kind: patch, value: {"@BoxState": [0]}}
//	      - {kind: patch, value: {"@BoxState": [1]}}
//	  - type: trace_count
//	    kind: patch
//	    transition: absent_to_present
//	    count: 5
//	  - type: final_assertions
//	    values: [{"@Hello": ["world"]}]
//	    absent: [{"@BoxState": [5]}]
//	  - type: actor_terminated
//	    actor: box
//
// # Trace Journal
//
// Every run is also written to an in-memory SQLite journal. The trace in
// the Result is read back from the journal and must agree with the
// in-memory recorder, so a scenario run also checks the journal path.
//
// # Golden Files
//
// Golden traces are stored in testdata/golden/{scenario}.golden; one line
// per trace event, then the final assertions. Regenerate with:
//
//	go test ./internal/harness -update
package harness
