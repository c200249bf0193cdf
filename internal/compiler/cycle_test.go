package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	p := mustCompile(t, `
actors: {
	greeter: assert: [{"@Hello": ["world"]}]
	echo: on: [{asserted: {"@Hello": ["$who"]}, assert: {"@Seen": ["$who"]}}]
	logger: on: [{asserted: {"@Seen": ["$who"]}, send: {"@Log": ["$who"]}}]
}
`)
	assert.Empty(t, AnalyzeCycles(p), "DAG should produce no cycle warnings")
}

func TestAnalyzeCycles_BoxAndClient(t *testing.T) {
	p := mustCompile(t, boxSource)

	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"box.on[0]", "client.on[0]", "box.on[0]"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Potential cycle detected")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	p := mustCompile(t, `
actors: ticker: on: [{message: {"@Tick": ["$n"]}, send: {"@Tick": ["$n+1"]}}]
`)

	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"ticker.on[0]", "ticker.on[0]"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "Self-triggering")
}

func TestAnalyzeCycles_EventKindsMustMatch(t *testing.T) {
	// A message is not an assertion: sending Ping does not fire an
	// asserted-Ping reaction.
	p := mustCompile(t, `
actors: a: on: [{asserted: {"@Ping": []}, send: {"@Ping": []}}]
`)
	assert.Empty(t, AnalyzeCycles(p))
}

func TestAnalyzeCycles_Nested(t *testing.T) {
	p := mustCompile(t, `
actors: room: nested: actors: ticker: on: [{message: {"@Tick": []}, send: {"@Tick": []}}]
`)

	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"room/ticker.on[0]", "room/ticker.on[0]"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "inside room")
}
