package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/skeleton"
)

const boxSource = `
actors: {
	box: {
		fields: value: 0
		assert: [{"@BoxState": ["$value"]}]
		on: [{
			message: {"@SetBox": ["$v"]}
			set: value: "$v"
		}]
		stop_when: value: 5
	}
	client: on: [{
		asserted: {"@BoxState": ["$v"]}
		send: [{"@SetBox": ["$v+1"]}]
	}]
}
`

func TestCompileString_Box(t *testing.T) {
	p, err := CompileString(boxSource, "box.cue")
	require.NoError(t, err)

	assert.Equal(t, "box.cue", p.Source)
	require.Len(t, p.Actors, 2)

	box := p.Actors[0]
	assert.Equal(t, "box", box.Name)
	assert.Equal(t, []rules.FieldInit{{Name: "value", Value: ir.IRInt(0)}}, box.Fields)
	assert.Equal(t, []rules.FieldInit{{Name: "value", Value: ir.IRInt(5)}}, box.StopWhen)
	require.Len(t, box.Assert, 1)
	assert.Equal(t, []rules.Ref{{Name: "value"}}, box.Assert[0].Refs)
	assert.True(t, ir.Equal(ir.Rec("BoxState", skeleton.Bind()), box.Assert[0].Pattern))

	require.Len(t, box.On, 1)
	setBox := box.On[0]
	assert.Equal(t, skeleton.Message, setBox.Event)
	assert.Equal(t, []string{"v"}, setBox.Captures)
	assert.True(t, ir.Equal(ir.Rec("SetBox", skeleton.Bind()), setBox.Pattern))
	require.Len(t, setBox.Set, 1)
	assert.Equal(t, "value", setBox.Set[0].Field)

	client := p.Actors[1]
	assert.Equal(t, "client", client.Name)
	require.Len(t, client.On, 1)
	assert.Equal(t, skeleton.Added, client.On[0].Event)
	require.Len(t, client.On[0].Send, 1)
	assert.Equal(t, []rules.Ref{{Name: "v", Offset: 1}}, client.On[0].Send[0].Refs)

	assert.Empty(t, Validate(p))
}

func TestCompileString_ReactionForms(t *testing.T) {
	p, err := CompileString(`
actors: watcher: {
	assert: {"@Ready": []}
	on: [
		{retracted: {"@Lamp": ["_", "$room"]}, retract: [{"@Lit": ["$room"]}], stop: true},
		{message: {"@Ping": []}, send: {"@Pong": ["$$literal"]}},
	]
}
`, "forms.cue")
	require.NoError(t, err)

	w := p.Actors[0]
	require.Len(t, w.Assert, 1)
	assert.True(t, w.Assert[0].Static())

	gone := w.On[0]
	assert.Equal(t, skeleton.Removed, gone.Event)
	assert.True(t, ir.Equal(ir.Rec("Lamp", skeleton.Discard(), skeleton.Bind()), gone.Pattern))
	assert.Equal(t, []string{"room"}, gone.Captures)
	assert.True(t, gone.Stop)

	pong := w.On[1].Send[0]
	assert.True(t, pong.Static())
	assert.True(t, ir.Equal(ir.Rec("Pong", ir.IRString("$literal")), pong.Pattern))
}

func TestCompileString_Nested(t *testing.T) {
	p, err := CompileString(`
actors: room: nested: actors: inner: assert: [{"@Outbound": [{"@Hi": []}]}]
`, "nested.cue")
	require.NoError(t, err)

	require.Len(t, p.Actors, 1)
	require.NotNil(t, p.Actors[0].Nested)
	assert.Equal(t, "inner", p.Actors[0].Nested.Actors[0].Name)
}

func TestCompileString_NormalizesStrings(t *testing.T) {
	// Decomposed e + combining acute accent in the source.
	p, err := CompileString("actors: a: assert: [{\"@Name\": [\"cafe\u0301\"]}]", "nfc.cue")
	require.NoError(t, err)

	assert.True(t, ir.Equal(ir.Rec("Name", ir.IRString("caf\u00e9")), p.Actors[0].Assert[0].Pattern))
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		field   string
		message string
	}{
		{"missing actors", `other: 1`, "actors", "actors is required"},
		{"no actors", `actors: {}`, "actors", "at least one actor"},
		{"unknown actor key", `actors: a: asert: []`, "actors.a.asert", "unknown key"},
		{"unknown reaction key", `actors: a: on: [{message: {"@X": []}, sned: []}]`, "on.sned", "unknown key"},
		{"no trigger", `actors: a: on: [{send: []}]`, "on", "exactly one of"},
		{"two triggers", `actors: a: on: [{message: {"@X": []}, asserted: {"@Y": []}}]`, "on", "exactly one of"},
		{"offset in pattern", `actors: a: on: [{message: {"@X": ["$v+1"]}, stop: true}]`, "on.message", "offsets are not allowed"},
		{"duplicate capture", `actors: a: on: [{message: {"@X": ["$v", "$v"]}, stop: true}]`, "on.message", "bound twice"},
		{"bad variable", `actors: a: assert: [{"@X": ["$1"]}]`, "assert", "invalid variable"},
		{"reserved label", `actors: a: assert: [{"@Capture": [1]}]`, "assert", "reserved"},
		{"variable in object", `actors: a: assert: [{"@X": [{k: "$v"}]}]`, "assert", "not allowed inside an object"},
		{"float", `actors: a: assert: [{"@X": [1.5]}]`, "value", "float"},
		{"nested with siblings", `actors: a: {nested: actors: b: assert: [1], assert: [2]}`, "actors.a", "cannot be combined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src, "bad.cue")
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.message)
		})
	}
}

func TestCompileString_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileString("actors: {\n\ta: \n", "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "on", Message: "bad"}
	assert.Equal(t, "on: bad", err.Error())
}
