package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/skeleton"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func mustCompile(t *testing.T, src string) *rules.Program {
	t.Helper()
	p, err := CompileString(src, "test.cue")
	require.NoError(t, err)
	return p
}

func TestValidate_Valid(t *testing.T) {
	p := mustCompile(t, boxSource)
	assert.Empty(t, Validate(p))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "inert actor",
			src:  `actors: idle: fields: n: 0`,
			want: []string{ErrInertActor},
		},
		{
			name: "unbound reference in assertion",
			src:  `actors: a: assert: [{"@X": ["$missing"]}]`,
			want: []string{ErrUnboundVariable},
		},
		{
			name: "unknown set field",
			src:  `actors: a: on: [{message: {"@X": ["$v"]}, set: nope: "$v"}]`,
			want: []string{ErrUnknownField},
		},
		{
			name: "no effect",
			src:  `actors: a: on: [{message: {"@X": []}}]`,
			want: []string{ErrNoEffect},
		},
		{
			name: "shadowed field",
			src:  `actors: a: {fields: v: 0, on: [{message: {"@X": ["$v"]}, set: v: "$v"}]}`,
			want: []string{ErrShadowedField},
		},
		{
			name: "offset on string field",
			src:  `actors: a: {fields: s: "x", assert: [{"@X": ["$s+1"]}]}`,
			want: []string{ErrOffsetOnNonInt},
		},
		{
			name: "stop_when unknown field",
			src:  `actors: a: {assert: [1], stop_when: n: 3}`,
			want: []string{ErrUnknownField},
		},
		{
			name: "stop_when wrong type",
			src:  `actors: a: {fields: n: 0, assert: [1], stop_when: n: "done"}`,
			want: []string{ErrStopWhenUnreached},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(mustCompile(t, tt.src))
			assert.Equal(t, tt.want, codes(errs), "errors: %v", errs)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	p := mustCompile(t, `
actors: {
	a: assert: [{"@X": ["$missing"]}]
	b: on: [{message: {"@Y": []}}]
}
`)
	errs := Validate(p)
	assert.Equal(t, []string{ErrUnboundVariable, ErrNoEffect}, codes(errs))
	assert.Equal(t, "actors.a.assert[0]", errs[0].Field)
	assert.Contains(t, errs[0].Error(), "[E114]")
}

func TestValidate_Nested(t *testing.T) {
	p := &rules.Program{Actors: []rules.Actor{
		{Name: "room", Nested: &rules.Program{}},
		{Name: "hall", Nested: &rules.Program{Actors: []rules.Actor{{Name: "idle"}}}},
	}}

	errs := Validate(p)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrEmptyNested, errs[0].Code)
	assert.Equal(t, ErrInertActor, errs[1].Code)
	assert.Equal(t, "actors.hall.nested.actors.idle", errs[1].Field)
}

func TestValidate_EmptyProgram(t *testing.T) {
	errs := Validate(&rules.Program{})
	assert.Equal(t, []string{ErrNoActors}, codes(errs))

	// A hand-built reaction with a capture-only pattern is fine.
	p := &rules.Program{Actors: []rules.Actor{{
		Name: "any",
		On: []rules.Reaction{{
			Event:    skeleton.Added,
			Pattern:  skeleton.Bind(),
			Captures: []string{"x"},
			Assert:   []rules.Template{{Pattern: ir.Rec("Copy", skeleton.Bind()), Refs: []rules.Ref{{Name: "x"}}}},
		}},
	}}}
	assert.Empty(t, Validate(p))
}
