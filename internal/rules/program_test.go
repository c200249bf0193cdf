package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

func env(m map[string]ir.IRValue) Lookup {
	return func(name string) (ir.IRValue, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func TestTemplate_Build(t *testing.T) {
	tmpl := Template{
		Pattern: ir.Rec("Move", skeleton.Bind(), ir.IRArray{skeleton.Bind(), ir.IRString("fixed")}),
		Refs:    []Ref{{Name: "who"}, {Name: "n", Offset: 2}},
	}

	v, err := tmpl.Build(env(map[string]ir.IRValue{
		"who": ir.IRString("alice"),
		"n":   ir.IRInt(3),
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"@Move":["alice",[5,"fixed"]]}`, ir.Key(v))
}

func TestTemplate_BuildErrors(t *testing.T) {
	tmpl := Template{Pattern: ir.Rec("Set", skeleton.Bind()), Refs: []Ref{{Name: "v", Offset: -1}}}

	_, err := tmpl.Build(env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound variable $v-1")

	_, err = tmpl.Build(env(map[string]ir.IRValue{"v": ir.IRString("x")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-integer")
}

func TestTemplate_Literal(t *testing.T) {
	tmpl := Literal(ir.Rec("Ready"))
	assert.True(t, tmpl.Static())

	v, err := tmpl.Build(nil)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.Rec("Ready"), v))
}

func TestRef_String(t *testing.T) {
	tests := []struct {
		ref  Ref
		want string
	}{
		{Ref{Name: "v"}, "$v"},
		{Ref{Name: "v", Offset: 1}, "$v+1"},
		{Ref{Name: "v", Offset: -4}, "$v-4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ref.String())
	}
}

func TestReaction_ID(t *testing.T) {
	assert.Equal(t, "box.on[2]", Reaction{}.ID("box", 2))
}
