package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/rules"
	"github.com/roach88/dataspace/internal/skeleton"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		ref     rules.Ref
		literal string
		isRef   bool
		wantErr bool
	}{
		{in: "plain", literal: "plain"},
		{in: "$$x", literal: "$x"},
		{in: "$v", ref: rules.Ref{Name: "v"}, isRef: true},
		{in: "$count+10", ref: rules.Ref{Name: "count", Offset: 10}, isRef: true},
		{in: "$n-2", ref: rules.Ref{Name: "n", Offset: -2}, isRef: true},
		{in: "$", wantErr: true},
		{in: "$9lives", wantErr: true},
		{in: "$v*2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, lit, ok, err := parseRef(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.isRef, ok)
			assert.Equal(t, tt.ref, ref)
			assert.Equal(t, tt.literal, lit)
		})
	}
}

func TestCompilePattern_CaptureOrderMatchesAnalyze(t *testing.T) {
	raw := ir.Rec("Move", ir.IRString("$who"), ir.IRArray{ir.IRString("_"), ir.IRString("$to")}, ir.IRInt(3))

	p, names, err := compilePattern(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"who", "to"}, names)

	a, err := skeleton.Analyze(p)
	require.NoError(t, err)
	require.Len(t, a.CapturePaths, 2)

	caps, ok := skeleton.Match(a, ir.Rec("Move", ir.IRString("alice"), ir.IRArray{ir.IRInt(1), ir.IRString("hall")}, ir.IRInt(3)))
	require.True(t, ok)
	assert.Equal(t, []ir.IRValue{ir.IRString("alice"), ir.IRString("hall")}, caps)
}

func TestCompileTemplate_RoundTripThroughInstantiate(t *testing.T) {
	raw := ir.Rec("Seen", ir.IRString("$who"), ir.IRArray{ir.IRString("$n+1"), ir.IRString("_")})

	tmpl, err := compileTemplate(raw)
	require.NoError(t, err)
	assert.Equal(t, []rules.Ref{{Name: "who"}, {Name: "n", Offset: 1}}, tmpl.Refs)

	v, err := tmpl.Build(func(name string) (ir.IRValue, bool) {
		switch name {
		case "who":
			return ir.IRString("bob"), true
		case "n":
			return ir.IRInt(41), true
		}
		return nil, false
	})
	require.NoError(t, err)
	// "_" is an ordinary string in templates.
	assert.Equal(t, `{"@Seen":["bob",[42,"_"]]}`, ir.Key(v))
}

func TestCompilePattern_ObjectsAreAtoms(t *testing.T) {
	raw := ir.Rec("Config", ir.IRObject{"name": ir.IRString("$$raw")})

	p, names, err := compilePattern(raw)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.True(t, ir.Equal(ir.Rec("Config", ir.IRObject{"name": ir.IRString("$raw")}), p))
}
