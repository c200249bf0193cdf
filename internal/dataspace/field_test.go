package dataspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

func TestField_EnvironmentChain(t *testing.T) {
	var rootX, childX, shadowed, missing *Field
	var grandchild *Facet

	New(func(root *Facet) {
		rootX = root.DeclareField("x", 1)
		root.React(func(mid *Facet) {
			childX = mid.Field("x")
			mid.React(func(g *Facet) {
				grandchild = g
				g.DeclareField("x", 2)
				shadowed = g.Field("x")
				missing = g.Field("y")
			})
		})
	}).RunScripts()

	require.NotNil(t, rootX)
	assert.Same(t, rootX, childX)
	assert.NotSame(t, rootX, shadowed)
	assert.Equal(t, 2, shadowed.Peek())
	assert.Same(t, grandchild, shadowed.Facet())
	assert.Nil(t, missing)
}

func TestField_DataflowRerunsOnChange(t *testing.T) {
	var runs []int64
	ds := New(func(f *Facet) {
		x := f.DeclareField("x", ir.IRInt(1), SkipUnchanged())
		f.Dataflow(func() {
			runs = append(runs, int64(x.Value().(ir.IRInt)))
		})
		f.OnMessage(ir.Rec("Set", skeleton.Bind()), func(caps []ir.IRValue) {
			x.Set(caps[0])
		})
		f.Spawn("writer", func(w *Facet) {
			w.Send(ir.Rec("Set", ir.IRInt(1)))
			w.Send(ir.Rec("Set", ir.IRInt(1)))
			w.Send(ir.Rec("Set", ir.IRInt(2)))
		})
	})
	drain(t, ds)

	assert.Equal(t, []int64{1, 2}, runs)
}

func TestField_GuardRejectsWrites(t *testing.T) {
	var hw *Field
	New(func(f *Facet) {
		hw = f.DeclareField("hw", 0, WithGuard(func(old, next any) bool {
			return next.(int) > old.(int)
		}))
		hw.Set(5)
		hw.Set(3)
	}).RunScripts()

	assert.Equal(t, 5, hw.Peek())
	assert.Equal(t, "hw", hw.Name())
	assert.NotZero(t, hw.ID())
}

func TestField_SkipUnchangedWritesNonValues(t *testing.T) {
	var fl *Field
	New(func(f *Facet) {
		fl = f.DeclareField("n", 1, SkipUnchanged())
		fl.Set(2)
	}).RunScripts()
	assert.Equal(t, 2, fl.Peek())
}

func TestField_TypedAccessors(t *testing.T) {
	var n, v *Field
	New(func(f *Facet) {
		n = f.DeclareField("n", 3)
		v = f.DeclareField("v", "not a value")
	}).RunScripts()

	assert.Equal(t, 3, n.Int())
	assert.Nil(t, v.Value())
}
