package dataspace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
	"github.com/roach88/dataspace/internal/testutil"
)

func boxAndClient(n int64, boxStopped *bool, seen *[]int64) func(*Facet) {
	return func(f *Facet) {
		f.Spawn("box", func(box *Facet) {
			value := box.DeclareField("value", ir.IRInt(0))
			box.AssertDynamic(func() ir.IRValue {
				return ir.Rec("BoxState", value.Value())
			})
			box.OnMessage(ir.Rec("SetBox", skeleton.Bind()), func(caps []ir.IRValue) {
				value.Set(caps[0])
			})
			box.Dataflow(func() {
				if value.Value() == ir.IRInt(n) {
					box.Stop()
				}
			})
			box.OnStop(func() { *boxStopped = true })
		})
		f.Spawn("client", func(c *Facet) {
			c.OnAsserted(ir.Rec("BoxState", skeleton.Bind()), func(caps []ir.IRValue) {
				v := caps[0].(ir.IRInt)
				*seen = append(*seen, int64(v))
				c.Send(ir.Rec("SetBox", v+1))
			})
		})
	}
}

func TestDataspace_BoxAndClient(t *testing.T) {
	const n = 7
	rec := testutil.NewRecorder()
	var stopped bool
	var seen []int64

	ds := New(boxAndClient(n, &stopped, &seen),
		WithTracer(rec),
		WithNameGenerator(NewSequentialGenerator("actor")))
	drain(t, ds)

	want := make([]int64, n)
	var wantAdded []ir.IRValue
	for i := range want {
		want[i] = int64(i)
		wantAdded = append(wantAdded, ir.Rec("BoxState", ir.IRInt(i)))
	}
	assert.Equal(t, want, seen)
	assert.True(t, stopped)

	var added []ir.IRValue
	for _, v := range rec.Transitions(bag.AbsentToPresent) {
		if r, ok := v.(ir.IRRecord); ok && r.Label == "BoxState" {
			added = append(added, v)
		}
	}
	assert.Equal(t, wantAdded, added)

	ok, err := rec.Termination("box")
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, []string{"client"}, ds.ActorNames())
	for _, v := range ds.Assertions() {
		r, _ := v.(ir.IRRecord)
		assert.NotEqual(t, "BoxState", r.Label, "box state must be retracted")
	}
}

func TestDataspace_FailureIsolatesActor(t *testing.T) {
	rec := testutil.NewRecorder()
	var aStopped bool

	ds := New(func(root *Facet) {
		root.Spawn("a", func(a *Facet) {
			a.Assert(tag("a"))
			a.OnStop(func() { aStopped = true })
			a.OnMessage(ir.Rec("Boom"), func([]ir.IRValue) {
				panic("boom")
			})
		})
		root.Spawn("b", func(b *Facet) {
			b.Assert(tag("b"))
		})
	}, WithTracer(rec), WithNameGenerator(NewSequentialGenerator("root")))
	drain(t, ds)
	require.Equal(t, 1, ds.Count(tag("a")))
	require.Equal(t, 1, ds.Count(tag("b")))

	ds.Spawn("trigger", func(f *Facet) {
		f.Send(ir.Rec("Boom"))
	})
	drain(t, ds)

	assert.Equal(t, 0, ds.Count(tag("a")))
	assert.Equal(t, 1, ds.Count(tag("b")))
	assert.False(t, aStopped, "stop handlers do not run on failure")
	assert.Equal(t, []string{"b"}, ds.ActorNames())

	ok, err := rec.Termination("a")
	require.True(t, ok)
	assert.True(t, IsScriptPanic(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "a", re.Actor)
	assert.Equal(t, "boom", re.Message)
}

func TestDataspace_RawCallbackPanicIsolatesActor(t *testing.T) {
	rec := testutil.NewRecorder()
	var sawZ bool

	ds := New(func(root *Facet) {
		root.Spawn("raw", func(f *Facet) {
			a := skeleton.MustAnalyze(ir.Rec("Y", skeleton.Bind()))
			a.Callback = func(skeleton.EventType, []ir.IRValue) {
				panic("raw observer")
			}
			f.AddEndpoint(func() EndpointSpec {
				return EndpointSpec{Assertion: a.Assertion, Analysis: a}
			}, false)
		})
		root.Spawn("ok", func(f *Facet) {
			f.OnAsserted(ir.Rec("Z"), func([]ir.IRValue) { sawZ = true })
		})
	}, WithTracer(rec), WithNameGenerator(NewSequentialGenerator("root")))
	drain(t, ds)

	ds.Spawn("pub", func(f *Facet) {
		f.Assert(ir.Rec("Y", ir.IRInt(1)))
		f.Assert(ir.Rec("Z"))
	})
	drain(t, ds)

	assert.Equal(t, 1, ds.Count(ir.Rec("Y", ir.IRInt(1))))
	assert.Equal(t, 1, ds.Count(ir.Rec("Z")))
	assert.True(t, sawZ, "later commits in the round still reach observers")
	assert.ElementsMatch(t, []string{"ok", "pub"}, ds.ActorNames())

	ok, err := rec.Termination("raw")
	require.True(t, ok)
	assert.True(t, IsScriptPanic(err))
	assert.False(t, ds.Busy())
}

func TestDataspace_BootPanicPublishesNothing(t *testing.T) {
	rec := testutil.NewRecorder()
	sentinel := errors.New("no")

	ds := New(nil, WithTracer(rec))
	ds.Spawn("bad", func(f *Facet) {
		f.Assert(tag("bad"))
		panic(sentinel)
	})
	drain(t, ds)

	assert.Equal(t, 0, ds.Count(tag("bad")))
	assert.NotContains(t, rec.Transitions(bag.AbsentToPresent), tag("bad"))
	ok, err := rec.Termination("bad")
	require.True(t, ok)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, ds.ActorCount())
}

func TestDataspace_InertActorTerminates(t *testing.T) {
	rec := testutil.NewRecorder()
	ds := New(nil, WithTracer(rec))
	ds.Spawn("idle", func(*Facet) {})
	drain(t, ds)

	ok, err := rec.Termination("idle")
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 0, ds.ActorCount())
	assert.False(t, ds.Busy())
}

func TestDataspace_InitialAssertionsNeverFlicker(t *testing.T) {
	rec := testutil.NewRecorder()
	var added, removed int

	ds := New(func(f *Facet) {
		f.OnAsserted(tag("i"), func([]ir.IRValue) { added++ })
		f.OnRetracted(tag("i"), func([]ir.IRValue) { removed++ })
		f.Spawn("holder", func(h *Facet) {
			h.Assert(tag("i"))
		}, WithInitialAssertions(tag("i")))
	}, WithTracer(rec))
	drain(t, ds)

	assert.Equal(t, 1, added)
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, ds.Count(tag("i")))
	assert.NotContains(t, rec.Transitions(bag.PresentToAbsent), tag("i"))
}

func TestDataspace_MessagesAreNotStored(t *testing.T) {
	var got []ir.IRValue
	ds := New(func(f *Facet) {
		f.OnMessage(ir.Rec("Ping", skeleton.Bind()), func(caps []ir.IRValue) {
			got = append(got, caps[0])
		})
		f.Spawn("sender", func(s *Facet) {
			s.Send(ir.Rec("Ping", ir.IRInt(1)))
			s.Send(ir.Rec("Ping", ir.IRInt(1)))
		})
	})
	drain(t, ds)

	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(1)}, got)
	assert.Equal(t, 0, ds.Count(ir.Rec("Ping", ir.IRInt(1))))
}

func TestDataspace_Hooks(t *testing.T) {
	var installed int
	var changes []bag.Transition
	var messages []ir.IRValue

	var hooks Hooks
	hooks.EndpointInstalled = func(*Endpoint) { installed++ }
	hooks.AssertionChanged = func(v ir.IRValue, tr bag.Transition) {
		if ir.Equal(v, tag("x")) {
			changes = append(changes, tr)
		}
	}
	hooks.MessageSent = func(v ir.IRValue) { messages = append(messages, v) }

	ds := New(func(f *Facet) {
		f.Assert(tag("x"))
		f.Send(ir.Rec("Hello"))
	}, WithHooks(hooks))
	drain(t, ds)

	assert.Equal(t, 1, installed)
	assert.Equal(t, []bag.Transition{bag.AbsentToPresent}, changes)
	assert.Equal(t, []ir.IRValue{ir.Rec("Hello")}, messages)
}

func TestDataspace_MultiTracer(t *testing.T) {
	r1, r2 := testutil.NewRecorder(), testutil.NewRecorder()
	ds := New(func(f *Facet) {}, WithTracer(MultiTracer(r1, nil, r2)),
		WithNameGenerator(NewFixedGenerator("only")))
	drain(t, ds)

	assert.Equal(t, []string{"started only", "terminated only"}, r1.Lines())
	assert.Equal(t, r1.Lines(), r2.Lines())
}

func TestDataspace_HostIsOptional(t *testing.T) {
	ds := New(nil)
	assert.Nil(t, ds.Host())
	ds.Start()
	ds.BackgroundTask()()
	assert.False(t, ds.Busy())
}
