package ground

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/dataspace"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

type stepCounter struct {
	steps, busy int
	maxRounds   int
}

func (s *stepCounter) ObserveStep(rounds int, busy bool) {
	s.steps++
	if busy {
		s.busy++
	}
	if rounds > s.maxRounds {
		s.maxRounds = rounds
	}
}

func boxAndClient(n int64, seen *[]int64) func(*dataspace.Facet) {
	return func(f *dataspace.Facet) {
		f.Spawn("box", func(box *dataspace.Facet) {
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
		})
		f.Spawn("client", func(c *dataspace.Facet) {
			c.OnAsserted(ir.Rec("BoxState", skeleton.Bind()), func(caps []ir.IRValue) {
				v := caps[0].(ir.IRInt)
				*seen = append(*seen, int64(v))
				c.Send(ir.Rec("SetBox", v+1))
			})
		})
	}
}

func TestGround_BoxAndClientCompletesOnce(t *testing.T) {
	const n = 10
	var seen []int64
	var completions int

	g := New(boxAndClient(n, &seen))
	g.OnStop(func() {
		completions++
		assert.Len(t, seen, n, "completion must follow full quiescence")
	})

	require.NoError(t, g.Run(context.Background()))

	assert.Equal(t, 1, completions)
	assert.Len(t, seen, n)
	assert.Equal(t, int64(n-1), seen[n-1])
	select {
	case <-g.Completed():
	default:
		t.Fatal("Completed should be closed")
	}

	// Handlers are cleared once fired.
	g.Start()
	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, 1, completions)
}

func TestGround_FuelYields(t *testing.T) {
	const n = 20
	var seen []int64
	counter := &stepCounter{}

	var g *Ground
	var interleaved bool
	boot := func(f *dataspace.Facet) {
		boxAndClient(n, &seen)(f)
		f.Spawn("probe", func(p *dataspace.Facet) {
			p.OnAsserted(ir.Rec("BoxState", ir.IRInt(3)), func([]ir.IRValue) {
				g.Post(func() { interleaved = len(seen) < n })
			})
		})
	}
	g = New(boot, WithFuel(2), WithStepObserver(counter))
	require.Equal(t, 2, g.Fuel())

	require.NoError(t, g.Run(context.Background()))

	assert.Len(t, seen, n)
	assert.True(t, interleaved, "posted task should run between steps")
	assert.Greater(t, counter.steps, 1)
	assert.Greater(t, counter.busy, 0)
	assert.LessOrEqual(t, counter.maxRounds, 2)
}

func TestGround_WithFuelIgnoresNonPositive(t *testing.T) {
	g := New(nil, WithFuel(0))
	assert.Equal(t, DefaultFuel, g.Fuel())
}

func TestGround_StartIsCoalesced(t *testing.T) {
	counter := &stepCounter{}
	g := New(nil, WithStepObserver(counter))
	g.Start()
	g.Start()
	g.Start()
	assert.Equal(t, 1, g.queue.Len())

	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, 1, counter.steps)
}

func TestGround_BackgroundTaskDelaysQuiescence(t *testing.T) {
	var release func()
	var fired atomic.Int32

	g := New(func(f *dataspace.Facet) {
		f.Assert(ir.Rec("Waiting"))
		release = f.BackgroundTask()
	})
	g.OnStop(func() { fired.Add(1) })

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	require.Eventually(t, func() bool { return g.BackgroundTasks() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("Run returned while a background task was outstanding")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int32(0), fired.Load())

	g.Post(func() { release() })
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after release")
	}
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, g.BackgroundTasks())

	// Release is idempotent.
	release()
	assert.Equal(t, 0, g.BackgroundTasks())
}

func TestGround_PostDrivesDataspace(t *testing.T) {
	var root *dataspace.Facet
	var got []ir.IRValue

	g := New(func(f *dataspace.Facet) {
		root = f
		f.OnMessage(ir.Rec("Tick", skeleton.Bind()), func(caps []ir.IRValue) {
			got = append(got, caps[0])
		})
	})
	release := g.BackgroundTask()
	g.Start()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	for i := 1; i <= 3; i++ {
		i := i
		g.Post(func() {
			root.Schedule(func() { root.Send(ir.Rec("Tick", ir.IRInt(i))) })
		})
	}
	g.Post(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(2), ir.IRInt(3)}, got)
}

func TestGround_RunHonoursContext(t *testing.T) {
	g := New(nil)
	_ = g.BackgroundTask()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestGround_Stop(t *testing.T) {
	g := New(nil)
	_ = g.BackgroundTask()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()
	g.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	g.Post(func() {})
}

func TestGround_PanickingTaskIsIsolated(t *testing.T) {
	g := New(nil)
	var after bool
	g.Post(func() { panic("driver bug") })
	g.Post(func() { after = true })

	require.NoError(t, g.Run(context.Background()))
	assert.True(t, after)
}
