package bag

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/ir"
)

func TestChangeTransitions(t *testing.T) {
	v := ir.Rec("BoxState", ir.IRInt(0))

	tests := []struct {
		name     string
		delta    int
		clamp    bool
		expected Transition
		count    int
	}{
		{"first add", 1, false, AbsentToPresent, 1},
		{"second add", 1, false, PresentToPresent, 2},
		{"partial remove", -1, false, PresentToPresent, 1},
		{"last remove", -1, false, PresentToAbsent, 0},
		{"no-op on absent", 0, false, AbsentToAbsent, 0},
		{"clamped over-retract", -1, true, AbsentToAbsent, 0},
		{"unclamped over-retract", -1, false, AbsentToPresent, -1},
		{"rebalance", 1, false, PresentToAbsent, 0},
	}

	b := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, b.Change(v, tt.delta, tt.clamp))
			assert.Equal(t, tt.count, b.Get(v))
		})
	}
}

func TestChangeMatchesSumOfDeltas(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := New()
	v := ir.IRString("x")

	sum := 0
	for i := 0; i < 500; i++ {
		delta := rng.Intn(5) - 2
		clamp := rng.Intn(2) == 0

		old := sum
		sum += delta
		if clamp && sum < 0 {
			sum = 0
		}

		got := b.Change(v, delta, clamp)
		require.Equal(t, sum, b.Get(v), "step %d", i)

		var want Transition
		switch {
		case old == 0 && sum == 0:
			want = AbsentToAbsent
		case old == 0:
			want = AbsentToPresent
		case sum == 0:
			want = PresentToAbsent
		default:
			want = PresentToPresent
		}
		require.Equal(t, want, got, "step %d", i)
	}
}

func TestEqualValuesShareAnEntry(t *testing.T) {
	b := New()
	b.Change(ir.IRObject{"a": ir.IRInt(1), "b": ir.IRInt(2)}, 1, false)
	b.Change(ir.IRObject{"b": ir.IRInt(2), "a": ir.IRInt(1)}, 1, false)

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, b.Get(ir.IRObject{"a": ir.IRInt(1), "b": ir.IRInt(2)}))
}

func TestOrderedIteration(t *testing.T) {
	b := New()
	b.Change(ir.Rec("B"), 1, false)
	b.Change(ir.IRInt(3), 2, false)
	b.Change(ir.Rec("A"), 1, false)
	b.Change(ir.IRNull{}, 1, false)

	assert.Equal(t, []ir.IRValue{ir.IRNull{}, ir.IRInt(3), ir.Rec("A"), ir.Rec("B")}, b.Values())

	snap := b.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, 2, snap[1].Count)

	var seen int
	b.Ascend(func(v ir.IRValue, count int) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}

func TestCloneIsIndependent(t *testing.T) {
	b := New()
	b.Change(ir.IRInt(1), 1, false)

	c := b.Clone()
	c.Change(ir.IRInt(1), 1, false)
	c.Change(ir.IRInt(2), 1, false)

	assert.Equal(t, 1, b.Get(ir.IRInt(1)))
	assert.False(t, b.Includes(ir.IRInt(2)))
	assert.Equal(t, 2, c.Get(ir.IRInt(1)))

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, b.Len())
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "absent_to_present", AbsentToPresent.String())
	assert.True(t, PresentToAbsent.Changed())
	assert.False(t, PresentToPresent.Changed())
}
