// Package bag implements the multiset the dataspace keeps its assertions in.
//
// A Bag maps values to signed multiplicities. Change is the only mutator and
// reports which of the four presence transitions it caused; callers branch
// on that result instead of re-reading counts.
package bag

import (
	"github.com/google/btree"

	"github.com/roach88/dataspace/internal/ir"
)

// Transition describes how presence of a value changed under Change.
type Transition int

const (
	AbsentToAbsent Transition = iota
	AbsentToPresent
	PresentToPresent
	PresentToAbsent
)

// String returns the trace name of the transition.
func (t Transition) String() string {
	switch t {
	case AbsentToAbsent:
		return "absent_to_absent"
	case AbsentToPresent:
		return "absent_to_present"
	case PresentToPresent:
		return "present_to_present"
	case PresentToAbsent:
		return "present_to_absent"
	default:
		return "unknown"
	}
}

// Changed reports whether presence flipped.
func (t Transition) Changed() bool {
	return t == AbsentToPresent || t == PresentToAbsent
}

// Entry is one value with its multiplicity.
type Entry struct {
	Value ir.IRValue
	Count int
}

const degree = 16

func lessEntry(a, b *Entry) bool {
	return ir.Compare(a.Value, b.Value) < 0
}

// Bag is a multiset of values ordered by ir.Compare.
// It is not safe for concurrent use.
type Bag struct {
	tree *btree.BTreeG[*Entry]
}

// New returns an empty Bag.
func New() *Bag {
	return &Bag{tree: btree.NewG(degree, lessEntry)}
}

// Get returns the multiplicity of v. Absent values return 0.
func (b *Bag) Get(v ir.IRValue) int {
	e, ok := b.tree.Get(&Entry{Value: v})
	if !ok {
		return 0
	}
	return e.Count
}

// Includes reports whether v has a non-zero multiplicity.
func (b *Bag) Includes(v ir.IRValue) bool {
	return b.Get(v) != 0
}

// Change adds delta to the multiplicity of v and returns the resulting
// transition. With clamp the new count is floored at 0; without it an
// over-retraction leaves a negative count in place.
func (b *Bag) Change(v ir.IRValue, delta int, clamp bool) Transition {
	probe := &Entry{Value: v}
	oldCount := 0
	e, ok := b.tree.Get(probe)
	if ok {
		oldCount = e.Count
	}

	newCount := oldCount + delta
	if clamp && newCount < 0 {
		newCount = 0
	}

	switch {
	case newCount == 0:
		if ok {
			b.tree.Delete(e)
		}
	case ok:
		e.Count = newCount
	default:
		b.tree.ReplaceOrInsert(&Entry{Value: v, Count: newCount})
	}

	if oldCount == 0 {
		if newCount == 0 {
			return AbsentToAbsent
		}
		return AbsentToPresent
	}
	if newCount == 0 {
		return PresentToAbsent
	}
	return PresentToPresent
}

// Len returns the number of distinct values with a non-zero count.
func (b *Bag) Len() int {
	return b.tree.Len()
}

// Ascend calls fn for each entry in value order until fn returns false.
// fn must not mutate the bag.
func (b *Bag) Ascend(fn func(v ir.IRValue, count int) bool) {
	b.tree.Ascend(func(e *Entry) bool {
		return fn(e.Value, e.Count)
	})
}

// Snapshot returns a copy of all entries in value order.
func (b *Bag) Snapshot() []Entry {
	out := make([]Entry, 0, b.tree.Len())
	b.tree.Ascend(func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// Values returns the distinct values in value order.
func (b *Bag) Values() []ir.IRValue {
	out := make([]ir.IRValue, 0, b.tree.Len())
	b.tree.Ascend(func(e *Entry) bool {
		out = append(out, e.Value)
		return true
	})
	return out
}

// Clone returns an independent copy of the bag.
func (b *Bag) Clone() *Bag {
	c := New()
	b.tree.Ascend(func(e *Entry) bool {
		c.tree.ReplaceOrInsert(&Entry{Value: e.Value, Count: e.Count})
		return true
	})
	return c
}

// Clear removes every entry.
func (b *Bag) Clear() {
	b.tree.Clear(false)
}
