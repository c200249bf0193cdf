package dataspace

import "github.com/roach88/dataspace/internal/ir"

// Field is a named mutable cell owned by a facet. Reading it inside a
// dataflow subject records a dependency; writing it damages every reader.
type Field struct {
	id    uint64
	name  string
	facet *Facet
	value any
	guard func(old, next any) bool
}

// FieldOption configures a Field.
type FieldOption func(*Field)

// WithGuard makes Set a no-op whenever guard(old, next) returns false.
func WithGuard(guard func(old, next any) bool) FieldOption {
	return func(fl *Field) {
		fl.guard = guard
	}
}

// SkipUnchanged ignores writes of a value ir.Equal to the current one.
// Non-IRValue contents are always written.
func SkipUnchanged() FieldOption {
	return WithGuard(func(old, next any) bool {
		ov, ok1 := old.(ir.IRValue)
		nv, ok2 := next.(ir.IRValue)
		if !ok1 || !ok2 {
			return true
		}
		return !ir.Equal(ov, nv)
	})
}

// DeclareField creates a field on f, shadowing any field of the same name
// declared by an ancestor.
func (f *Facet) DeclareField(name string, initial any, opts ...FieldOption) *Field {
	fl := &Field{
		id:    f.actor.ds.ids.Next(),
		name:  name,
		facet: f,
		value: initial,
	}
	for _, opt := range opts {
		opt(fl)
	}
	f.fields[name] = fl
	return fl
}

// Field looks name up in f and then its ancestors. It returns nil if no
// facet on the chain declares it.
func (f *Facet) Field(name string) *Field {
	for cur := f; cur != nil; cur = cur.parent {
		if fl, ok := cur.fields[name]; ok {
			return fl
		}
	}
	return nil
}

// ID returns the field's dataflow object id.
func (fl *Field) ID() uint64 { return fl.id }

// Name returns the declared name.
func (fl *Field) Name() string { return fl.name }

// Facet returns the declaring facet.
func (fl *Field) Facet() *Facet { return fl.facet }

// Get returns the value and records the read against the current subject.
func (fl *Field) Get() any {
	fl.facet.actor.ds.dataflow.RecordObservation(fl.id)
	return fl.value
}

// Peek returns the value without recording a dependency.
func (fl *Field) Peek() any {
	return fl.value
}

// Set stores next and damages every subject that read the field.
func (fl *Field) Set(next any) {
	if fl.guard != nil && !fl.guard(fl.value, next) {
		return
	}
	fl.value = next
	fl.facet.actor.ds.dataflow.RecordDamage(fl.id)
}

// Int is Get for fields holding an int.
func (fl *Field) Int() int {
	n, _ := fl.Get().(int)
	return n
}

// Value is Get for fields holding an ir.IRValue. A nil or non-IRValue
// content returns nil.
func (fl *Field) Value() ir.IRValue {
	v, _ := fl.Get().(ir.IRValue)
	return v
}
