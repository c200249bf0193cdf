package rules

import (
	"fmt"

	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

// Program is a compiled rule program: a set of actors booted together in
// one dataspace.
type Program struct {
	// Source names where the program was loaded from (file or directory).
	Source string

	// Actors in declaration order.
	Actors []Actor
}

// Actor describes one actor of a program.
type Actor struct {
	Name string

	// Fields are declared on the actor's root facet in order.
	Fields []FieldInit

	// Assert lists the facts the actor holds while it is alive. Templates
	// may read fields; an assertion follows the fields it reads.
	Assert []Template

	// On lists the reactions, each installed as one endpoint.
	On []Reaction

	// StopWhen stops the actor as soon as every listed field holds the
	// listed value.
	StopWhen []FieldInit

	// Nested, when set, replaces the actor's own behaviour with a nested
	// dataspace running the given program.
	Nested *Program
}

// FieldInit pairs a field name with a value.
type FieldInit struct {
	Name  string
	Value ir.IRValue
}

// Reaction is one "on" clause of an actor.
type Reaction struct {
	// Event selects which pattern events fire the reaction.
	Event skeleton.EventType

	// Pattern is the skeleton pattern the endpoint subscribes to.
	Pattern ir.IRValue

	// Captures names the pattern's captures in capture order.
	Captures []string

	Send    []Template
	Assert  []Template
	Retract []Template
	Set     []Assignment

	// Stop terminates the actor after the other effects are queued.
	Stop bool
}

// ID returns a stable name for the reaction, used in diagnostics.
func (r Reaction) ID(actor string, i int) string {
	return fmt.Sprintf("%s.on[%d]", actor, i)
}

// Assignment writes a template's value into a field.
type Assignment struct {
	Field string
	Value Template
}

// Ref is a variable reference inside a template: a capture or field name
// plus an integer offset.
type Ref struct {
	Name   string
	Offset int64
}

// String renders the reference the way it is written in a program.
func (r Ref) String() string {
	switch {
	case r.Offset > 0:
		return fmt.Sprintf("$%s+%d", r.Name, r.Offset)
	case r.Offset < 0:
		return fmt.Sprintf("$%s%d", r.Name, r.Offset)
	default:
		return "$" + r.Name
	}
}

// Template builds a value from bindings. Pattern holds a Bind() placeholder
// at each reference position; Refs lists the references in the order
// skeleton.Instantiate consumes them.
type Template struct {
	Pattern ir.IRValue
	Refs    []Ref
}

// Literal wraps a constant value as a template.
func Literal(v ir.IRValue) Template {
	return Template{Pattern: v}
}

// Static reports whether the template has no references.
func (t Template) Static() bool {
	return len(t.Refs) == 0
}

// Lookup resolves a variable name to its current value.
type Lookup func(name string) (ir.IRValue, bool)

// Build resolves every reference through lookup and instantiates the
// template.
func (t Template) Build(lookup Lookup) (ir.IRValue, error) {
	if t.Static() {
		return t.Pattern, nil
	}
	caps := make([]ir.IRValue, len(t.Refs))
	for i, ref := range t.Refs {
		v, ok := lookup(ref.Name)
		if !ok {
			return nil, fmt.Errorf("unbound variable %s", ref)
		}
		if ref.Offset != 0 {
			n, ok := v.(ir.IRInt)
			if !ok {
				return nil, fmt.Errorf("%s: offset applied to non-integer %s", ref, ir.String(v))
			}
			v = n + ir.IRInt(ref.Offset)
		}
		caps[i] = v
	}
	return skeleton.Instantiate(t.Pattern, caps)
}
