package rules

import (
	"fmt"
	"log/slog"

	"github.com/roach88/dataspace/internal/dataspace"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/relay"
	"github.com/roach88/dataspace/internal/skeleton"
)

// Boot returns a boot function that spawns every actor of p. Nested
// programs run in relayed dataspaces built with nestedOpts.
func Boot(p *Program, nestedOpts ...dataspace.Option) func(root *dataspace.Facet) {
	return func(root *dataspace.Facet) {
		slog.Debug("booting program", "source", p.Source, "actors", len(p.Actors))
		for i := range p.Actors {
			a := &p.Actors[i]
			if a.Nested != nil {
				relay.Spawn(root, a.Name, Boot(a.Nested, nestedOpts...), nestedOpts...)
				continue
			}
			root.Spawn(a.Name, func(f *dataspace.Facet) {
				bootActor(f, a)
			})
		}
	}
}

func bootActor(f *dataspace.Facet, a *Actor) {
	for _, fi := range a.Fields {
		f.DeclareField(fi.Name, fi.Value, dataspace.SkipUnchanged())
	}

	// Assertions read fields with Get so they track them.
	observed := fieldLookup(f, (*dataspace.Field).Get)
	for _, t := range a.Assert {
		if t.Static() {
			f.Assert(t.Pattern)
			continue
		}
		f.AssertDynamic(func() ir.IRValue {
			return mustBuild(t, observed)
		})
	}

	for i := range a.On {
		install(f, &a.On[i])
	}

	if len(a.StopWhen) > 0 {
		f.Dataflow(func() {
			for _, c := range a.StopWhen {
				if !ir.Equal(fieldValue(f.Field(c.Name), (*dataspace.Field).Get), c.Value) {
					return
				}
			}
			slog.Debug("stop condition reached", "actor", a.Name)
			f.Stop()
		})
	}
}

func install(f *dataspace.Facet, r *Reaction) {
	f.On(r.Pattern, func(evt skeleton.EventType, captures []ir.IRValue) {
		if evt != r.Event {
			return
		}
		env := bindings(r.Captures, captures, fieldLookup(f, (*dataspace.Field).Peek))

		for _, t := range r.Send {
			f.Send(mustBuild(t, env))
		}
		for _, t := range r.Assert {
			f.AdhocAssert(mustBuild(t, env))
		}
		for _, t := range r.Retract {
			f.AdhocRetract(mustBuild(t, env))
		}
		for _, s := range r.Set {
			fl := f.Field(s.Field)
			if fl == nil {
				panic(fmt.Errorf("set: unknown field %q", s.Field))
			}
			fl.Set(mustBuild(s.Value, env))
		}
		if r.Stop {
			f.Stop()
		}
	})
}

// bindings resolves capture names first, then falls back to next.
func bindings(names []string, values []ir.IRValue, next Lookup) Lookup {
	return func(name string) (ir.IRValue, bool) {
		for i, n := range names {
			if n == name && i < len(values) {
				return values[i], true
			}
		}
		return next(name)
	}
}

func fieldLookup(f *dataspace.Facet, read func(*dataspace.Field) any) Lookup {
	return func(name string) (ir.IRValue, bool) {
		fl := f.Field(name)
		if fl == nil {
			return nil, false
		}
		return fieldValue(fl, read), true
	}
}

func fieldValue(fl *dataspace.Field, read func(*dataspace.Field) any) ir.IRValue {
	if fl == nil {
		return nil
	}
	v, ok := read(fl).(ir.IRValue)
	if !ok {
		return ir.IRNull{}
	}
	return v
}

// mustBuild panics on template errors; inside a turn the panic fails the
// actor.
func mustBuild(t Template, env Lookup) ir.IRValue {
	v, err := t.Build(env)
	if err != nil {
		panic(fmt.Errorf("template: %w", err))
	}
	return v
}
