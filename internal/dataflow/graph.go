// Package dataflow tracks which computations read which observables and
// re-runs the affected computations when an observable is written.
//
// A subject is a computation (an endpoint's assertion function, a dataflow
// block). An object is an observable it reads (a field). Reads made while a
// subject is active record an edge subject<->object; writes mark the object
// damaged; RepairDamage re-runs every subject that depends on damaged
// objects until no damage remains.
package dataflow

import (
	"fmt"
	"log/slog"
)

// Graph is the dependency graph between subjects S and objects O.
//
// The zero value is not usable; call New. Graph is not safe for concurrent
// use: it belongs to one actor and is driven from its turns.
type Graph[S comparable, O comparable] struct {
	forward map[S]*orderedSet[O] // subject -> objects it read
	reverse map[O]*orderedSet[S] // object -> subjects that read it
	damaged *orderedSet[O]

	current    S
	hasCurrent bool
}

// New creates an empty graph.
func New[S comparable, O comparable]() *Graph[S, O] {
	return &Graph[S, O]{
		forward: make(map[S]*orderedSet[O]),
		reverse: make(map[O]*orderedSet[S]),
		damaged: newOrderedSet[O](),
	}
}

// WithSubject runs f with id as the active subject. The previous subject is
// restored afterwards, also when f panics.
func (g *Graph[S, O]) WithSubject(id S, f func()) {
	prev, hadPrev := g.current, g.hasCurrent
	g.current, g.hasCurrent = id, true
	defer func() {
		g.current, g.hasCurrent = prev, hadPrev
	}()
	f()
}

// WithoutSubject runs f with no active subject, so its reads record
// nothing. The previous subject is restored afterwards.
func (g *Graph[S, O]) WithoutSubject(f func()) {
	prev, hadPrev := g.current, g.hasCurrent
	var zero S
	g.current, g.hasCurrent = zero, false
	defer func() {
		g.current, g.hasCurrent = prev, hadPrev
	}()
	f()
}

// CurrentSubject returns the active subject, if any.
func (g *Graph[S, O]) CurrentSubject() (S, bool) {
	return g.current, g.hasCurrent
}

// RecordObservation records that the active subject read objectID.
// Reads outside any subject record nothing.
func (g *Graph[S, O]) RecordObservation(objectID O) {
	if !g.hasCurrent {
		return
	}
	subject := g.current

	objs, ok := g.forward[subject]
	if !ok {
		objs = newOrderedSet[O]()
		g.forward[subject] = objs
	}
	objs.add(objectID)

	subs, ok := g.reverse[objectID]
	if !ok {
		subs = newOrderedSet[S]()
		g.reverse[objectID] = subs
	}
	subs.add(subject)
}

// RecordDamage marks objectID damaged regardless of the active subject.
func (g *Graph[S, O]) RecordDamage(objectID O) {
	g.damaged.add(objectID)
}

// ForgetSubject severs every edge from subjectID. It is called before a
// subject is re-run, and when the subject is destroyed.
func (g *Graph[S, O]) ForgetSubject(subjectID S) {
	objs, ok := g.forward[subjectID]
	if !ok {
		return
	}
	delete(g.forward, subjectID)
	for _, obj := range objs.items() {
		subs, ok := g.reverse[obj]
		if !ok {
			continue
		}
		subs.remove(subjectID)
		if subs.len() == 0 {
			delete(g.reverse, obj)
		}
	}
}

// ForgetObject drops a destroyed object: its pending damage and the edges
// pointing at it.
func (g *Graph[S, O]) ForgetObject(objectID O) {
	g.damaged.remove(objectID)
	subs, ok := g.reverse[objectID]
	if !ok {
		return
	}
	delete(g.reverse, objectID)
	for _, sub := range subs.items() {
		if objs, ok := g.forward[sub]; ok {
			objs.remove(objectID)
			if objs.len() == 0 {
				delete(g.forward, sub)
			}
		}
	}
}

// DependentsOf returns the subjects that read objectID, in first-read order.
func (g *Graph[S, O]) DependentsOf(objectID O) []S {
	subs, ok := g.reverse[objectID]
	if !ok {
		return nil
	}
	return subs.items()
}

// ObservationsOf returns the objects subjectID read, in first-read order.
func (g *Graph[S, O]) ObservationsOf(subjectID S) []O {
	objs, ok := g.forward[subjectID]
	if !ok {
		return nil
	}
	return objs.items()
}

// Damaged returns the pending damage set in damage order.
func (g *Graph[S, O]) Damaged() []O {
	return g.damaged.items()
}

// HasDamage reports whether any object is damaged.
func (g *Graph[S, O]) HasDamage() bool {
	return g.damaged.len() > 0
}

// RepairDamage drains damage in rounds. Each round takes the pending damage
// set, finds the subjects that depend on it, severs their edges and calls
// repair with the subject active, so the subject re-records only the edges
// that still hold. Damage produced by a round feeds the next one.
//
// Damage on objects nobody reads is discarded. An object damaged again after
// it was already drained in this call is a dependency cycle: it is logged
// and dropped from the damage set. Its dependents run again only after a
// fresh RecordDamage followed by another RepairDamage.
func (g *Graph[S, O]) RepairDamage(repair func(subjectID S)) {
	repaired := make(map[O]struct{})

	for g.damaged.len() > 0 {
		work := g.damaged
		g.damaged = newOrderedSet[O]()

		var objects []O
		for _, obj := range work.items() {
			if _, ok := g.reverse[obj]; !ok {
				continue
			}
			if _, seen := repaired[obj]; seen {
				slog.Warn("cyclic dependency in dataflow graph, dropping damage",
					"object", fmt.Sprint(obj))
				continue
			}
			repaired[obj] = struct{}{}
			objects = append(objects, obj)
		}
		if len(objects) == 0 {
			return
		}

		subjects := newOrderedSet[S]()
		for _, obj := range objects {
			for _, sub := range g.DependentsOf(obj) {
				subjects.add(sub)
			}
		}

		for _, sub := range subjects.items() {
			g.ForgetSubject(sub)
			g.WithSubject(sub, func() { repair(sub) })
		}
	}
}
