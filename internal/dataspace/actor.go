package dataspace

import (
	"log/slog"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// Actor is the unit of interleaving: it owns one facet tree, a FIFO of
// scripts and the actions its current turn has produced.
type Actor struct {
	id   uint64
	name string
	ds   *Dataspace
	root *Facet

	scripts    []func()
	isRunnable bool
	actions    []action

	// adhoc counts assertions made with AdhocAssert; cleanup holds the
	// negation of everything committed on the actor's behalf, so applying
	// it retracts all of it.
	adhoc   *bag.Bag
	cleanup *bag.Bag

	failed bool
	exited bool
	err    error
}

func newActor(ds *Dataspace, name string, initial []ir.IRValue) *Actor {
	ac := &Actor{
		id:      ds.ids.Next(),
		name:    name,
		ds:      ds,
		adhoc:   bag.New(),
		cleanup: bag.New(),
	}
	for _, v := range initial {
		ac.adhoc.Change(v, 1, false)
	}
	return ac
}

// ID returns the actor's numeric id.
func (ac *Actor) ID() uint64 { return ac.id }

// Name returns the actor's name.
func (ac *Actor) Name() string { return ac.name }

// Dataspace returns the dataspace the actor lives in.
func (ac *Actor) Dataspace() *Dataspace { return ac.ds }

// Root returns the root facet, or nil once it has stopped.
func (ac *Actor) Root() *Facet { return ac.root }

// Err returns the failure that terminated the actor, if any.
func (ac *Actor) Err() error { return ac.err }

// runPendingScripts is one turn: scripts run FIFO with damage repaired
// after each, then the turn's actions are handed to the dataspace.
func (ac *Actor) runPendingScripts() {
	for len(ac.scripts) > 0 && !ac.failed {
		script := ac.scripts[0]
		ac.scripts[0] = nil
		ac.scripts = ac.scripts[1:]

		if err := ac.protect(script); err != nil {
			ac.fail(err)
			break
		}
		ac.ds.refreshAssertions()
	}
	ac.isRunnable = false
	ac.flush()
}

func (ac *Actor) flush() {
	if len(ac.actions) == 0 || ac.failed {
		return
	}
	ac.ds.pending = append(ac.ds.pending, actionGroup{actor: ac, actions: ac.actions})
	ac.actions = nil
}

// protect runs fn, converting a panic into a RuntimeError.
func (ac *Actor) protect(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewScriptPanicError(ac.name, r)
		}
	}()
	fn()
	return nil
}

// fail tears the actor down after an uncaught panic. Uncommitted work is
// dropped and facets are aborted without running stop handlers; the
// queued quit retracts whatever was already committed.
func (ac *Actor) fail(err error) {
	if ac.failed || ac.exited {
		return
	}
	ac.failed = true
	ac.err = err
	slog.Error("actor failed", "actor", ac.name, "id", ac.id, "error", err)

	ac.scripts = nil
	ac.actions = nil
	if ac.root != nil {
		root := ac.root
		ac.root = nil
		root.abort()
	}
	ac.adhoc.Clear()
	ac.ds.pending = append(ac.ds.pending, actionGroup{
		actor:   ac,
		actions: []action{&quitAction{err: err}},
	})
}

// terminate is the normal exit once the root facet has stopped.
func (ac *Actor) terminate() {
	for _, v := range ac.adhoc.Values() {
		ac.retract(v)
	}
	ac.adhoc.Clear()
	ac.enqueueAction(&quitAction{})
	slog.Debug("actor terminating", "actor", ac.name, "id", ac.id)
}

func (ac *Actor) scheduleScript(script func()) {
	if ac.failed || ac.exited {
		return
	}
	ac.pushScript(script)
}

func (ac *Actor) pushScript(script func()) {
	if !ac.isRunnable {
		ac.isRunnable = true
		ac.ds.markRunnable(ac)
	}
	ac.scripts = append(ac.scripts, script)
}

func (ac *Actor) enqueueAction(a action) {
	ac.actions = append(ac.actions, a)
}

// pendingPatch returns the patch at the tail of the action list, so that
// consecutive assertion changes coalesce.
func (ac *Actor) pendingPatch() *patchAction {
	if n := len(ac.actions); n > 0 {
		if p, ok := ac.actions[n-1].(*patchAction); ok && !p.sealed {
			return p
		}
	}
	p := &patchAction{changes: bag.New()}
	ac.actions = append(ac.actions, p)
	return p
}

// sealPatch ends the current patch; later changes start a new one.
func (ac *Actor) sealPatch() {
	if n := len(ac.actions); n > 0 {
		if p, ok := ac.actions[n-1].(*patchAction); ok {
			p.sealed = true
		}
	}
}

func (ac *Actor) assert(v ir.IRValue) {
	ac.pendingPatch().changes.Change(v, 1, false)
}

func (ac *Actor) retract(v ir.IRValue) {
	ac.pendingPatch().changes.Change(v, -1, false)
}

func (ac *Actor) adhocAssert(v ir.IRValue) {
	if ac.adhoc.Change(v, 1, false) == bag.AbsentToPresent {
		ac.assert(v)
	}
}

func (ac *Actor) adhocRetract(v ir.IRValue) {
	if ac.adhoc.Change(v, -1, true) == bag.PresentToAbsent {
		ac.retract(v)
	}
}

// addFacet creates a facet and runs boot in it synchronously. A facet left
// with nothing to do after boot is stopped by the script queued here.
func (ac *Actor) addFacet(parent *Facet, boot func(f *Facet)) *Facet {
	f := newFacet(ac, parent)
	if boot != nil {
		boot(f)
	}
	if f.state == FacetStarting {
		f.state = FacetLive
	}
	ac.pushScript(func() {
		if (parent != nil && !parent.IsLive()) || f.isInert() {
			f.terminate()
		}
	})
	return f
}
