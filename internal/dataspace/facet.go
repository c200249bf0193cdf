package dataspace

import (
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

// FacetState is a facet's position in its lifecycle.
type FacetState int

const (
	FacetStarting FacetState = iota
	FacetLive
	FacetStopping
	FacetStopped
)

func (s FacetState) String() string {
	switch s {
	case FacetStarting:
		return "starting"
	case FacetLive:
		return "live"
	case FacetStopping:
		return "stopping"
	case FacetStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Facet is a node of an actor's conversation tree. It owns endpoints,
// fields and stop handlers, and never outlives its parent.
//
// Facet methods must be called from the actor's own boot functions and
// scripts. Use Schedule to get into a turn from elsewhere.
type Facet struct {
	id        uint64
	actor     *Actor
	parent    *Facet
	children  []*Facet
	endpoints []*Endpoint
	fields    map[string]*Field
	onStop    []func()
	state     FacetState
}

func newFacet(ac *Actor, parent *Facet) *Facet {
	f := &Facet{
		id:     ac.ds.ids.Next(),
		actor:  ac,
		parent: parent,
		fields: make(map[string]*Field),
	}
	if parent != nil {
		parent.children = append(parent.children, f)
	} else {
		ac.root = f
	}
	return f
}

// ID returns the facet's numeric id.
func (f *Facet) ID() uint64 { return f.id }

// Actor returns the owning actor.
func (f *Facet) Actor() *Actor { return f.actor }

// Parent returns the parent facet, nil for a root facet.
func (f *Facet) Parent() *Facet { return f.parent }

// Dataspace returns the dataspace the facet's actor lives in.
func (f *Facet) Dataspace() *Dataspace { return f.actor.ds }

// State returns the lifecycle state.
func (f *Facet) State() FacetState { return f.state }

// IsLive reports whether the facet is live.
func (f *Facet) IsLive() bool { return f.state == FacetLive }

// Children returns the live child facets in creation order.
func (f *Facet) Children() []*Facet {
	out := make([]*Facet, len(f.children))
	copy(out, f.children)
	return out
}

func (f *Facet) isInert() bool {
	return len(f.endpoints) == 0 && len(f.children) == 0
}

func (f *Facet) canAddEndpoints() bool {
	return f.state == FacetStarting || f.state == FacetLive
}

func (f *Facet) removeChild(c *Facet) {
	for i, x := range f.children {
		if x == c {
			f.children = append(f.children[:i], f.children[i+1:]...)
			return
		}
	}
}

func (f *Facet) removeEndpoint(ep *Endpoint) {
	for i, x := range f.endpoints {
		if x == ep {
			f.endpoints = append(f.endpoints[:i], f.endpoints[i+1:]...)
			return
		}
	}
}

// postOrder lists f's subtree deepest first.
func (f *Facet) postOrder(out []*Facet) []*Facet {
	for _, c := range f.Children() {
		out = c.postOrder(out)
	}
	return append(out, f)
}

// terminate stops f and its subtree. Endpoints are destroyed deepest first,
// each facet's retractions in a patch of its own; stop handlers then run as
// deferred turns in the same order, after the retractions are committed.
func (f *Facet) terminate() {
	if !f.canAddEndpoints() {
		return
	}
	ac := f.actor
	parent := f.parent
	if parent != nil {
		parent.removeChild(f)
	} else if ac.root == f {
		ac.root = nil
	}

	order := f.postOrder(nil)
	for _, g := range order {
		g.state = FacetStopping
	}
	for _, g := range order {
		g.destroyEndpoints(true)
		ac.sealPatch()
	}
	for _, g := range order {
		top := g == f
		ac.enqueueAction(&deferredTurn{script: func() {
			g.runStopHandlers()
			if top {
				g.collect(parent)
			}
		}})
	}
}

func (f *Facet) runStopHandlers() {
	handlers := f.onStop
	f.onStop = nil
	for _, h := range handlers {
		h()
	}
	f.state = FacetStopped
	for _, fl := range f.fields {
		f.actor.ds.dataflow.ForgetObject(fl.id)
	}
}

// collect stops a parent left inert, or ends the actor when the root
// facet is gone.
func (f *Facet) collect(parent *Facet) {
	if parent == nil {
		f.actor.terminate()
		return
	}
	if parent.IsLive() && parent.isInert() {
		parent.terminate()
	}
}

// abort stops the subtree without stop handlers or retractions.
func (f *Facet) abort() {
	f.state = FacetStopped
	for _, c := range f.Children() {
		c.abort()
	}
	f.children = nil
	f.destroyEndpoints(false)
	for _, fl := range f.fields {
		f.actor.ds.dataflow.ForgetObject(fl.id)
	}
}

func (f *Facet) destroyEndpoints(emitPatches bool) {
	eps := make([]*Endpoint, len(f.endpoints))
	copy(eps, f.endpoints)
	for _, ep := range eps {
		ep.destroy(emitPatches)
	}
	f.endpoints = nil
}

// Stop requests that the facet stop. It takes effect in a later script,
// never inside the running one.
func (f *Facet) Stop() {
	f.StopThen(nil)
}

// StopThen stops the facet and then runs cont in its parent, if the parent
// is still live. Root facets have no parent and never run cont.
func (f *Facet) StopThen(cont func(parent *Facet)) {
	ac := f.actor
	ac.scheduleScript(func() {
		f.terminate()
		if cont != nil && f.parent != nil {
			parent := f.parent
			ac.pushScript(func() {
				if parent.IsLive() {
					cont(parent)
				}
			})
		}
	})
}

// OnStart queues fn to run as a script once the current boot completes.
func (f *Facet) OnStart(fn func()) {
	f.actor.scheduleScript(func() {
		if f.IsLive() {
			fn()
		}
	})
}

// OnStop registers fn to run when the facet stops normally. Stop handlers
// do not run when the actor fails.
func (f *Facet) OnStop(fn func()) {
	f.onStop = append(f.onStop, fn)
}

// Schedule queues fn as a script of the facet's actor and starts the
// host. fn is skipped if the facet is no longer live by then. This is how
// code running outside a turn (drivers, timers) gets into one.
func (f *Facet) Schedule(fn func()) {
	f.OnStart(fn)
	f.actor.ds.Start()
}

// React creates a child facet and runs boot in it immediately.
func (f *Facet) React(boot func(child *Facet)) *Facet {
	if !f.canAddEndpoints() {
		panic(newFacetNotLiveError(f, "React"))
	}
	return f.actor.addFacet(f, boot)
}

// Spawn creates a new actor in the same dataspace when the turn commits.
// An empty name is filled in by the dataspace's NameGenerator.
func (f *Facet) Spawn(name string, boot func(root *Facet), opts ...SpawnOption) {
	f.actor.enqueueAction(newSpawnAction(name, boot, opts))
}

// Send publishes a message when the turn commits.
func (f *Facet) Send(v ir.IRValue) {
	f.actor.enqueueAction(&messageAction{body: v})
}

// AdhocAssert asserts v on behalf of the actor, outside any endpoint. The
// assertion lasts until AdhocRetract or the actor's exit.
func (f *Facet) AdhocAssert(v ir.IRValue) {
	f.actor.adhocAssert(v)
}

// AdhocRetract undoes one AdhocAssert. Surplus retractions are ignored.
func (f *Facet) AdhocRetract(v ir.IRValue) {
	f.actor.adhocRetract(v)
}

// BackgroundTask acquires a liveness token from the host.
func (f *Facet) BackgroundTask() (release func()) {
	return f.actor.ds.BackgroundTask()
}

// Assert publishes v for as long as the facet lives.
func (f *Facet) Assert(v ir.IRValue) *Endpoint {
	return f.AddEndpoint(func() EndpointSpec {
		return EndpointSpec{Assertion: v}
	}, false)
}

// AssertDynamic publishes the value fn computes, recomputing it whenever a
// field fn reads changes. A nil result asserts nothing.
func (f *Facet) AssertDynamic(fn func() ir.IRValue) *Endpoint {
	return f.AddEndpoint(func() EndpointSpec {
		return EndpointSpec{Assertion: fn()}
	}, true)
}

// On observes pattern: it asserts Observe(pattern) and runs fn as a script
// for every event delivered to it.
func (f *Facet) On(pattern ir.IRValue, fn func(evt skeleton.EventType, captures []ir.IRValue)) *Endpoint {
	a, err := skeleton.Analyze(pattern)
	if err != nil {
		panic(newBadPatternError(f, err))
	}
	a.Callback = f.eventCallback(fn)
	return f.AddEndpoint(func() EndpointSpec {
		return EndpointSpec{Assertion: a.Assertion, Analysis: a}
	}, false)
}

// OnAsserted runs fn when a capture tuple matching pattern appears.
func (f *Facet) OnAsserted(pattern ir.IRValue, fn func(captures []ir.IRValue)) *Endpoint {
	return f.On(pattern, only(skeleton.Added, fn))
}

// OnRetracted runs fn when a capture tuple matching pattern disappears.
func (f *Facet) OnRetracted(pattern ir.IRValue, fn func(captures []ir.IRValue)) *Endpoint {
	return f.On(pattern, only(skeleton.Removed, fn))
}

// OnMessage runs fn for every message matching pattern.
func (f *Facet) OnMessage(pattern ir.IRValue, fn func(captures []ir.IRValue)) *Endpoint {
	return f.On(pattern, only(skeleton.Message, fn))
}

func only(want skeleton.EventType, fn func(captures []ir.IRValue)) func(skeleton.EventType, []ir.IRValue) {
	return func(evt skeleton.EventType, captures []ir.IRValue) {
		if evt == want {
			fn(captures)
		}
	}
}

// eventCallback turns an observer function into an index callback that
// defers the work to a script of this facet.
func (f *Facet) eventCallback(fn func(evt skeleton.EventType, captures []ir.IRValue)) skeleton.Callback {
	return func(evt skeleton.EventType, captures []ir.IRValue) {
		caps := make([]ir.IRValue, len(captures))
		copy(caps, captures)
		f.actor.scheduleScript(func() {
			if f.IsLive() {
				fn(evt, caps)
			}
		})
	}
}

// Dataflow runs fn now and again whenever a field it read changes.
func (f *Facet) Dataflow(fn func()) *Endpoint {
	var ep *Endpoint
	ep = f.AddEndpoint(func() EndpointSpec {
		f.actor.scheduleScript(func() {
			if f.IsLive() && ep != nil && !ep.destroyed {
				f.actor.ds.dataflow.WithSubject(ep, fn)
			}
		})
		return EndpointSpec{}
	}, true)
	return ep
}
