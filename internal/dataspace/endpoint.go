package dataspace

import (
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

// EndpointSpec is what an endpoint currently publishes: an assertion, an
// observer registration, both or neither.
type EndpointSpec struct {
	Assertion ir.IRValue
	Analysis  *skeleton.Analysis
}

// Endpoint is a facet's subscription or publication. A dynamic endpoint
// recomputes its spec whenever a field read by its update function changes.
type Endpoint struct {
	id        uint64
	facet     *Facet
	dynamic   bool
	update    func() EndpointSpec
	spec      EndpointSpec
	onRefresh []func()
	onDestroy []func()
	destroyed bool

	// guarded holds the analyses whose callbacks already run under the
	// owning actor's failure isolation.
	guarded map[*skeleton.Analysis]bool
}

// AddEndpoint installs an endpoint whose spec is computed by update. With
// dynamic set, update runs under dataflow tracking and is re-run on damage.
// An Analysis callback is invoked while other actors' patches commit; a
// panic inside it fails this endpoint's actor only.
//
// Panics with a FACET_NOT_LIVE RuntimeError if the facet is stopping.
func (f *Facet) AddEndpoint(update func() EndpointSpec, dynamic bool) *Endpoint {
	if !f.canAddEndpoints() {
		panic(newFacetNotLiveError(f, "AddEndpoint"))
	}
	ds := f.actor.ds
	ep := &Endpoint{
		id:      ds.ids.Next(),
		facet:   f,
		dynamic: dynamic,
		update:  update,
	}
	if dynamic {
		ds.dataflow.WithSubject(ep, func() { ep.spec = update() })
	} else {
		ds.dataflow.WithoutSubject(func() { ep.spec = update() })
	}
	f.endpoints = append(f.endpoints, ep)
	ep.install()
	if ds.hooks.EndpointInstalled != nil {
		ds.hooks.EndpointInstalled(ep)
	}
	return ep
}

// ID returns the endpoint's numeric id.
func (ep *Endpoint) ID() uint64 { return ep.id }

// Facet returns the owning facet.
func (ep *Endpoint) Facet() *Facet { return ep.facet }

// Destroyed reports whether the endpoint has been torn down.
func (ep *Endpoint) Destroyed() bool { return ep.destroyed }

// Assertion returns the currently published assertion, or nil.
func (ep *Endpoint) Assertion() ir.IRValue { return ep.spec.Assertion }

// Analysis returns the current observer registration, or nil.
func (ep *Endpoint) Analysis() *skeleton.Analysis { return ep.spec.Analysis }

// OnRefresh registers fn to run after every recomputation of the spec.
func (ep *Endpoint) OnRefresh(fn func()) {
	ep.onRefresh = append(ep.onRefresh, fn)
}

// OnDestroy registers fn to run when the endpoint is torn down.
func (ep *Endpoint) OnDestroy(fn func()) {
	if ep.destroyed {
		fn()
		return
	}
	ep.onDestroy = append(ep.onDestroy, fn)
}

func (ep *Endpoint) install() {
	ac := ep.facet.actor
	if ep.spec.Assertion != nil {
		ac.assert(ep.spec.Assertion)
	}
	if ep.spec.Analysis != nil {
		ep.guard(ep.spec.Analysis)
		ac.ds.index.AddHandler(ep.spec.Analysis)
	}
}

// guard wraps a's callback, once per analysis, so a panic fails the
// owning actor instead of escaping the delivery.
func (ep *Endpoint) guard(a *skeleton.Analysis) {
	if a.Callback == nil || ep.guarded[a] {
		return
	}
	ac := ep.facet.actor
	cb := a.Callback
	a.Callback = func(evt skeleton.EventType, captures []ir.IRValue) {
		if ac.failed || ac.exited {
			return
		}
		if err := ac.protect(func() { cb(evt, captures) }); err != nil {
			ac.fail(err)
		}
	}
	if ep.guarded == nil {
		ep.guarded = make(map[*skeleton.Analysis]bool)
	}
	ep.guarded[a] = true
}

func (ep *Endpoint) uninstall(emitPatches bool) {
	ac := ep.facet.actor
	if emitPatches && ep.spec.Assertion != nil {
		ac.retract(ep.spec.Assertion)
	}
	if ep.spec.Analysis != nil {
		ac.ds.index.RemoveHandler(ep.spec.Analysis)
	}
}

// refresh recomputes the spec. The caller has already made ep the current
// dataflow subject.
func (ep *Endpoint) refresh() {
	if ep.destroyed {
		return
	}
	next := ep.update()
	if !sameSpec(ep.spec, next) {
		ep.uninstall(true)
		ep.spec = next
		ep.install()
	}
	for _, fn := range ep.onRefresh {
		fn()
	}
}

// Refresh recomputes the spec now, outside damage repair.
func (ep *Endpoint) Refresh() {
	if ep.destroyed {
		return
	}
	g := ep.facet.actor.ds.dataflow
	if ep.dynamic {
		g.ForgetSubject(ep)
		g.WithSubject(ep, ep.refresh)
		return
	}
	g.WithoutSubject(ep.refresh)
}

// Destroy tears the endpoint down, retracting what it published.
func (ep *Endpoint) Destroy() {
	ep.destroy(true)
}

func (ep *Endpoint) destroy(emitPatches bool) {
	if ep.destroyed {
		return
	}
	ep.destroyed = true
	ep.facet.actor.ds.dataflow.ForgetSubject(ep)
	ep.facet.removeEndpoint(ep)
	ep.uninstall(emitPatches)
	hooks := ep.onDestroy
	ep.onDestroy = nil
	for _, fn := range hooks {
		fn()
	}
}

func sameSpec(a, b EndpointSpec) bool {
	if a.Analysis != b.Analysis {
		return false
	}
	if a.Assertion == nil || b.Assertion == nil {
		return a.Assertion == nil && b.Assertion == nil
	}
	return ir.Equal(a.Assertion, b.Assertion)
}
