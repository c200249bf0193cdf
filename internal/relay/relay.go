// Package relay nests a dataspace inside a facet of another one.
//
// Inside the nested dataspace, Inbound(X) and Outbound(X) cross the
// boundary:
//   - Observe(Inbound(X)) inside observes X in the outer dataspace;
//     events are delivered to the inner observer unchanged.
//   - Outbound(X) asserted inside is asserted as X outside.
//   - A message Outbound(X) inside is sent as X outside.
//   - A QuitDataspace message inside stops the hosting facet.
package relay

import (
	"log/slog"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/dataspace"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

// Record labels understood at the boundary.
const (
	LabelInbound       = "Inbound"
	LabelOutbound      = "Outbound"
	LabelQuitDataspace = "QuitDataspace"
)

// Inbound wraps a pattern that refers to the outer dataspace.
func Inbound(p ir.IRValue) ir.IRValue {
	return ir.Rec(LabelInbound, p)
}

// Outbound wraps a value to be published in the outer dataspace.
func Outbound(v ir.IRValue) ir.IRValue {
	return ir.Rec(LabelOutbound, v)
}

// QuitDataspace is the message that shuts a nested dataspace down.
func QuitDataspace() ir.IRValue {
	return ir.Rec(LabelQuitDataspace)
}

func unwrap(v ir.IRValue, label string) (ir.IRValue, bool) {
	r, ok := v.(ir.IRRecord)
	if !ok || r.Label != label || len(r.Fields) != 1 {
		return nil, false
	}
	return r.Fields[0], true
}

// NestedDataspace is a dataspace hosted by a facet of an outer dataspace.
// Its rounds run as scripts of the hosting facet's actor.
type NestedDataspace struct {
	outer     *dataspace.Facet
	inner     *dataspace.Dataspace
	scheduled bool
}

// Spawn starts a new actor in the outer facet's dataspace whose root facet
// hosts a nested dataspace booted with boot.
func Spawn(outer *dataspace.Facet, name string, boot func(f *dataspace.Facet), opts ...dataspace.Option) {
	outer.Spawn(name, func(f *dataspace.Facet) {
		New(f, boot, opts...)
	})
}

// New hosts a nested dataspace in outer, which must be starting or live.
// The hosting facet is kept alive until it is stopped explicitly or by a
// QuitDataspace message.
func New(outer *dataspace.Facet, boot func(f *dataspace.Facet), opts ...dataspace.Option) *NestedDataspace {
	nd := &NestedDataspace{outer: outer}
	hooks := dataspace.Hooks{
		EndpointInstalled: nd.endpointInstalled,
		AssertionChanged:  nd.assertionChanged,
		MessageSent:       nd.messageSent,
	}
	all := append([]dataspace.Option{dataspace.WithHost(nd), dataspace.WithHooks(hooks)}, opts...)
	nd.inner = dataspace.New(boot, all...)

	// An endpoint with nothing to publish keeps the hosting facet from
	// being collected as inert.
	outer.Dataflow(func() {})
	outer.OnStop(func() {
		slog.Debug("nested dataspace stopped", "actors", nd.inner.ActorCount())
	})
	nd.Start()
	return nd
}

// Dataspace returns the nested dataspace.
func (nd *NestedDataspace) Dataspace() *dataspace.Dataspace {
	return nd.inner
}

// Outer returns the hosting facet.
func (nd *NestedDataspace) Outer() *dataspace.Facet {
	return nd.outer
}

// Start implements dataspace.Host. It queues one round of the nested
// dataspace as a script of the hosting facet.
func (nd *NestedDataspace) Start() {
	if nd.scheduled {
		return
	}
	nd.scheduled = true
	nd.outer.Schedule(nd.step)
}

func (nd *NestedDataspace) step() {
	nd.scheduled = false
	if nd.inner.RunScripts() {
		nd.Start()
	}
}

// BackgroundTask implements dataspace.Host by delegating outward.
func (nd *NestedDataspace) BackgroundTask() func() {
	return nd.outer.BackgroundTask()
}

// Post implements dataspace.Host by delegating to the outer host.
func (nd *NestedDataspace) Post(fn func()) {
	if h := nd.outer.Dataspace().Host(); h != nil {
		h.Post(fn)
		return
	}
	fn()
}

func (nd *NestedDataspace) endpointInstalled(ep *dataspace.Endpoint) {
	var mirror *dataspace.Endpoint
	var mirrored *skeleton.Analysis

	resync := func() {
		a := ep.Analysis()
		if ep.Destroyed() {
			a = nil
		}
		if a == mirrored {
			return
		}
		if mirror != nil {
			mirror.Destroy()
			mirror = nil
		}
		mirrored = a
		if a == nil {
			return
		}
		if p, ok := unwrap(a.Pattern, LabelInbound); ok {
			mirror = nd.mirror(p, a)
		}
	}

	resync()
	ep.OnRefresh(resync)
	ep.OnDestroy(resync)
}

// mirror observes p in the outer dataspace on behalf of the inner observer
// inner. Capture order is unchanged by the Inbound wrapper, so captures are
// forwarded as is.
func (nd *NestedDataspace) mirror(p ir.IRValue, inner *skeleton.Analysis) *dataspace.Endpoint {
	if s := nd.outer.State(); s != dataspace.FacetStarting && s != dataspace.FacetLive {
		return nil
	}
	a, err := skeleton.Analyze(p)
	if err != nil {
		// Inbound(p) analysed, so p does too.
		panic(err)
	}
	a.Callback = func(evt skeleton.EventType, captures []ir.IRValue) {
		if inner.Callback != nil {
			inner.Callback(evt, captures)
		}
		nd.Start()
	}
	return nd.outer.AddEndpoint(func() dataspace.EndpointSpec {
		return dataspace.EndpointSpec{Assertion: a.Assertion, Analysis: a}
	}, false)
}

func (nd *NestedDataspace) assertionChanged(v ir.IRValue, tr bag.Transition) {
	x, ok := unwrap(v, LabelOutbound)
	if !ok {
		return
	}
	switch tr {
	case bag.AbsentToPresent:
		nd.outer.AdhocAssert(x)
	case bag.PresentToAbsent:
		nd.outer.AdhocRetract(x)
	}
}

func (nd *NestedDataspace) messageSent(v ir.IRValue) {
	if x, ok := unwrap(v, LabelOutbound); ok {
		nd.outer.Send(x)
		return
	}
	if r, ok := v.(ir.IRRecord); ok && r.Label == LabelQuitDataspace && len(r.Fields) == 0 {
		slog.Debug("nested dataspace quitting", "actor", nd.outer.Actor().Name())
		nd.outer.Stop()
	}
}
