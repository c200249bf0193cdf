package dataspace

import (
	"log/slog"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/dataflow"
	"github.com/roach88/dataspace/internal/ir"
	"github.com/roach88/dataspace/internal/skeleton"
)

// Host drives a Dataspace. The Ground scheduler is the root host; a nested
// dataspace is hosted by a facet of its outer dataspace.
type Host interface {
	// Start asks the host to run the dataspace until it is idle.
	Start()
	// BackgroundTask marks outstanding external work. The host does not
	// report quiescence until every release function has been called.
	BackgroundTask() (release func())
	// Post runs fn on the host goroutine. Safe from any goroutine.
	Post(fn func())
}

// Hooks let an embedding observe the dataspace's commits. All hooks run on
// the dataspace goroutine.
type Hooks struct {
	// EndpointInstalled runs after an endpoint is created and subscribed.
	EndpointInstalled func(ep *Endpoint)
	// AssertionChanged runs after every count change of an assertion.
	AssertionChanged func(v ir.IRValue, tr bag.Transition)
	// MessageSent runs before a message is delivered to observers.
	MessageSent func(v ir.IRValue)
}

// Dataspace owns the shared assertion set, the observer index and the set
// of actors publishing into it.
type Dataspace struct {
	index    *skeleton.Index
	dataflow *dataflow.Graph[*Endpoint, uint64]

	actors     map[uint64]*Actor
	actorOrder []*Actor
	runnable   []*Actor
	pending    []actionGroup
	ids        *IDGenerator
	names      NameGenerator
	tracer     Tracer
	hooks      Hooks
	host       Host
}

// Option configures a Dataspace.
type Option func(*Dataspace)

// WithTracer sets the tracer commits are reported to.
func WithTracer(t Tracer) Option {
	return func(ds *Dataspace) {
		if t != nil {
			ds.tracer = t
		}
	}
}

// WithNameGenerator sets the generator used for unnamed actors.
// Default: UUIDv7Generator.
func WithNameGenerator(g NameGenerator) Option {
	return func(ds *Dataspace) {
		ds.names = g
	}
}

// WithIDGenerator sets the numeric id source.
func WithIDGenerator(g *IDGenerator) Option {
	return func(ds *Dataspace) {
		ds.ids = g
	}
}

// WithHooks installs commit hooks.
func WithHooks(h Hooks) Option {
	return func(ds *Dataspace) {
		ds.hooks = h
	}
}

// WithHost attaches the host at construction time.
func WithHost(h Host) Option {
	return func(ds *Dataspace) {
		ds.host = h
	}
}

// New creates a dataspace whose first actor runs boot. Nothing runs until
// the host calls RunScripts.
func New(boot func(f *Facet), opts ...Option) *Dataspace {
	ds := &Dataspace{
		index:    skeleton.NewIndex(),
		dataflow: dataflow.New[*Endpoint, uint64](),
		actors:   make(map[uint64]*Actor),
		ids:      NewIDGenerator(),
		names:    UUIDv7Generator{},
		tracer:   NopTracer{},
	}
	for _, opt := range opts {
		opt(ds)
	}
	if boot != nil {
		ds.Spawn("", boot)
	}
	return ds
}

// AttachHost sets the host after construction, for hosts that need the
// dataspace to exist before they do.
func (ds *Dataspace) AttachHost(h Host) {
	ds.host = h
}

// Host returns the attached host, or nil.
func (ds *Dataspace) Host() Host {
	return ds.host
}

// Start asks the host to run the dataspace. Without a host it is a no-op.
func (ds *Dataspace) Start() {
	if ds.host != nil {
		ds.host.Start()
	}
}

// BackgroundTask acquires a liveness token from the host.
func (ds *Dataspace) BackgroundTask() func() {
	if ds.host == nil {
		return func() {}
	}
	return ds.host.BackgroundTask()
}

// Spawn queues a new top-level actor. It is meant for callers outside any
// turn (drivers, tests); scripts use Facet.Spawn.
func (ds *Dataspace) Spawn(name string, boot func(f *Facet), opts ...SpawnOption) {
	ds.pending = append(ds.pending, actionGroup{
		actions: []action{newSpawnAction(name, boot, opts)},
	})
}

// RunScripts runs one round: every runnable actor's queued scripts, then
// every pending action. It reports whether work remains.
func (ds *Dataspace) RunScripts() bool {
	ds.runPendingScripts()
	ds.performPendingActions()
	return ds.Busy()
}

// Busy reports whether any actor is runnable or any action is pending.
func (ds *Dataspace) Busy() bool {
	return len(ds.runnable) > 0 || len(ds.pending) > 0
}

func (ds *Dataspace) runPendingScripts() {
	runnable := ds.runnable
	ds.runnable = nil
	for _, ac := range runnable {
		ac.runPendingScripts()
	}
}

func (ds *Dataspace) performPendingActions() {
	groups := ds.pending
	ds.pending = nil
	for _, g := range groups {
		for _, a := range g.actions {
			if g.actor != nil && (g.actor.failed || g.actor.exited) && !isQuit(a) {
				continue
			}
			a.perform(ds, g.actor)
			ds.runPendingScripts()
		}
	}
}

// refreshAssertions repairs dataflow damage by recomputing the dependent
// endpoints.
func (ds *Dataspace) refreshAssertions() {
	ds.dataflow.RepairDamage(func(ep *Endpoint) {
		ac := ep.facet.actor
		if ac.exited || ac.failed {
			return
		}
		if err := ac.protect(ep.refresh); err != nil {
			ac.fail(err)
		}
	})
}

func (ds *Dataspace) markRunnable(ac *Actor) {
	ds.runnable = append(ds.runnable, ac)
}

// applyPatch commits delta on behalf of ac. Additions go first so that a
// value moving between two endpoints never flickers absent.
func (ds *Dataspace) applyPatch(ac *Actor, delta *bag.Bag) {
	var removals []bag.Entry
	delta.Ascend(func(v ir.IRValue, count int) bool {
		if count > 0 {
			ds.adjustIndex(ac, v, count)
		} else if count < 0 {
			removals = append(removals, bag.Entry{Value: v, Count: count})
		}
		if ac != nil {
			ac.cleanup.Change(v, -count, false)
		}
		return true
	})
	for _, r := range removals {
		ds.adjustIndex(ac, r.Value, r.Count)
	}
}

func (ds *Dataspace) adjustIndex(ac *Actor, v ir.IRValue, delta int) {
	tr := ds.index.AdjustAssertion(v, delta)
	ds.tracer.Patch(actorName(ac), v, tr)
	if ds.hooks.AssertionChanged != nil {
		ds.hooks.AssertionChanged(v, tr)
	}
}

func (ds *Dataspace) deliverMessage(ac *Actor, v ir.IRValue) {
	ds.tracer.Message(actorName(ac), v)
	if ds.hooks.MessageSent != nil {
		ds.hooks.MessageSent(v)
	}
	ds.index.DeliverMessage(v)
}

func (ds *Dataspace) addActor(name string, boot func(f *Facet), cfg spawnConfig, parent *Actor) {
	if name == "" {
		name = ds.names.Generate()
	}
	ac := newActor(ds, name, cfg.initial)
	ds.actors[ac.id] = ac
	ds.actorOrder = append(ds.actorOrder, ac)
	ds.tracer.ActorStarted(ac.name)
	slog.Debug("actor started", "actor", ac.name, "id", ac.id, "parent", actorName(parent))

	ds.applyPatch(ac, ac.adhoc)

	if err := ac.protect(func() { ac.addFacet(nil, boot) }); err != nil {
		ac.fail(err)
		return
	}
	for _, v := range cfg.initial {
		ac.adhocRetract(v)
	}
}

func (ds *Dataspace) removeActor(ac *Actor) {
	delete(ds.actors, ac.id)
	for i, a := range ds.actorOrder {
		if a == ac {
			ds.actorOrder = append(ds.actorOrder[:i], ds.actorOrder[i+1:]...)
			break
		}
	}
}

// ActorCount returns the number of actors that have not quit.
func (ds *Dataspace) ActorCount() int {
	return len(ds.actors)
}

// ActorNames returns the names of live actors in spawn order.
func (ds *Dataspace) ActorNames() []string {
	out := make([]string, len(ds.actorOrder))
	for i, a := range ds.actorOrder {
		out[i] = a.name
	}
	return out
}

// Count returns the committed multiplicity of v.
func (ds *Dataspace) Count(v ir.IRValue) int {
	return ds.index.Assertions().Get(v)
}

// Assertions returns every committed assertion in value order.
func (ds *Dataspace) Assertions() []ir.IRValue {
	return ds.index.Assertions().Values()
}

// Index exposes the observer index for interest queries.
func (ds *Dataspace) Index() *skeleton.Index {
	return ds.index
}

func actorName(ac *Actor) string {
	if ac == nil {
		return ""
	}
	return ac.name
}
