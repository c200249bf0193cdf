package dataspace

import (
	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// action is one committed effect of a turn.
type action interface {
	perform(ds *Dataspace, ac *Actor)
}

type actionGroup struct {
	actor   *Actor
	actions []action
}

type patchAction struct {
	changes *bag.Bag
	sealed  bool
}

func (p *patchAction) perform(ds *Dataspace, ac *Actor) {
	ds.applyPatch(ac, p.changes)
}

type messageAction struct {
	body ir.IRValue
}

func (m *messageAction) perform(ds *Dataspace, ac *Actor) {
	ds.deliverMessage(ac, m.body)
}

type spawnAction struct {
	name string
	boot func(f *Facet)
	cfg  spawnConfig
}

func newSpawnAction(name string, boot func(f *Facet), opts []SpawnOption) *spawnAction {
	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &spawnAction{name: name, boot: boot, cfg: cfg}
}

func (s *spawnAction) perform(ds *Dataspace, ac *Actor) {
	ds.addActor(s.name, s.boot, s.cfg, ac)
}

type quitAction struct {
	err error
}

func (q *quitAction) perform(ds *Dataspace, ac *Actor) {
	if ac == nil || ac.exited {
		return
	}
	ac.exited = true
	delta := ac.cleanup
	ac.cleanup = bag.New()
	ds.applyPatch(ac, delta)
	ds.removeActor(ac)
	ds.tracer.ActorTerminated(ac.name, q.err)
}

func isQuit(a action) bool {
	_, ok := a.(*quitAction)
	return ok
}

// deferredTurn runs its script in a later turn of the actor, after every
// action queued before it has been committed.
type deferredTurn struct {
	script func()
}

func (d *deferredTurn) perform(ds *Dataspace, ac *Actor) {
	if ac != nil {
		ac.pushScript(d.script)
	}
}

// SpawnOption configures a spawned actor.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	initial []ir.IRValue
}

// WithInitialAssertions makes the new actor hold vs from the moment it is
// created until its boot function has run. Boot can take them over with
// its own endpoints without the values ever being observed absent.
func WithInitialAssertions(vs ...ir.IRValue) SpawnOption {
	return func(c *spawnConfig) {
		c.initial = append(c.initial, vs...)
	}
}
