package dataspace

import (
	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// Tracer receives a record of everything a dataspace commits. It is the
// diagnostic channel actor failures are reported to.
//
// Implemented by store.Journal (SQLite), metrics.Collector (Prometheus)
// and testutil.Recorder (in memory). Calls happen on the dataspace
// goroutine, in commit order.
type Tracer interface {
	ActorStarted(actor string)
	// ActorTerminated reports an actor leaving the dataspace. err is nil
	// for a normal exit.
	ActorTerminated(actor string, err error)
	// Patch reports one assertion count change applied to the dataspace.
	Patch(actor string, v ir.IRValue, tr bag.Transition)
	Message(actor string, v ir.IRValue)
}

// NopTracer discards everything.
type NopTracer struct{}

func (NopTracer) ActorStarted(string) {}
func (NopTracer) ActorTerminated(string, error) {}
func (NopTracer) Patch(string, ir.IRValue, bag.Transition) {}
func (NopTracer) Message(string, ir.IRValue) {}

type multiTracer []Tracer

// MultiTracer fans every call out to ts in order.
func MultiTracer(ts ...Tracer) Tracer {
	var out multiTracer
	for _, t := range ts {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (m multiTracer) ActorStarted(actor string) {
	for _, t := range m {
		t.ActorStarted(actor)
	}
}

func (m multiTracer) ActorTerminated(actor string, err error) {
	for _, t := range m {
		t.ActorTerminated(actor, err)
	}
}

func (m multiTracer) Patch(actor string, v ir.IRValue, tr bag.Transition) {
	for _, t := range m {
		t.Patch(actor, v, tr)
	}
}

func (m multiTracer) Message(actor string, v ir.IRValue) {
	for _, t := range m {
		t.Message(actor, v)
	}
}
