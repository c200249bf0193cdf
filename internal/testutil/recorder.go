package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// Trace event kinds, shared with the SQLite journal.
const (
	KindActorStarted    = "actor_started"
	KindActorTerminated = "actor_terminated"
	KindPatch           = "patch"
	KindMessage         = "message"
)

// Event is one call received by a Recorder.
type Event struct {
	Kind       string
	Actor      string
	Value      ir.IRValue
	Transition bag.Transition
	Err        error
}

// String renders the event on one line, the format golden traces use.
func (e Event) String() string {
	switch e.Kind {
	case KindPatch:
		return fmt.Sprintf("patch %s %s %s", e.Actor, e.Transition, ir.Key(e.Value))
	case KindMessage:
		return fmt.Sprintf("message %s %s", e.Actor, ir.Key(e.Value))
	case KindActorTerminated:
		if e.Err != nil {
			return fmt.Sprintf("terminated %s error=%q", e.Actor, e.Err.Error())
		}
		return fmt.Sprintf("terminated %s", e.Actor)
	default:
		return fmt.Sprintf("started %s", e.Actor)
	}
}

// Recorder is an in-memory dataspace tracer.
//
// Thread-safety: Recorder is safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// ActorStarted implements dataspace.Tracer.
func (r *Recorder) ActorStarted(actor string) {
	r.record(Event{Kind: KindActorStarted, Actor: actor})
}

// ActorTerminated implements dataspace.Tracer.
func (r *Recorder) ActorTerminated(actor string, err error) {
	r.record(Event{Kind: KindActorTerminated, Actor: actor, Err: err})
}

// Patch implements dataspace.Tracer.
func (r *Recorder) Patch(actor string, v ir.IRValue, tr bag.Transition) {
	r.record(Event{Kind: KindPatch, Actor: actor, Value: v, Transition: tr})
}

// Message implements dataspace.Tracer.
func (r *Recorder) Message(actor string, v ir.IRValue) {
	r.record(Event{Kind: KindMessage, Actor: actor, Value: v})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Lines renders every event with Event.String.
func (r *Recorder) Lines() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

// Transitions returns, in order, the values whose patches produced tr.
func (r *Recorder) Transitions(tr bag.Transition) []ir.IRValue {
	var out []ir.IRValue
	for _, e := range r.Events() {
		if e.Kind == KindPatch && e.Transition == tr {
			out = append(out, e.Value)
		}
	}
	return out
}

// Messages returns every message body in delivery order.
func (r *Recorder) Messages() []ir.IRValue {
	var out []ir.IRValue
	for _, e := range r.Events() {
		if e.Kind == KindMessage {
			out = append(out, e.Value)
		}
	}
	return out
}

// Termination reports whether actor terminated and the error it
// terminated with.
func (r *Recorder) Termination(actor string) (bool, error) {
	for _, e := range r.Events() {
		if e.Kind == KindActorTerminated && e.Actor == actor {
			return true, e.Err
		}
	}
	return false, nil
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
