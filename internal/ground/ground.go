package ground

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/dataspace/internal/dataspace"
)

// DefaultFuel is the number of dataspace rounds a single step may run
// before yielding to other host tasks.
const DefaultFuel = 1000

// StepObserver is told about every completed step: how many rounds it ran
// and whether the dataspace was still busy when the fuel ran out.
type StepObserver interface {
	ObserveStep(rounds int, busy bool)
}

// Ground is the root Host of a dataspace.
//
// Thread-safety: Start, Post, BackgroundTask (and the release functions it
// returns), Stop and Completed are safe from any goroutine. Everything else,
// including every dataspace callback, runs on the goroutine calling Run.
type Ground struct {
	ds        *dataspace.Dataspace
	queue     *taskQueue
	fuel      int
	observers []StepObserver
	dsOpts    []dataspace.Option

	mu            sync.Mutex
	stepScheduled bool
	background    int
	stopHandlers  []func()
	completed     chan struct{}
	completedOnce sync.Once
}

// Option configures a Ground.
type Option func(*Ground)

// WithFuel sets the rounds per step. Values below 1 are ignored.
func WithFuel(fuel int) Option {
	return func(g *Ground) {
		if fuel > 0 {
			g.fuel = fuel
		}
	}
}

// WithStepObserver registers an observer of completed steps.
func WithStepObserver(o StepObserver) Option {
	return func(g *Ground) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithDataspaceOptions passes options through to the dataspace.
func WithDataspaceOptions(opts ...dataspace.Option) Option {
	return func(g *Ground) {
		g.dsOpts = append(g.dsOpts, opts...)
	}
}

// New creates a Ground hosting a fresh dataspace whose first actor runs
// boot. Nothing runs until Start or Run.
func New(boot func(f *dataspace.Facet), opts ...Option) *Ground {
	g := &Ground{
		queue:     newTaskQueue(),
		fuel:      DefaultFuel,
		completed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	dsOpts := append([]dataspace.Option{dataspace.WithHost(g)}, g.dsOpts...)
	g.ds = dataspace.New(boot, dsOpts...)
	return g
}

// Dataspace returns the hosted dataspace.
func (g *Ground) Dataspace() *dataspace.Dataspace {
	return g.ds
}

// Fuel returns the rounds per step.
func (g *Ground) Fuel() int {
	return g.fuel
}

// Start schedules a step. Redundant calls while a step is pending are
// coalesced.
func (g *Ground) Start() {
	g.mu.Lock()
	if g.stepScheduled {
		g.mu.Unlock()
		return
	}
	g.stepScheduled = true
	g.mu.Unlock()

	if !g.queue.Enqueue(g.step) {
		g.mu.Lock()
		g.stepScheduled = false
		g.mu.Unlock()
	}
}

// Post runs fn as a task on the Ground goroutine. Tasks posted after Stop
// are dropped.
func (g *Ground) Post(fn func()) {
	if !g.queue.Enqueue(fn) {
		slog.Warn("ground stopped, dropping posted task")
	}
}

// BackgroundTask marks outstanding external work. The returned release
// function is idempotent; the last release schedules a step so quiescence
// is re-evaluated.
func (g *Ground) BackgroundTask() func() {
	g.mu.Lock()
	g.background++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.background--
			last := g.background == 0
			g.mu.Unlock()
			if last {
				g.Start()
			}
		})
	}
}

// BackgroundTasks returns the number of unreleased background tasks.
func (g *Ground) BackgroundTasks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.background
}

// OnStop registers fn to run the next time the Ground becomes quiescent.
func (g *Ground) OnStop(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopHandlers = append(g.stopHandlers, fn)
}

// Completed is closed the first time the Ground becomes quiescent.
func (g *Ground) Completed() <-chan struct{} {
	return g.completed
}

// step is the only task that touches the dataspace.
func (g *Ground) step() {
	g.mu.Lock()
	g.stepScheduled = false
	g.mu.Unlock()

	rounds := 0
	busy := false
	for rounds < g.fuel {
		rounds++
		busy = g.ds.RunScripts()
		if !busy {
			break
		}
	}
	for _, o := range g.observers {
		o.ObserveStep(rounds, busy)
	}

	if busy {
		slog.Debug("ground out of fuel, yielding", "rounds", rounds)
		g.Start()
		return
	}

	g.mu.Lock()
	if g.background > 0 {
		g.mu.Unlock()
		return
	}
	handlers := g.stopHandlers
	g.stopHandlers = nil
	g.mu.Unlock()

	slog.Debug("ground quiescent", "actors", g.ds.ActorCount())
	for _, h := range handlers {
		h()
	}
	g.completedOnce.Do(func() { close(g.completed) })
}

// quiescent reports whether nothing can happen without outside input.
func (g *Ground) quiescent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.stepScheduled && g.background == 0 && !g.ds.Busy()
}

// Run processes tasks until the Ground is quiescent, Stop is called or ctx
// is cancelled. It returns ctx.Err() on cancellation and nil otherwise.
//
// CRITICAL: Run is the single goroutine allowed to touch the dataspace.
func (g *Ground) Run(ctx context.Context) error {
	slog.Info("ground starting", "fuel", g.fuel)
	g.Start()

	for {
		task, ok := g.queue.TryDequeue()
		if ok {
			g.runTask(task)
			continue
		}

		if g.quiescent() {
			slog.Info("ground stopping: quiescent")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("ground stopping: context cancelled")
			g.queue.Close()
			return ctx.Err()

		case <-g.queue.Wait():
			if g.queue.Closed() && g.queue.Len() == 0 {
				slog.Info("ground stopping: queue closed")
				return nil
			}
		}
	}
}

// runTask isolates the loop from a panicking posted task. Dataspace
// scripts are protected by their actors; this catches driver code.
func (g *Ground) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ground task panicked", "panic", r)
		}
	}()
	task()
}

// Stop closes the task queue. Run returns once the queue has drained.
func (g *Ground) Stop() {
	g.queue.Close()
}
