package ground

import "sync"

// taskQueue holds the host tasks waiting for the Ground goroutine: the
// pending dataspace step and callbacks posted by drivers. Drivers enqueue
// from their own goroutines and never wait for the Ground, so the queue
// has no capacity limit.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	// ready has room for one token: any number of enqueues between two
	// wake-ups leave a single token behind. Close closes it.
	ready chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make([]func(), 0, 16),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends task. It reports false, dropping the task, once the
// Ground has been stopped.
func (q *taskQueue) Enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the oldest task, if any.
func (q *taskQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil // release the closure
	q.tasks = q.tasks[1:]
	if len(q.tasks) == 0 {
		q.tasks = q.tasks[:0:0]
	}
	return task, true
}

// Wait is the channel the Run loop selects on alongside its context.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.ready
}

// Len is the number of tasks not yet run.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether the Ground has been stopped.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close refuses further tasks and wakes Run so it can finish the backlog.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ready)
	}
}
