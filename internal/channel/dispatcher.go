package channel

import "sync"

// Dispatcher is the queue between a channel's I/O goroutines and the
// goroutine that owns the session. Producers Enqueue; the owner drains the
// queue with Execute. Executions are serialized, so tasks run one at a time
// and in the order they were queued.
type Dispatcher struct {
	mu     sync.Mutex
	tasks  []func()
	signal chan struct{}

	running sync.Mutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a task and wakes whoever waits on Signal.
func (d *Dispatcher) Enqueue(task func()) {
	d.mu.Lock()
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Execute runs every task queued at the time of the call and returns the
// number run. Tasks queued while it runs wait for the next call.
// A task must not call Execute itself; doing so blocks forever.
func (d *Dispatcher) Execute() int {
	d.running.Lock()
	defer d.running.Unlock()

	d.mu.Lock()
	batch := d.tasks
	d.tasks = nil
	d.mu.Unlock()

	for _, task := range batch {
		task()
	}
	return len(batch)
}

// Len returns the number of queued tasks.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Signal returns a channel that receives a value after tasks are queued.
// Signals coalesce: one receive may stand for several Enqueue calls.
func (d *Dispatcher) Signal() <-chan struct{} {
	return d.signal
}
