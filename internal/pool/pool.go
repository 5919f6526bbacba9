// Package pool provides the fixed-size work-stealing scheduler the
// scan pipeline runs on. Each worker owns a private deque and falls
// back to a shared deque, then to stealing from its siblings in
// round-robin order. The controller goroutine is not a worker: it
// submits work and blocks on the idle barrier between batch waves.
package pool

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Task is a unit of work. It receives the worker executing it so
// chained submissions can stay on that worker's private deque.
type Task func(w *Worker) error

// Handle lets the submitter await a task's completion. A panic inside
// the task is captured and surfaced here; it never kills the worker.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task has run and returns its error, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

type job struct {
	fn     Task
	handle *Handle
}

func (j *job) run(w *Worker) {
	defer func() {
		if r := recover(); r != nil {
			j.handle.err = fmt.Errorf("pool: task panic: %v", r)
		}
		close(j.handle.done)
	}()
	j.handle.err = j.fn(w)
}

// idleEvent reports a worker's idle/busy transition for one barrier
// epoch. Stale epochs are discarded by the collector.
type idleEvent struct {
	worker int
	epoch  uint64
	idle   bool
}

// Pool is a fixed set of worker goroutines with work-stealing deques.
type Pool struct {
	workers []*Worker
	shared  *deque

	wake   chan struct{}
	quit   chan struct{}
	events chan idleEvent
	epoch  atomic.Uint64
	armed  atomic.Bool

	stopped bool
	wg      sync.WaitGroup
}

// DefaultWorkers picks the worker count for n requested workers:
// zero means one less than the available parallelism so the
// controller goroutine keeps a core for itself, and requests are
// capped at the available parallelism.
func DefaultWorkers(n int) int {
	max := runtime.NumCPU()
	switch {
	case n <= 0:
		n = max - 1
	case n > max:
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New starts a pool with the given number of workers (see
// DefaultWorkers for how n is normalized).
func New(n int) *Pool {
	n = DefaultWorkers(n)
	p := &Pool{
		shared: newDeque(),
		wake:   make(chan struct{}, n),
		quit:   make(chan struct{}),
		events: make(chan idleEvent, 4*n),
	}
	p.workers = make([]*Worker, n)
	for i := range p.workers {
		p.workers[i] = &Worker{pool: p, index: i, local: newDeque()}
	}
	p.wg.Add(n)
	for _, w := range p.workers {
		go w.run()
	}
	return p
}

// Workers reports the pool size.
func (p *Pool) Workers() int { return len(p.workers) }

// Submit enqueues fn on the shared deque and returns a handle for the
// result. Submissions from inside a task should go through
// Worker.Submit instead to keep chained work local.
func (p *Pool) Submit(fn Task) *Handle {
	h := &Handle{done: make(chan struct{})}
	p.shared.push(&job{fn: fn, handle: h})
	p.wakeOne()
	return h
}

func (p *Pool) wakeOne() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) wakeAll() {
	for range p.workers {
		p.wakeOne()
	}
}

// AwaitIdle blocks the caller until every worker has reported an empty
// queue set for the current barrier epoch. Workers post idle/busy
// transitions on a channel rather than being polled, so nobody spins;
// a worker that picks work back up (by stealing a remaining task)
// retracts its idle report and the barrier keeps waiting.
func (p *Pool) AwaitIdle() {
	// Discard transitions left over from a previous epoch.
	for {
		select {
		case <-p.events:
			continue
		default:
		}
		break
	}

	epoch := p.epoch.Add(1)
	p.armed.Store(true)
	defer p.armed.Store(false)

	// Workers parked before the barrier was armed re-poll and report.
	p.wakeAll()

	idle := make([]bool, len(p.workers))
	n := 0
	for n < len(p.workers) {
		ev := <-p.events
		if ev.epoch != epoch {
			continue
		}
		switch {
		case ev.idle && !idle[ev.worker]:
			idle[ev.worker] = true
			n++
		case !ev.idle && idle[ev.worker]:
			idle[ev.worker] = false
			n--
		}
	}
}

// Stop drains outstanding work via AwaitIdle, then signals the workers
// to exit and joins them. The pool cannot be reused afterwards.
func (p *Pool) Stop() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.AwaitIdle()
	close(p.quit)
	p.wg.Wait()
}

// Worker is the explicit per-worker state passed into the run loop:
// its index, its private deque and its idle-report bookkeeping. It is
// handed to every task it executes.
type Worker struct {
	pool  *Pool
	index int
	local *deque

	// idle-report state for the current barrier epoch, touched only
	// by the worker's own goroutine.
	reportEpoch  uint64
	reportedIdle bool
}

// Index reports the worker's slot in the pool.
func (w *Worker) Index() int { return w.index }

// Submit enqueues fn on this worker's private deque, keeping chained
// submissions cache-local to the submitting worker.
func (w *Worker) Submit(fn Task) *Handle {
	h := &Handle{done: make(chan struct{})}
	w.local.push(&job{fn: fn, handle: h})
	w.pool.wakeOne()
	return h
}

func (w *Worker) run() {
	defer w.pool.wg.Done()
	for {
		if j, ok := w.next(); ok {
			w.reportBusy()
			j.run(w)
			continue
		}
		w.reportIdle()
		select {
		case <-w.pool.wake:
		case <-w.pool.quit:
			return
		}
	}
}

// next pops from the worker's own deque, then the shared deque, then
// steals from the tail of sibling deques scanning round-robin from the
// slot after its own.
func (w *Worker) next() (*job, bool) {
	if j, ok := w.local.pop(); ok {
		return j, true
	}
	if j, ok := w.pool.shared.pop(); ok {
		return j, true
	}
	workers := w.pool.workers
	for i := 1; i < len(workers); i++ {
		victim := workers[(w.index+i)%len(workers)]
		if j, ok := victim.local.steal(); ok {
			return j, true
		}
	}
	return nil, false
}

func (w *Worker) reportIdle() {
	if !w.pool.armed.Load() {
		return
	}
	epoch := w.pool.epoch.Load()
	if w.reportEpoch != epoch {
		w.reportEpoch = epoch
		w.reportedIdle = false
	}
	if !w.reportedIdle {
		w.reportedIdle = true
		w.send(idleEvent{worker: w.index, epoch: epoch, idle: true})
	}
}

func (w *Worker) reportBusy() {
	if w.reportedIdle && w.reportEpoch == w.pool.epoch.Load() {
		w.reportedIdle = false
		w.send(idleEvent{worker: w.index, epoch: w.reportEpoch, idle: false})
	}
}

func (w *Worker) send(ev idleEvent) {
	// The collector is draining while the barrier is armed, so this
	// cannot block indefinitely; the buffer absorbs the rare
	// transition that races the disarm.
	w.pool.events <- ev
}
