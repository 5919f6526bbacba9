package pool

import "sync"

// deque is a mutex-guarded double-ended queue of jobs. Owners pop from
// the front; thieves steal from the back, so an owner working through
// its own submissions and a thief relieving it contend on opposite
// ends of the backlog.
type deque struct {
	mu   sync.Mutex
	jobs []*job
}

func newDeque() *deque {
	return &deque{}
}

func (d *deque) push(j *job) {
	d.mu.Lock()
	d.jobs = append(d.jobs, j)
	d.mu.Unlock()
}

func (d *deque) pop() (*job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.jobs) == 0 {
		return nil, false
	}
	j := d.jobs[0]
	d.jobs[0] = nil
	d.jobs = d.jobs[1:]
	return j, true
}

func (d *deque) steal() (*job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.jobs) == 0 {
		return nil, false
	}
	last := len(d.jobs) - 1
	j := d.jobs[last]
	d.jobs[last] = nil
	d.jobs = d.jobs[:last]
	return j, true
}
