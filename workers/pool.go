// Package workers provides the worker pool that runs asynchronous requests
// off the caller's thread.
package workers

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolShutdown is returned when submitting to a pool that has been shut down.
var ErrPoolShutdown = errors.New("worker pool is shutdown")

// DefaultSize returns the worker count used when none is configured:
// twice the CPU count, never fewer than four.
func DefaultSize() int {
	n := runtime.NumCPU() * 2
	if n < 4 {
		n = 4
	}
	return n
}

// Pool runs submitted tasks on a fixed set of worker goroutines.
type Pool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	once   sync.Once
	size   int
	closed bool
}

// NewPool starts size workers sharing a queue of queueSize pending tasks.
// A size below one is raised to one; a non-positive queueSize defaults to
// four slots per worker.
func NewPool(size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size * 4
	}

	p := &Pool{
		tasks: make(chan func(), queueSize),
		size:  size,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		if task != nil {
			task()
		}
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues task without blocking. When the queue is full the task runs
// on a new goroutine instead.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolShutdown
	}

	select {
	case p.tasks <- task:
	default:
		go task()
	}
	return nil
}

// SubmitBlocking queues task, waiting for queue space if necessary. It must
// not be called from a task running on the same pool.
func (p *Pool) SubmitBlocking(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolShutdown
	}

	p.tasks <- task
	return nil
}

// Shutdown stops accepting tasks, lets the workers finish everything already
// queued and waits for them to exit. Calling Shutdown more than once is safe.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()
	})
}
