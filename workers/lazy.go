package workers

import (
	"sync"
	"sync/atomic"
)

// Lazy holds a Pool that is built on first use and then shared for the life of
// the process. Concurrent first callers all observe the same instance.
type Lazy struct {
	build  func() *Pool
	pool   *Pool
	once   sync.Once
	builds atomic.Int32
	ready  atomic.Bool
}

// NewLazy returns a holder that calls build the first time Get is called.
func NewLazy(build func() *Pool) *Lazy {
	return &Lazy{build: build}
}

// Get returns the pool, building it if this is the first call.
func (l *Lazy) Get() *Pool {
	l.once.Do(func() {
		l.builds.Add(1)
		l.pool = l.build()
		l.ready.Store(true)
	})
	return l.pool
}

// Initialized reports whether the pool has been built.
func (l *Lazy) Initialized() bool {
	return l.ready.Load()
}

// Builds returns how many times the build function ran. It is never more than one.
func (l *Lazy) Builds() int {
	return int(l.builds.Load())
}
