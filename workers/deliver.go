package workers

import (
	"fmt"
	"log/slog"
)

// Deliver runs work on the pool and passes its result to deliver exactly once,
// from a worker goroutine. A panic in work is recovered and its text is passed
// to onPanic, whose result is delivered in place of the work's result.
//
// Deliver never runs deliver on the calling goroutine. If the pool refuses the
// task the work runs on a fresh goroutine instead, so the single delivery holds
// for every accepted call. Work queued before Shutdown is still delivered.
func (p *Pool) Deliver(work func() string, onPanic func(recovered string) string, deliver func(string)) {
	task := func() {
		var (
			result    string
			completed bool
		)
		defer func() {
			if !completed {
				r := recover()
				slog.Error("async task panicked", "panic", r)
				result = onPanic(fmt.Sprint(r))
			}
			deliver(result)
		}()

		result = work()
		completed = true
	}

	if err := p.Submit(task); err != nil {
		slog.Warn("worker pool rejected task, running detached", "error", err)
		go task()
	}
}
