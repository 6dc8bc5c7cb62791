package scene

import "context"

// Executor runs scene writes on the context that owns the scene.
// Do blocks until fn has run or ctx is done.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Inline runs fn on the caller's goroutine.
type Inline struct{}

// Do runs fn unless ctx is already done.
func (Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

type task struct {
	fn   func()
	done chan struct{}
}

// Loop serializes writes onto a single goroutine started with Run.
type Loop struct {
	tasks chan task
}

// NewLoop returns a loop with room for buf queued writes.
func NewLoop(buf int) *Loop {
	return &Loop{tasks: make(chan task, buf)}
}

// Run executes queued writes until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-l.tasks:
			t.fn()
			close(t.done)
		}
	}
}

// Do hands fn to the loop and waits for it to run.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
