// Package eventloop runs page work on a single goroutine.
//
// A Loop has two queues. Tasks are posted from any goroutine and run one at
// a time in post order. Microtasks are queued while a task runs and are all
// drained, including microtasks they queue in turn, before the next task
// starts. Code that must run "after the current synchronous step but before
// anything else" queues a microtask.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Loop errors.
var (
	ErrClosed = errors.New("eventloop: loop closed")
)

// task is a posted function. done, when set, is closed once fn and the
// microtasks it queued have run.
type task struct {
	fn   func()
	done chan struct{}
}

// Loop is a single-goroutine task runner with a microtask queue.
type Loop struct {
	tasks  chan task
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	mu         sync.Mutex
	microtasks []func()

	running atomic.Bool
	onPanic func(recovered any)
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithPanicHandler is called with the value of every recovered panic.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(lp *Loop) {
		lp.onPanic = fn
	}
}

// New creates a loop whose task queue holds up to buffer pending tasks.
func New(buffer int, opts ...Option) *Loop {
	if buffer < 1 {
		buffer = 1
	}
	l := &Loop{
		tasks:  make(chan task, buffer),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post enqueues fn as a task. It blocks while the queue is full and fails
// with ErrClosed once the loop is closed.
func (l *Loop) Post(fn func()) error {
	return l.post(task{fn: fn})
}

func (l *Loop) post(t task) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.tasks <- t:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Do posts fn and waits until it and the microtasks it queued have run.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.post(task{fn: fn, done: finished}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// QueueMicrotask appends fn to the microtask queue. It is safe to call from
// any goroutine, but microtasks only run on the loop goroutine or in
// RunTask.
func (l *Loop) QueueMicrotask(fn func()) {
	l.mu.Lock()
	l.microtasks = append(l.microtasks, fn)
	l.mu.Unlock()
}

// PendingMicrotasks returns the number of queued microtasks.
func (l *Loop) PendingMicrotasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.microtasks)
}

// Run processes tasks until ctx is done or the loop is closed. Only one Run
// may be active at a time.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("eventloop: already running")
	}
	defer l.running.Store(false)

	for {
		select {
		case t := <-l.tasks:
			l.RunTask(t.fn)
			if t.done != nil {
				close(t.done)
			}

		case <-ctx.Done():
			return ctx.Err()

		case <-l.done:
			return nil
		}
	}
}

// RunTask runs fn and then drains the microtask queue on the calling
// goroutine. It is what Run does for every task and lets synchronous
// callers, tests among them, step a page without a loop goroutine.
func (l *Loop) RunTask(fn func()) {
	l.safeCall("task", fn)
	l.DrainMicrotasks()
}

// DrainMicrotasks runs queued microtasks in FIFO order until the queue is
// empty.
func (l *Loop) DrainMicrotasks() {
	for {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.microtasks[0]
		l.microtasks[0] = nil
		l.microtasks = l.microtasks[1:]
		l.mu.Unlock()

		l.safeCall("microtask", fn)
	}
}

// Close stops the loop. Pending tasks are discarded.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Done is closed when the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(kind+" panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	fn()
}
