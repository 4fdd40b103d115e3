// Package dispatch provides owner-affinity execution and deferred timers.
//
// Go has no thread identity, so ownership is carried in the context: work
// executed by a LoopDispatcher receives a context marked as owner, and any
// nested call that passes that context along runs inline instead of being
// queued behind itself.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrDispatcherStopped is returned when work is submitted to a stopped loop.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher runs work on the goroutine that owns UI-bound objects.
type Dispatcher interface {
	// IsOwner reports whether ctx originates from the owning goroutine.
	IsOwner(ctx context.Context) bool

	// Run executes fn on the owner and waits for it to return. If ctx ends
	// before fn starts, fn never runs and ctx.Err() is returned; once fn
	// has started, Run waits for it regardless of ctx.
	Run(ctx context.Context, fn func(ctx context.Context)) error
}

type ownerKey struct{ d *LoopDispatcher }

// InlineDispatcher treats every caller as owner.
type InlineDispatcher struct{}

// IsOwner implements Dispatcher.
func (InlineDispatcher) IsOwner(context.Context) bool { return true }

// Run implements Dispatcher.
func (InlineDispatcher) Run(ctx context.Context, fn func(ctx context.Context)) error {
	fn(ctx)
	return nil
}

const (
	taskQueued int32 = iota
	taskRunning
	taskAbandoned
)

type task struct {
	ctx   context.Context
	fn    func(ctx context.Context)
	done  chan struct{}
	state atomic.Int32
}

// LoopDispatcher serializes work onto a single goroutine started by Start.
type LoopDispatcher struct {
	tasks chan *task

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoopDispatcher creates a dispatcher with the given queue depth.
func NewLoopDispatcher(queue int) *LoopDispatcher {
	if queue <= 0 {
		queue = 64
	}
	return &LoopDispatcher{
		tasks:  make(chan *task, queue),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the owner loop until ctx is cancelled or Stop is called.
func (d *LoopDispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.doneCh)
		for {
			select {
			case <-ctx.Done():
				d.markStopped()
				return
			case <-d.stopCh:
				return
			case t := <-d.tasks:
				// Callers that gave up before pickup never see fn run.
				if t.state.CompareAndSwap(taskQueued, taskRunning) {
					t.fn(context.WithValue(t.ctx, ownerKey{d}, true))
				}
				close(t.done)
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight task.
func (d *LoopDispatcher) Stop() {
	if d.markStopped() {
		close(d.stopCh)
	}
	<-d.doneCh
}

func (d *LoopDispatcher) markStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.stopped = true
	return true
}

// IsOwner implements Dispatcher.
func (d *LoopDispatcher) IsOwner(ctx context.Context) bool {
	v, _ := ctx.Value(ownerKey{d}).(bool)
	return v
}

// Run implements Dispatcher.
func (d *LoopDispatcher) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if d.IsOwner(ctx) {
		fn(ctx)
		return nil
	}

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return ErrDispatcherStopped
	}

	t := &task{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case d.tasks <- t:
	case <-d.stopCh:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-d.doneCh:
		if t.state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ErrDispatcherStopped
		}
		<-t.done
		return nil
	case <-ctx.Done():
		if t.state.CompareAndSwap(taskQueued, taskAbandoned) {
			return ctx.Err()
		}
		// Already running on the owner; its outcome must be observed.
		<-t.done
		return nil
	}
}
