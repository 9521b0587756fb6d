package event

import (
	"context"
	"sync"
)

// Completion tracks an event until its handler chain, every event fired
// nested under it and every outstanding hold have finished. It resolves
// exactly once.
type Completion struct {
	mu        sync.Mutex
	pending   int
	completed bool
	parent    *Completion
	done      chan struct{}
	callbacks []func()
}

func newCompletion(parent *Completion) *Completion {
	c := &Completion{
		pending: 1,
		parent:  parent,
		done:    make(chan struct{}),
	}
	if parent != nil && !parent.add() {
		// parent already resolved, track this one on its own
		c.parent = nil
	}
	return c
}

// add increments the pending counter. It reports false if the completion
// has already resolved.
func (c *Completion) add() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed {
		return false
	}
	c.pending++
	return true
}

func (c *Completion) release() {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return
	}
	c.pending--
	if c.pending > 0 {
		c.mu.Unlock()
		return
	}
	c.completed = true
	callbacks := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	if c.parent != nil {
		c.parent.release()
	}
}

// hold returns a release function that may be called at most once.
func (c *Completion) hold() func() {
	if !c.add() {
		return func() {}
	}
	var once sync.Once
	return func() { once.Do(c.release) }
}

// OnComplete registers fn to run when the completion resolves. If it has
// already resolved fn runs immediately on the calling goroutine.
func (c *Completion) OnComplete(fn func()) {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		fn()
		return
	}
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

// Done returns a channel closed once the completion resolved.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// IsDone reports whether the completion resolved.
func (c *Completion) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the completion resolved or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
