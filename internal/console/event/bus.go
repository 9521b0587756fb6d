package event

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type (
	// Kind identifies the concrete type of an event.
	Kind string

	// Event is implemented by every event type.
	Event interface {
		Kind() Kind
	}

	// Channel is the logical destination of an event. Handlers see the
	// channel an event was fired on, which is how components keep the
	// state of different browser tabs apart.
	Channel interface {
		Pipeline() *Pipeline
	}

	// Handler processes one event. It runs on the pipeline of the channel
	// the event was fired on.
	Handler func(ctx context.Context, call *Call)
)

type registration struct {
	kind     Kind
	scope    string
	priority int
	seq      uint64
	name     string
	handler  Handler
}

// Option configures a handler registration.
type Option func(*registration)

// Priority orders handlers of the same kind, higher values run first.
func Priority(p int) Option {
	return func(r *registration) { r.priority = p }
}

// Scope restricts the handler to events fired in the given scope.
func Scope(scope string) Option {
	return func(r *registration) { r.scope = scope }
}

// Named sets the name used when logging handler failures.
func Named(name string) Option {
	return func(r *registration) { r.name = name }
}

// FireOption configures a single firing.
type FireOption func(*dispatch)

// InScope fires the event only to handlers registered for scope.
func InScope(scope string) FireOption {
	return func(d *dispatch) { d.scope = scope }
}

// Bus is the registration table mapping event kinds to handlers.
type Bus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	seq    uint64
	regs   map[Kind][]*registration
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("event.bus"),
		regs:   make(map[Kind][]*registration),
	}
}

// On registers a handler for kind and returns a function that removes it.
func (b *Bus) On(kind Kind, h Handler, opts ...Option) func() {
	reg := &registration{kind: kind, handler: h, name: string(kind)}
	for _, opt := range opts {
		opt(reg)
	}

	b.mu.Lock()
	b.seq++
	reg.seq = b.seq
	list := append(b.regs[kind], reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.regs[kind] = list
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.regs[kind]
		for i, r := range list {
			if r == reg {
				b.regs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) handlers(kind Kind, scope string) []*registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*registration
	for _, r := range b.regs[kind] {
		if r.scope == scope {
			out = append(out, r)
		}
	}
	return out
}

// Fire enqueues ev on the pipeline of ch. The returned completion resolves
// once all handlers ran and everything they fired or held has finished.
func (b *Bus) Fire(ctx context.Context, ch Channel, ev Event, opts ...FireOption) *Completion {
	return b.fire(ctx, ch, ev, nil, opts)
}

func (b *Bus) fire(ctx context.Context, ch Channel, ev Event, parent *Completion, opts []FireOption) *Completion {
	d := &dispatch{
		bus:        b,
		ctx:        context.WithoutCancel(ctx),
		channel:    ch,
		event:      ev,
		completion: newCompletion(parent),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = b.handlers(ev.Kind(), d.scope)

	if !ch.Pipeline().Submit(d.run) {
		b.logger.Debug("pipeline closed, event dropped", zap.String("kind", string(ev.Kind())))
		d.completion.release()
	}
	return d.completion
}

// dispatch is one firing of an event. Its fields are only touched on the
// pipeline goroutine.
type dispatch struct {
	bus        *Bus
	ctx        context.Context
	channel    Channel
	event      Event
	scope      string
	handlers   []*registration
	next       int
	stopped    bool
	suspended  bool
	completion *Completion
}

func (d *dispatch) run() {
	for d.next < len(d.handlers) && !d.stopped {
		reg := d.handlers[d.next]
		d.next++
		d.invoke(reg)
		if d.suspended {
			return
		}
	}
	d.completion.release()
}

func (d *dispatch) invoke(reg *registration) {
	defer func() {
		if err := recover(); err != nil {
			d.bus.logger.Error("panic recovered in event handler",
				zap.String("handler", reg.name),
				zap.String("kind", string(d.event.Kind())),
				zap.Any("error", err))
		}
	}()
	reg.handler(d.ctx, &Call{d: d})
}

// Call gives a handler access to the event being handled and to the
// operations that control its propagation and completion.
type Call struct {
	d *dispatch
}

// Event returns the event being handled.
func (c *Call) Event() Event {
	return c.d.event
}

// Channel returns the channel the event was fired on.
func (c *Call) Channel() Channel {
	return c.d.channel
}

// Scope returns the scope the event was fired in.
func (c *Call) Scope() string {
	return c.d.scope
}

// Stop prevents lower priority handlers from seeing the event.
func (c *Call) Stop() {
	c.d.stopped = true
}

// Suspend pauses the handler chain after the current handler returns. The
// pipeline keeps processing other events meanwhile. Calling the returned
// function continues the chain with the next handler; it may be called
// from any goroutine, at most once.
func (c *Call) Suspend() func() {
	d := c.d
	d.suspended = true
	var once sync.Once
	return func() {
		once.Do(func() {
			ok := d.channel.Pipeline().Submit(func() {
				d.suspended = false
				d.run()
			})
			if !ok {
				d.completion.release()
			}
		})
	}
}

// Hold keeps the event incomplete until the returned function is called.
func (c *Call) Hold() func() {
	return c.d.completion.hold()
}

// Fire fires ev on the same channel, nested under the current event.
func (c *Call) Fire(ev Event, opts ...FireOption) *Completion {
	return c.d.bus.fire(c.d.ctx, c.d.channel, ev, c.d.completion, opts)
}

// OnComplete runs fn once the current event is complete.
func (c *Call) OnComplete(fn func()) {
	c.d.completion.OnComplete(fn)
}

// Completion returns the completion of the current event.
func (c *Call) Completion() *Completion {
	return c.d.completion
}
