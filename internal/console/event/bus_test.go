package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	kind Kind
	seen []string
}

func (e *testEvent) Kind() Kind { return e.kind }

func newTestBus(t *testing.T) (*Bus, *Pipeline) {
	t.Helper()
	p := NewPipeline(zap.NewNop())
	t.Cleanup(p.Close)
	return NewBus(zap.NewNop()), p
}

func waitDone(t *testing.T, c *Completion) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestBus_PriorityOrder(t *testing.T) {
	bus, p := newTestBus(t)
	record := func(name string) Handler {
		return func(_ context.Context, call *Call) {
			ev := call.Event().(*testEvent)
			ev.seen = append(ev.seen, name)
		}
	}
	bus.On("a", record("low"), Priority(-10))
	bus.On("a", record("first"))
	bus.On("a", record("high"), Priority(10))
	bus.On("a", record("second"))

	ev := &testEvent{kind: "a"}
	waitDone(t, bus.Fire(context.Background(), p, ev))
	assert.Equal(t, []string{"high", "first", "second", "low"}, ev.seen)
}

func TestBus_ScopeAndStop(t *testing.T) {
	bus, p := newTestBus(t)
	bus.On("r", func(_ context.Context, call *Call) {
		call.Event().(*testEvent).seen = append(call.Event().(*testEvent).seen, "global")
	})
	bus.On("r", func(_ context.Context, call *Call) {
		call.Event().(*testEvent).seen = append(call.Event().(*testEvent).seen, "scoped")
		call.Stop()
	}, Scope("w"), Priority(1))
	bus.On("r", func(_ context.Context, call *Call) {
		call.Event().(*testEvent).seen = append(call.Event().(*testEvent).seen, "after-stop")
	}, Scope("w"))

	global := &testEvent{kind: "r"}
	waitDone(t, bus.Fire(context.Background(), p, global))
	assert.Equal(t, []string{"global"}, global.seen)

	scoped := &testEvent{kind: "r"}
	waitDone(t, bus.Fire(context.Background(), p, scoped, InScope("w")))
	assert.Equal(t, []string{"scoped"}, scoped.seen)
}

func TestBus_NestedCompletion(t *testing.T) {
	bus, p := newTestBus(t)
	var mu sync.Mutex
	var order []string
	add := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	bus.On("parent", func(_ context.Context, call *Call) {
		call.Fire(&testEvent{kind: "child"})
		call.Fire(&testEvent{kind: "child"})
	})
	bus.On("child", func(_ context.Context, call *Call) {
		release := call.Hold()
		go func() {
			time.Sleep(20 * time.Millisecond)
			add("child")
			release()
		}()
	})

	c := bus.Fire(context.Background(), p, &testEvent{kind: "parent"})
	c.OnComplete(func() { add("parent") })
	waitDone(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"child", "child", "parent"}, order)
}

func TestBus_SuspendResume(t *testing.T) {
	bus, p := newTestBus(t)
	var mu sync.Mutex
	var order []string
	add := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	bus.On("ready", func(_ context.Context, call *Call) {
		resume := call.Suspend()
		go func() {
			time.Sleep(30 * time.Millisecond)
			add("loaded")
			resume()
			resume()
		}()
	}, Priority(100))
	bus.On("ready", func(_ context.Context, call *Call) {
		add("ready")
	})
	bus.On("other", func(_ context.Context, call *Call) {
		add("other")
	})

	c := bus.Fire(context.Background(), p, &testEvent{kind: "ready"})
	other := bus.Fire(context.Background(), p, &testEvent{kind: "other"})
	waitDone(t, other)
	assert.False(t, c.IsDone())
	waitDone(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"other", "loaded", "ready"}, order)
}

func TestBus_PanicRecovered(t *testing.T) {
	bus, p := newTestBus(t)
	ran := false
	bus.On("x", func(context.Context, *Call) { panic("boom") }, Priority(1))
	bus.On("x", func(context.Context, *Call) { ran = true })

	waitDone(t, bus.Fire(context.Background(), p, &testEvent{kind: "x"}))
	assert.True(t, ran)
}

func TestBus_Unregister(t *testing.T) {
	bus, p := newTestBus(t)
	count := 0
	off := bus.On("x", func(context.Context, *Call) { count++ })
	waitDone(t, bus.Fire(context.Background(), p, &testEvent{kind: "x"}))
	off()
	waitDone(t, bus.Fire(context.Background(), p, &testEvent{kind: "x"}))
	assert.Equal(t, 1, count)
}

func TestBus_FireOnClosedPipeline(t *testing.T) {
	bus := NewBus(zap.NewNop())
	p := NewPipeline(zap.NewNop())
	p.Close()
	<-p.Done()

	c := bus.Fire(context.Background(), p, &testEvent{kind: "x"})
	assert.True(t, c.IsDone())
}

func TestCompletion_HoldAfterResolve(t *testing.T) {
	c := newCompletion(nil)
	c.release()
	assert.True(t, c.IsDone())

	release := c.hold()
	release()
	called := false
	c.OnComplete(func() { called = true })
	assert.True(t, called)
}
