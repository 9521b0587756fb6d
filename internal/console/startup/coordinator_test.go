package startup

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/session"
)

type link struct {
	mu      sync.Mutex
	methods []string
}

func (l *link) Send(_ context.Context, data []byte) error {
	var n struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.methods = append(l.methods, n.Method)
	return nil
}

func (l *link) Close() error { return nil }

func (l *link) sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.methods...)
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func setup(t *testing.T) (*event.Bus, *Coordinator, *session.Connection, *link) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	registry := session.NewRegistry(zap.NewNop())
	coord := New(zap.NewNop(), bus, nil)
	t.Cleanup(coord.Register())

	conn, _ := registry.LookupOrCreate("", "console", nil, time.Minute)
	t.Cleanup(conn.Discard)
	l := &link{}
	require.NoError(t, conn.SetUpstreamLink(l))
	return bus, coord, conn, l
}

func randomDelay() time.Duration {
	return time.Duration(rand.Intn(15)) * time.Millisecond
}

// every ready handler holds, and fires a nested event that also holds;
// prepared must not start before all of them finished.
func TestCoordinator_PhasesWaitForFanOut(t *testing.T) {
	bus, coord, conn, l := setup(t)
	j := &journal{}

	for i := 0; i < 5; i++ {
		bus.On(events.KindConsoleReady, func(_ context.Context, call *event.Call) {
			release := call.Hold()
			go func() {
				time.Sleep(randomDelay())
				j.add("ready-done")
				release()
			}()
			call.Fire(&events.SetTheme{ID: "nested"})
		})
		bus.On(events.KindConsolePrepared, func(_ context.Context, call *event.Call) {
			j.add("prepared-start")
			release := call.Hold()
			go func() {
				time.Sleep(randomDelay())
				j.add("prepared-done")
				release()
			}()
		})
	}
	bus.On(events.KindSetTheme, func(_ context.Context, call *event.Call) {
		release := call.Hold()
		go func() {
			time.Sleep(randomDelay())
			j.add("ready-done")
			release()
		}()
	})
	bus.On(events.KindConsoleConfigured, func(_ context.Context, call *event.Call) {
		j.add("configured")
	})

	bus.Fire(context.Background(), conn, events.ConsoleReady{})

	require.Eventually(t, func() bool {
		return coord.Phase(conn) == Configured && len(l.sent()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	entries := j.snapshot()
	require.Len(t, entries, 21)
	for i, e := range entries {
		switch {
		case i < 10:
			assert.Equal(t, "ready-done", e, "entry %d", i)
		case i < 20:
			assert.Contains(t, []string{"prepared-start", "prepared-done"}, e, "entry %d", i)
		default:
			assert.Equal(t, "configured", e)
		}
	}
	assert.Equal(t, []string{"configured"}, l.sent())
}

func TestCoordinator_RepeatedReadyRestartsHandshake(t *testing.T) {
	bus, coord, conn, l := setup(t)
	var mu sync.Mutex
	prepared := map[uint64]int{}
	bus.On(events.KindConsolePrepared, func(_ context.Context, call *event.Call) {
		mu.Lock()
		defer mu.Unlock()
		prepared[call.Event().(events.ConsolePrepared).Generation]++
	})

	ctx := context.Background()
	require.NoError(t, waitFor(bus.Fire(ctx, conn, events.ConsoleReady{})))
	require.Eventually(t, func() bool { return len(l.sent()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, waitFor(bus.Fire(ctx, conn, events.ConsoleReady{})))
	require.Eventually(t, func() bool { return len(l.sent()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Configured, coord.Phase(conn))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[uint64]int{1: 1, 2: 1}, prepared)
}

func TestCoordinator_SupersededGenerationIgnored(t *testing.T) {
	bus, coord, conn, l := setup(t)
	gate := make(chan struct{})
	first := true
	bus.On(events.KindConsoleReady, func(_ context.Context, call *event.Call) {
		if !first {
			return
		}
		first = false
		release := call.Hold()
		go func() {
			<-gate
			release()
		}()
	})

	ctx := context.Background()
	bus.Fire(ctx, conn, events.ConsoleReady{})
	second := bus.Fire(ctx, conn, events.ConsoleReady{})
	require.NoError(t, waitFor(second))
	require.Eventually(t, func() bool { return len(l.sent()) == 1 }, time.Second, 5*time.Millisecond)

	close(gate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"configured"}, l.sent())
	assert.Equal(t, Configured, coord.Phase(conn))
}

func TestCoordinator_IgnoresBareChannels(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	t.Cleanup(New(zap.NewNop(), bus, nil).Register())
	p := event.NewPipeline(zap.NewNop())
	defer p.Close()
	assert.NoError(t, waitFor(bus.Fire(context.Background(), p, events.ConsoleReady{})))
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "fanning-out", FanningOut.String())
	assert.Equal(t, "prepared", Prepared.String())
	assert.Equal(t, "configured", Configured.String())
}

func waitFor(c *event.Completion) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Wait(ctx)
}
