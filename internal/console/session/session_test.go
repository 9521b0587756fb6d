package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
)

type recordingLink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   atomic.Bool
	closed atomic.Bool
	jitter bool
}

func (l *recordingLink) Send(_ context.Context, data []byte) error {
	if l.jitter {
		time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
	}
	if l.fail.Load() {
		return errors.New("broken pipe")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, data)
	return nil
}

func (l *recordingLink) Close() error {
	l.closed.Store(true)
	return nil
}

func (l *recordingLink) methods() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.frames))
	for _, f := range l.frames {
		var n struct {
			Method string `json:"method"`
		}
		_ = json.Unmarshal(f, &n)
		out = append(out, n.Method)
	}
	return out
}

func (l *recordingLink) firstParams() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.frames))
	for _, f := range l.frames {
		var n struct {
			Params []any `json:"params"`
		}
		_ = json.Unmarshal(f, &n)
		if len(n.Params) > 0 {
			out = append(out, n.Params[0].(string))
		}
	}
	return out
}

func (l *recordingLink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func TestRegistry_LookupAfterCreateAndDiscard(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, created := r.LookupOrCreate("", "console", nil, time.Minute)
	require.True(t, created)
	token := c.Token()
	assert.NotEmpty(t, token)

	got, err := r.Lookup(token)
	require.NoError(t, err)
	assert.Same(t, c, got)

	again, created := r.LookupOrCreate(token, "console", nil, time.Minute)
	assert.False(t, created)
	assert.Same(t, c, again)

	c.Discard()
	assert.True(t, c.IsStale())
	_, err = r.Lookup(token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	fresh, created := r.LookupOrCreate(token, "console", nil, time.Minute)
	assert.True(t, created)
	assert.NotSame(t, c, fresh)
}

func TestRegistry_ConcurrentLookupOrCreate(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	const n = 50
	results := make([]*Connection, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.LookupOrCreate("shared", "console", nil, time.Minute)
		}(i)
	}
	wg.Wait()
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ReplaceToken(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("old", "console", nil, time.Minute)
	other, _ := r.LookupOrCreate("taken", "console", nil, time.Minute)

	assert.ErrorIs(t, r.ReplaceToken(c, "taken"), ErrTokenInUse)

	require.NoError(t, r.ReplaceToken(c, "new"))
	assert.Equal(t, "new", c.Token())
	_, err := r.Lookup("old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	got, err := r.Lookup("new")
	require.NoError(t, err)
	assert.Same(t, c, got)

	other.Discard()
	assert.ErrorIs(t, r.ReplaceToken(other, "x"), ErrDiscarded)
}

func TestRegistry_AllForOwnerAndDiscardAll(t *testing.T) {
	var closed atomic.Int32
	r := NewRegistry(zap.NewNop(), WithDiscardHook(func(*Connection) *event.Completion {
		closed.Add(1)
		return nil
	}))
	a, _ := r.LookupOrCreate("a", "one", nil, time.Minute)
	b, _ := r.LookupOrCreate("b", "one", nil, time.Minute)
	r.LookupOrCreate("c", "two", nil, time.Minute)

	assert.ElementsMatch(t, []*Connection{a, b}, r.AllForOwner("one"))
	assert.Len(t, r.All(), 3)

	assert.Equal(t, 2, r.DiscardAll("one"))
	assert.Equal(t, int32(2), closed.Load())
	assert.Empty(t, r.AllForOwner("one"))
	assert.Len(t, r.AllForOwner("two"), 1)
}

func TestConnection_ExpiresWithoutRefresh(t *testing.T) {
	var closed atomic.Int32
	r := NewRegistry(zap.NewNop(), WithDiscardHook(func(*Connection) *event.Completion {
		closed.Add(1)
		return nil
	}))
	c, _ := r.LookupOrCreate("abc", "console", nil, 1000*time.Millisecond)

	time.Sleep(1001 * time.Millisecond)
	_, err := r.Lookup("abc")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, c.IsStale())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), closed.Load())
}

func TestConnection_RefreshKeepsAlive(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("", "console", nil, 150*time.Millisecond)
	for i := 0; i < 4; i++ {
		time.Sleep(60 * time.Millisecond)
		c.Refresh()
	}
	assert.False(t, c.IsStale())

	c.SetTimeout(30 * time.Millisecond)
	assert.Eventually(t, c.IsStale, time.Second, 10*time.Millisecond)
}

func TestConnection_LinkedConnectionDoesNotExpire(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("", "console", nil, 40*time.Millisecond)
	link := &recordingLink{}
	require.NoError(t, c.SetUpstreamLink(link))

	time.Sleep(120 * time.Millisecond)
	assert.False(t, c.IsStale())

	c.Disconnected(link)
	assert.Nil(t, c.UpstreamLink())
	assert.Eventually(t, c.IsStale, time.Second, 10*time.Millisecond)
}

func TestConnection_RespondOrdering(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("", "console", nil, time.Minute)
	link := &recordingLink{jitter: true}
	require.NoError(t, c.SetUpstreamLink(link))

	const n = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		next int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				if next == n {
					mu.Unlock()
					return
				}
				tag := strconv.Itoa(next)
				next++
				err := c.Respond(events.DisplayNotification{HTML: tag})
				mu.Unlock()
				assert.NoError(t, err)
				time.Sleep(time.Duration(rand.Intn(50)) * time.Microsecond)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return link.count() == n }, 5*time.Second, 10*time.Millisecond)
	got := link.firstParams()
	for i := 0; i < n; i++ {
		assert.Equal(t, strconv.Itoa(i), got[i])
	}
}

func TestConnection_QueueWhileDisconnectedThenFlush(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("", "console", nil, time.Minute)

	require.NoError(t, c.Respond(events.Configured{}))
	require.NoError(t, c.Respond(events.Reload{}))
	assert.Equal(t, 2, c.Pending())

	link := &recordingLink{}
	require.NoError(t, c.SetUpstreamLink(link))
	require.Eventually(t, func() bool { return link.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"configured", "reload"}, link.methods())
	assert.Equal(t, 0, c.Pending())
}

func TestConnection_FailedWriteKeepsFrame(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("", "console", nil, time.Minute)
	broken := &recordingLink{}
	broken.fail.Store(true)
	require.NoError(t, c.SetUpstreamLink(broken))

	require.NoError(t, c.Respond(events.DeleteWidget{ID: "x"}))
	require.Eventually(t, func() bool { return !c.Connected() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Pending())

	link := &recordingLink{}
	require.NoError(t, c.SetUpstreamLink(link))
	assert.True(t, broken.closed.Load())
	require.Eventually(t, func() bool { return link.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"deleteWidget"}, link.methods())
}

func TestConnection_PendingLimitDropsOldest(t *testing.T) {
	r := NewRegistry(zap.NewNop(), WithMaxPending(3))
	c, _ := r.LookupOrCreate("", "console", nil, time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Respond(events.DisplayNotification{HTML: strconv.Itoa(i)}))
	}
	assert.Equal(t, 3, c.Pending())

	link := &recordingLink{}
	require.NoError(t, c.SetUpstreamLink(link))
	require.Eventually(t, func() bool { return link.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"2", "3", "4"}, link.firstParams())
}

func TestConnection_RespondAfterDiscard(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c, _ := r.LookupOrCreate("", "console", nil, time.Minute)
	link := &recordingLink{}
	require.NoError(t, c.SetUpstreamLink(link))
	c.Discard()

	assert.True(t, link.closed.Load())
	assert.ErrorIs(t, c.Respond(events.Configured{}), ErrDiscarded)
	assert.ErrorIs(t, c.SetUpstreamLink(&recordingLink{}), ErrDiscarded)
}

func TestConnection_DiscardFiresHookAndReleasesState(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	var seen atomic.Bool
	bus.On(events.KindClosed, func(_ context.Context, call *event.Call) {
		c := From(call.Channel())
		_, ok := c.Value("k")
		seen.Store(ok)
	})
	r := NewRegistry(zap.NewNop(), WithDiscardHook(func(c *Connection) *event.Completion {
		return bus.Fire(context.Background(), c, events.Closed{})
	}))
	c, _ := r.LookupOrCreate("", "console", nil, time.Minute)
	c.SetValue("k", 1)
	c.Discard()
	c.Discard()

	select {
	case <-c.Pipeline().Done():
	case <-time.After(time.Second):
		t.Fatal("pipeline was not closed")
	}
	assert.True(t, seen.Load())
	_, ok := c.Value("k")
	assert.False(t, ok)
}

func TestUserSessions(t *testing.T) {
	users := NewUserSessions(zap.NewNop())
	u, created := users.GetOrCreate("")
	require.True(t, created)
	same, created := users.GetOrCreate(u.ID())
	assert.False(t, created)
	assert.Same(t, u, same)

	v := u.AttrOrSet("cache", func() any { return 1 })
	assert.Equal(t, 1, v)
	v = u.AttrOrSet("cache", func() any { return 2 })
	assert.Equal(t, 1, v)

	idle, _ := users.GetOrCreate("idle")
	assert.Equal(t, 0, users.Sweep(time.Hour, nil))
	assert.Equal(t, 0, users.Sweep(0, map[*UserSession]bool{u: true, idle: true}))
	assert.Equal(t, 1, users.Sweep(0, map[*UserSession]bool{u: true}))
	_, ok := users.Get("idle")
	assert.False(t, ok)
	assert.Equal(t, 1, users.Len())
}

func TestSweeper(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	users := NewUserSessions(zap.NewNop())
	u, _ := users.GetOrCreate("u")
	users.GetOrCreate("orphan")
	c, _ := r.LookupOrCreate("", "console", u, time.Minute)

	s := NewSweeper(r, users, zap.NewNop())
	s.SetUserIdle(time.Nanosecond)
	time.Sleep(time.Millisecond)
	conns, removed := s.SweepNow()
	assert.Equal(t, 0, conns)
	assert.Equal(t, 1, removed)
	assert.False(t, c.IsStale())

	s.SetInterval(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	assert.True(t, s.IsRunning())
	s.Stop()
	assert.False(t, s.IsRunning())
}
