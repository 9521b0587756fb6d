package hello

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/amoylab/webconsole/internal/console/auth"
	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/i18n"
	"github.com/amoylab/webconsole/internal/console/kvstore"
	"github.com/amoylab/webconsole/internal/console/session"
	"github.com/amoylab/webconsole/internal/console/widget"
)

type frame struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type link struct {
	mu     sync.Mutex
	frames []frame
}

func (l *link) Send(_ context.Context, data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
	return nil
}

func (l *link) Close() error { return nil }

func (l *link) sent() []frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]frame(nil), l.frames...)
}

// recordingStore remembers the keys written.
type recordingStore struct {
	kvstore.Store
	mu   sync.Mutex
	keys []string
}

func (s *recordingStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return s.Store.Put(ctx, key, value)
}

func (s *recordingStore) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func setup(t *testing.T) (*event.Bus, *recordingStore, *session.Connection, *link) {
	t.Helper()
	w, err := New()
	require.NoError(t, err)
	tr := i18n.NewI18n(language.English, language.German)
	require.NoError(t, tr.LoadFS(w.Translations(), "."))

	bus := event.NewBus(zap.NewNop())
	store := &recordingStore{Store: kvstore.NewMemoryStore(zap.NewNop())}
	t.Cleanup(widget.NewAdapter(zap.NewNop(), bus, store, tr, "/console", w).Register())

	user := session.NewUserSession("browser")
	user.SetPrincipal(auth.Principal{Name: "alice"})
	conn, _ := session.NewRegistry(zap.NewNop()).LookupOrCreate("", "console", user, time.Minute)
	t.Cleanup(conn.Discard)
	l := &link{}
	require.NoError(t, conn.SetUpstreamLink(l))
	return bus, store, conn, l
}

func fire(t *testing.T, bus *event.Bus, conn *session.Connection, ev event.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Fire(ctx, conn, ev).Wait(ctx))
}

func TestHelloWorld_AddWidget(t *testing.T) {
	bus, store, conn, l := setup(t)

	fire(t, bus, conn, &events.AddWidgetRequest{Type: Type, Modes: events.RenderModes{events.Preview}})
	require.Eventually(t, func() bool { return len(l.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	frames := l.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "renderWidget", frames[0].Method)

	var id, mode, html string
	require.NoError(t, json.Unmarshal(frames[0].Params[0], &id))
	require.NoError(t, json.Unmarshal(frames[0].Params[1], &mode))
	require.NoError(t, json.Unmarshal(frames[0].Params[3], &html))
	assert.Equal(t, "Preview", mode)
	assert.NotEmpty(t, html)
	assert.Contains(t, html, "Hello World")
	assert.Contains(t, html, "World!")

	assert.Equal(t, []string{"/alice/HelloWorld/" + id}, store.written())
}

func TestHelloWorld_ToggleWorld(t *testing.T) {
	bus, store, conn, l := setup(t)
	conn.User().SetLocale(language.German)

	fire(t, bus, conn, &events.AddWidgetRequest{Type: Type, Modes: events.RenderModes{events.View}})
	require.Eventually(t, func() bool { return len(l.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	var id, html string
	require.NoError(t, json.Unmarshal(l.sent()[0].Params[0], &id))
	require.NoError(t, json.Unmarshal(l.sent()[0].Params[3], &html))
	assert.Contains(t, html, "Hallo Welt")
	assert.Contains(t, html, "Welt umschalten")

	fire(t, bus, conn, &events.NotifyWidgetModel{ID: id, Method: MethodToggleWorld})
	require.Eventually(t, func() bool { return len(l.sent()) == 2 }, 2*time.Second, 5*time.Millisecond)
	f := l.sent()[1]
	assert.Equal(t, "notifyWidgetView", f.Method)
	assert.JSONEq(t, `["HelloWorld","`+id+`","setWorldVisible",false]`, string(mustJSON(t, f.Params)))

	raw, err := store.Get(context.Background(), kvstore.Path("alice", Type, id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id+`","type":"HelloWorld","state":{"world_visible":false}}`, raw)
}

func TestHelloWorld_UnknownMethod(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	_, err = w.Notify(context.Background(), nil, &widget.Model{}, "explode", nil)
	assert.ErrorIs(t, err, widget.ErrUnknownMethod)
}

func TestHelloWorld_Resources(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	for _, name := range []string{"hello.css", "hello.js"} {
		_, err := w.Resources().Open(name)
		assert.NoError(t, err, name)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
