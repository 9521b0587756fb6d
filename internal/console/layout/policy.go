package layout

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/kvstore"
	"github.com/amoylab/webconsole/internal/console/session"
)

const (
	// ReadyPriority runs the restore ahead of the widget ready handlers.
	ReadyPriority = 1 << 16
	// FallbackPriority runs after every widget had the chance to claim a
	// render request.
	FallbackPriority = -1000

	DefaultQueryTimeout = 5 * time.Second

	stateKey = "layout.policy"
)

// Record is the persisted arrangement of a user's widgets.
type Record struct {
	PreviewIDs []string        `json:"preview_ids"`
	TabIDs     []string        `json:"tab_ids"`
	ExtraInfo  json.RawMessage `json:"extra_info,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Contains reports whether id is placed anywhere.
func (r *Record) Contains(id string) bool {
	return slices.Contains(r.PreviewIDs, id) || slices.Contains(r.TabIDs, id)
}

// Remove drops id from both lists and reports whether it was present.
func (r *Record) Remove(id string) bool {
	if !r.Contains(id) {
		return false
	}
	match := func(s string) bool { return s == id }
	r.PreviewIDs = slices.DeleteFunc(r.PreviewIDs, match)
	r.TabIDs = slices.DeleteFunc(r.TabIDs, match)
	return true
}

func (r Record) clone() Record {
	return Record{
		PreviewIDs: slices.Clone(r.PreviewIDs),
		TabIDs:     slices.Clone(r.TabIDs),
		ExtraInfo:  slices.Clone(r.ExtraInfo),
		UpdatedAt:  r.UpdatedAt,
	}
}

// state is the layout of one Connection. The record is only touched on
// the Connection's pipeline; writes are ordered by seq.
type state struct {
	record Record
	seq    uint64

	mu      sync.Mutex
	written uint64
}

// Policy restores the layout of a Connection at startup, replays the
// rendering of its widgets and persists changes reported by the browser.
type Policy struct {
	logger    *zap.Logger
	bus       *event.Bus
	store     kvstore.Store
	timeout   time.Duration
	component string
}

// New creates a layout policy persisting to store.
func New(logger *zap.Logger, bus *event.Bus, store kvstore.Store, queryTimeout time.Duration) *Policy {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	p := &Policy{
		logger:  logger.Named("layout"),
		bus:     bus,
		store:   store,
		timeout: queryTimeout,
	}
	p.component = kvstore.ComponentName(p)
	return p
}

// Register installs the policy's handlers and returns a function removing
// them.
func (p *Policy) Register() func() {
	offs := []func(){
		p.bus.On(events.KindConsoleReady, p.onReady,
			event.Priority(ReadyPriority), event.Named("layout.ready")),
		p.bus.On(events.KindConsolePrepared, p.onPrepared, event.Named("layout.prepared")),
		p.bus.On(events.KindRenderWidget, p.onUnclaimedRender,
			event.Priority(FallbackPriority), event.Named("layout.render-fallback")),
		p.bus.On(events.KindLayoutChanged, p.onLayoutChanged, event.Named("layout.changed")),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Path returns the key the layout of conn's user is stored under.
func (p *Policy) Path(conn *session.Connection) string {
	return kvstore.Path(conn.Principal().Name, p.component)
}

// Record returns a copy of the layout currently associated with conn.
func (p *Policy) Record(conn *session.Connection) Record {
	if st := stateOf(conn); st != nil {
		return st.record.clone()
	}
	return Record{}
}

func stateOf(conn *session.Connection) *state {
	if v, ok := conn.Value(stateKey); ok {
		return v.(*state)
	}
	return nil
}

func (p *Policy) onReady(ctx context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	resume := call.Suspend()
	path := p.Path(conn)
	go func() {
		defer resume()
		conn.SetValue(stateKey, &state{record: p.load(ctx, path)})
	}()
}

// load reads the stored layout. Every failure yields an empty record.
func (p *Policy) load(ctx context.Context, path string) Record {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.store.Get(ctx, path)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			p.logger.Warn("failed to load layout, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return Record{}
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		p.logger.Warn("discarding unreadable layout",
			zap.String("path", path), zap.Error(err))
		return Record{}
	}
	return rec
}

func (p *Policy) onPrepared(_ context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	st := stateOf(conn)
	if st == nil {
		st = &state{}
		conn.SetValue(stateKey, st)
	}
	rec := st.record.clone()
	if err := conn.Respond(events.LastLayout{
		PreviewIDs: rec.PreviewIDs,
		TabIDs:     rec.TabIDs,
		ExtraInfo:  rec.ExtraInfo,
	}); err != nil {
		return
	}
	for _, id := range rec.PreviewIDs {
		call.Fire(&events.RenderWidgetRequest{
			ID:    id,
			Modes: events.RenderModes{events.Preview, events.Foreground},
		})
	}
	for _, id := range rec.TabIDs {
		call.Fire(&events.RenderWidgetRequest{
			ID:    id,
			Modes: events.RenderModes{events.View},
		})
	}
}

func (p *Policy) onUnclaimedRender(ctx context.Context, call *event.Call) {
	req := call.Event().(*events.RenderWidgetRequest)
	if req.Handled() {
		return
	}
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	p.logger.Debug("no widget claimed render request, deleting",
		zap.String("id", req.ID))
	_ = conn.Respond(events.DeleteWidget{ID: req.ID})

	st := stateOf(conn)
	if st != nil && st.record.Remove(req.ID) {
		st.record.UpdatedAt = time.Now()
		p.persist(ctx, call, conn, st)
	}
}

func (p *Policy) onLayoutChanged(ctx context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	ev := call.Event().(*events.LayoutChanged)
	st := stateOf(conn)
	if st == nil {
		st = &state{}
		conn.SetValue(stateKey, st)
	}
	st.record = Record{
		PreviewIDs: slices.Clone(ev.PreviewIDs),
		TabIDs:     slices.Clone(ev.TabIDs),
		ExtraInfo:  slices.Clone(ev.ExtraInfo),
		UpdatedAt:  time.Now(),
	}
	p.persist(ctx, call, conn, st)
}

// persist writes a snapshot of the record in the background. A write that
// lost the race against a later one is skipped.
func (p *Policy) persist(ctx context.Context, call *event.Call, conn *session.Connection, st *state) {
	st.seq++
	seq := st.seq
	data, err := json.Marshal(st.record)
	if err != nil {
		p.logger.Error("failed to encode layout", zap.Error(err))
		return
	}
	path := p.Path(conn)
	release := call.Hold()
	go func() {
		defer release()
		st.mu.Lock()
		defer st.mu.Unlock()
		if seq <= st.written {
			return
		}
		st.written = seq

		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.store.Put(ctx, path, string(data)); err != nil {
			p.logger.Warn("failed to persist layout",
				zap.String("path", path), zap.Error(err))
		}
	}()
}
