package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/i18n"
	"github.com/amoylab/webconsole/internal/console/kvstore"
	"github.com/amoylab/webconsole/internal/console/resource"
	"github.com/amoylab/webconsole/internal/console/session"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	// DefaultMaxAge is the cache lifetime of widget resources.
	DefaultMaxAge = time.Hour
)

// cache holds the models a Connection has loaded. Models are only read or
// mutated under mu. Operations that write the store run one at a time on
// work, in the order their events arrived.
type cache struct {
	mu     sync.Mutex
	models map[string]*Model
	modes  map[string]events.RenderMode
	work   *event.Pipeline
}

// Adapter connects a Widget to the bus. It announces the type, creates,
// loads, renders and persists instances, and serves the widget's
// resources.
type Adapter struct {
	logger   *zap.Logger
	bus      *event.Bus
	store    kvstore.Store
	tr       *i18n.I18n
	prefix   string
	widget   Widget
	desc     Descriptor
	timeout  time.Duration
	cacheKey string
}

// NewAdapter wraps w. tr may be nil.
func NewAdapter(logger *zap.Logger, bus *event.Bus, store kvstore.Store, tr *i18n.I18n, prefix string, w Widget) *Adapter {
	desc := w.Descriptor()
	if len(desc.Modes) == 0 {
		desc.Modes = events.RenderModes{events.Preview, events.View}
	}
	return &Adapter{
		logger:   logger.Named("widget." + desc.Type),
		bus:      bus,
		store:    store,
		tr:       tr,
		prefix:   prefix,
		widget:   w,
		desc:     desc,
		timeout:  DefaultStoreTimeout,
		cacheKey: "widget.cache." + desc.Type,
	}
}

// Type returns the widget type.
func (a *Adapter) Type() string {
	return a.desc.Type
}

// Register installs the adapter's handlers and returns a function removing
// them.
func (a *Adapter) Register() func() {
	name := "widget." + a.desc.Type
	offs := []func(){
		a.bus.On(events.KindConsoleReady, a.onReady, event.Named(name+".ready")),
		a.bus.On(events.KindAddWidget, a.onAdd, event.Named(name+".add")),
		a.bus.On(events.KindRenderWidget, a.onRender, event.Named(name+".render")),
		a.bus.On(events.KindDeleteWidget, a.onDelete, event.Named(name+".delete")),
		a.bus.On(events.KindNotifyWidgetModel, a.onNotify, event.Named(name+".notify")),
		a.bus.On(events.KindClosed, a.onClosed, event.Named(name+".closed")),
	}
	if rp, ok := a.widget.(ResourceProvider); ok {
		offs = append(offs, resource.NewFSProvider(a.desc.Type, resource.WidgetResource,
			rp.Resources(), DefaultMaxAge).Register(a.bus))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (a *Adapter) owns(id string) bool {
	return TypeOf(id) == a.desc.Type
}

func (a *Adapter) path(conn *session.Connection, id string) string {
	return kvstore.Path(conn.Principal().Name, a.desc.Type, id)
}

func (a *Adapter) cacheOf(conn *session.Connection) *cache {
	if v, ok := conn.Value(a.cacheKey); ok {
		return v.(*cache)
	}
	c := &cache{
		models: make(map[string]*Model),
		modes:  make(map[string]events.RenderMode),
		work:   event.NewPipeline(a.logger),
	}
	conn.SetValue(a.cacheKey, c)
	return c
}

func (a *Adapter) onReady(ctx context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	names := map[string]string{"": a.desc.Type}
	if a.tr != nil && a.desc.DisplayName != "" {
		names = a.tr.DisplayNames(a.desc.DisplayName)
	}
	css := make([]string, len(a.desc.CSS))
	for i, c := range a.desc.CSS {
		css[i] = resource.URI(a.prefix, resource.WidgetResource, a.desc.Type, c)
	}
	scripts := make([]events.ScriptResource, len(a.desc.Scripts))
	for i, s := range a.desc.Scripts {
		s.URI = resource.URI(a.prefix, resource.WidgetResource, a.desc.Type, s.URI)
		scripts[i] = s
	}
	if err := conn.Respond(events.AddWidgetType{
		Type:         a.desc.Type,
		DisplayNames: names,
		CSSURIs:      css,
		Scripts:      scripts,
		Instantiable: a.desc.Instantiable,
	}); err != nil {
		return
	}

	if hook, ok := a.widget.(ReadyHook); ok {
		if err := hook.OnReady(ctx, NewContext(conn, a.tr, a.prefix)); err != nil {
			a.logger.Warn("ready hook failed", zap.Error(err))
		}
	}
}

func (a *Adapter) onAdd(ctx context.Context, call *event.Call) {
	req := call.Event().(*events.AddWidgetRequest)
	if req.Type != a.desc.Type {
		return
	}
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	call.Stop()

	rc := NewContext(conn, a.tr, a.prefix)
	model := &Model{ID: NewID(a.desc.Type), Type: a.desc.Type, State: make(map[string]any)}
	if err := a.widget.Create(ctx, rc, model, req.Properties); err != nil {
		a.fail(conn, rc, "create", err)
		return
	}

	data, err := json.Marshal(model)
	if err != nil {
		a.fail(conn, rc, "create", err)
		return
	}

	c := a.cacheOf(conn)
	c.mu.Lock()
	c.models[model.ID] = model
	c.mu.Unlock()

	a.enqueue(call, c, func() {
		a.put(ctx, conn, model.ID, data)
	})
	a.render(ctx, conn, rc, model, req.Modes)
}

func (a *Adapter) onRender(ctx context.Context, call *event.Call) {
	req := call.Event().(*events.RenderWidgetRequest)
	if !a.owns(req.ID) {
		return
	}
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	rc := NewContext(conn, a.tr, a.prefix)

	c := a.cacheOf(conn)
	c.mu.Lock()
	model, ok := c.models[req.ID]
	c.mu.Unlock()
	if ok {
		a.render(ctx, conn, rc, model, req.Modes)
		req.MarkHandled()
		call.Stop()
		return
	}

	resume := call.Suspend()
	go func() {
		defer resume()
		model, err := a.load(ctx, conn, c, req.ID)
		switch {
		case errors.Is(err, ErrNoModel):
			return
		case errors.Is(err, ErrBadModel):
			a.logger.Warn("dropping unreadable widget", zap.String("id", req.ID), zap.Error(err))
			return
		case err != nil:
			// the instance exists, keep it in the layout
			req.MarkHandled()
			a.fail(conn, rc, "load", err)
			return
		}
		a.render(ctx, conn, rc, model, req.Modes)
		req.MarkHandled()
	}()
}

func (a *Adapter) onDelete(ctx context.Context, call *event.Call) {
	req := call.Event().(*events.DeleteWidgetRequest)
	if !a.owns(req.ID) {
		return
	}
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	call.Stop()

	rc := NewContext(conn, a.tr, a.prefix)
	c := a.cacheOf(conn)
	a.enqueue(call, c, func() {
		c.mu.Lock()
		model := c.models[req.ID]
		delete(c.models, req.ID)
		delete(c.modes, req.ID)
		c.mu.Unlock()

		if hook, ok := a.widget.(DeleteHook); ok && model != nil {
			hook.OnDelete(ctx, rc, model)
		}

		path := a.path(conn, req.ID)
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.store.Delete(ctx, path); err != nil {
			a.logger.Warn("failed to delete widget state", zap.String("path", path), zap.Error(err))
		}
	})
}

func (a *Adapter) onNotify(ctx context.Context, call *event.Call) {
	req := call.Event().(*events.NotifyWidgetModel)
	if !a.owns(req.ID) {
		return
	}
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	call.Stop()
	rc := NewContext(conn, a.tr, a.prefix)
	c := a.cacheOf(conn)

	a.enqueue(call, c, func() {
		model, err := a.load(ctx, conn, c, req.ID)
		if err != nil {
			a.logger.Warn("failed to load widget for notification", zap.String("id", req.ID), zap.Error(err))
			return
		}

		var (
			data      []byte
			markup    string
			renderErr error
		)
		c.mu.Lock()
		res, err := a.widget.Notify(ctx, rc, model, req.Method, req.Params)
		mode, ok := c.modes[model.ID]
		if !ok {
			mode = a.mode(nil)
		}
		if err == nil && res.Changed {
			data, err = json.Marshal(model)
		}
		if err == nil && res.Rerender {
			markup, renderErr = a.widget.Render(ctx, rc, model, mode)
		}
		c.mu.Unlock()
		if err != nil {
			a.fail(conn, rc, req.Method, err)
			return
		}

		if data != nil {
			a.put(ctx, conn, model.ID, data)
		}
		for _, v := range res.Views {
			_ = conn.Respond(events.NotifyWidgetView{
				Type:       a.desc.Type,
				ID:         model.ID,
				ViewMethod: v.Method,
				ViewParams: v.Params,
			})
		}
		if res.Rerender {
			if renderErr != nil {
				a.fail(conn, rc, "render", renderErr)
				return
			}
			_ = conn.Respond(events.UpdateWidget{ID: model.ID, Mode: mode, HTML: markup})
		}
	})
}

func (a *Adapter) onClosed(_ context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	if v, ok := conn.Value(a.cacheKey); ok {
		v.(*cache).work.Close()
	}
	conn.DeleteValue(a.cacheKey)
}

// load returns the cached model of id or reads it from the store.
func (a *Adapter) load(ctx context.Context, conn *session.Connection, c *cache, id string) (*Model, error) {
	c.mu.Lock()
	model, ok := c.models[id]
	c.mu.Unlock()
	if ok {
		return model, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	raw, err := a.store.Get(ctx, a.path(conn, id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrNoModel
	}
	if err != nil {
		return nil, err
	}
	model = &Model{}
	if err := json.Unmarshal([]byte(raw), model); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBadModel, id, err)
	}
	model.ID, model.Type = id, a.desc.Type

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.models[id]; ok {
		return cached, nil
	}
	c.models[id] = model
	return model, nil
}

// enqueue runs task on the Connection's work queue and keeps the event
// incomplete until it has run.
func (a *Adapter) enqueue(call *event.Call, c *cache, task func()) {
	release := call.Hold()
	if !c.work.Submit(func() {
		defer release()
		task()
	}) {
		release()
	}
}

// put stores a model snapshot taken under the cache lock.
func (a *Adapter) put(ctx context.Context, conn *session.Connection, id string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.store.Put(ctx, a.path(conn, id), string(data)); err != nil {
		a.logger.Warn("failed to persist widget", zap.String("id", id), zap.Error(err))
	}
}

// mode picks the first requested display mode the widget supports.
func (a *Adapter) mode(requested events.RenderModes) events.RenderMode {
	supported := a.desc.Modes.Display()
	for _, m := range requested.Display() {
		if supported.Has(m) {
			return m
		}
	}
	if len(supported) > 0 {
		return supported[0]
	}
	return events.Preview
}

func (a *Adapter) render(ctx context.Context, conn *session.Connection, rc *Context, model *Model, requested events.RenderModes) {
	mode := a.mode(requested)
	c := a.cacheOf(conn)
	c.mu.Lock()
	markup, err := a.widget.Render(ctx, rc, model, mode)
	if err == nil {
		c.modes[model.ID] = mode
	}
	c.mu.Unlock()
	if err != nil {
		a.fail(conn, rc, "render", err)
		return
	}

	_ = conn.Respond(events.RenderWidget{
		ID:             model.ID,
		Mode:           mode,
		SupportedModes: a.desc.Modes,
		HTML:           markup,
		Foreground:     requested.Has(events.Foreground),
	})
}

func (a *Adapter) fail(conn *session.Connection, rc *Context, op string, err error) {
	a.logger.Warn("widget operation failed", zap.String("op", op), zap.Error(err))
	_ = conn.Respond(events.DisplayNotification{
		HTML: "<p>" + html.EscapeString(rc.T("widget.error", map[string]any{"Op": op})) + "</p>",
		Options: map[string]any{
			"type": "error",
		},
	})
}
