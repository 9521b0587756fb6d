package console

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/amoylab/webconsole/internal/common/config"
	"github.com/amoylab/webconsole/internal/console/auth"
	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/i18n"
	"github.com/amoylab/webconsole/internal/console/kvstore"
	"github.com/amoylab/webconsole/internal/console/layout"
	"github.com/amoylab/webconsole/internal/console/resource"
	"github.com/amoylab/webconsole/internal/console/rpc"
	"github.com/amoylab/webconsole/internal/console/session"
	"github.com/amoylab/webconsole/internal/console/startup"
	"github.com/amoylab/webconsole/internal/console/widget"
	"github.com/amoylab/webconsole/pkg/metrics"
)

// Console wires the components serving one console page: the event bus,
// the connection registry, the startup handshake, the layout policy, the
// resource providers and the widgets.
type Console struct {
	logger *zap.Logger
	cfg    *config.ConsoleConfig

	Bus      *event.Bus
	Registry *session.Registry
	Users    *session.UserSessions
	Router   *rpc.Router
	Resolver *resource.Resolver
	Startup  *startup.Coordinator
	Layout   *layout.Policy
	I18n     *i18n.I18n
	Auth     auth.Resolver
	Store    kvstore.Store
	Metrics  *metrics.Metrics

	sweeper *session.Sweeper
	widgets map[string]*widget.Adapter
	offs    []func()
}

// New creates a console persisting to store. m may be nil.
func New(logger *zap.Logger, cfg *config.ConsoleConfig, store kvstore.Store, m *metrics.Metrics) (*Console, error) {
	tr, err := newTranslator(cfg.I18n)
	if err != nil {
		return nil, err
	}
	resolver, err := auth.NewResolver(cfg.Auth)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus(logger)
	c := &Console{
		logger:   logger.Named("console"),
		cfg:      cfg,
		Bus:      bus,
		Users:    session.NewUserSessions(logger),
		Router:   rpc.NewRouter(logger, bus, m),
		Resolver: resource.NewResolver(logger, bus, resource.WithMetrics(m)),
		Startup:  startup.New(logger, bus, m),
		Layout:   layout.New(logger, bus, store, cfg.Layout.QueryTimeout),
		I18n:     tr,
		Auth:     resolver,
		Store:    store,
		Metrics:  m,
		widgets:  make(map[string]*widget.Adapter),
	}
	c.Registry = session.NewRegistry(logger,
		session.WithDiscardHook(c.closed),
		session.WithMaxPending(cfg.Session.MaxPending),
		session.WithMetrics(m))
	c.sweeper = session.NewSweeper(c.Registry, c.Users, logger)
	c.sweeper.SetInterval(cfg.Session.SweepInterval)
	c.sweeper.SetUserIdle(cfg.Session.UserIdle)

	c.offs = append(c.offs,
		c.Startup.Register(),
		c.Layout.Register(),
		resource.Portal(widget.DefaultMaxAge).Register(bus),
		resource.BaseTheme(widget.DefaultMaxAge).Register(bus),
		bus.On(events.KindSetLocale, c.onSetLocale, event.Named("console.locale")),
		bus.On(events.KindSetTheme, c.onSetTheme, event.Named("console.theme")),
	)

	if cfg.Theme.Dir != "" {
		themes, err := resource.LoadThemes(cfg.Theme.Dir, widget.DefaultMaxAge)
		if err != nil {
			return nil, err
		}
		for _, t := range themes {
			c.offs = append(c.offs, t.Register(bus))
			c.logger.Info("theme loaded", zap.String("theme", t.ID()))
		}
	}
	return c, nil
}

func newTranslator(cfg config.I18nConfig) (*i18n.I18n, error) {
	def, err := language.Parse(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.Default, err)
	}
	var supported []language.Tag
	for _, s := range cfg.Supported {
		tag, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", s, err)
		}
		supported = append(supported, tag)
	}
	tr := i18n.NewI18n(def, supported...)
	if cfg.Path != "" {
		if err := tr.LoadTranslations(cfg.Path); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// Name is the owner of the console's connections.
func (c *Console) Name() string {
	return c.cfg.Name
}

// Prefix is the URL path the console is served under.
func (c *Console) Prefix() string {
	return c.cfg.Prefix
}

// AddWidget registers a widget type.
func (c *Console) AddWidget(w widget.Widget) (*widget.Adapter, error) {
	a := widget.NewAdapter(c.logger, c.Bus, c.Store, c.I18n, c.cfg.Prefix, w)
	if _, ok := c.widgets[a.Type()]; ok {
		return nil, fmt.Errorf("widget type %s already registered", a.Type())
	}
	if tp, ok := w.(widget.TranslationProvider); ok {
		if err := c.I18n.LoadFS(tp.Translations(), "."); err != nil {
			return nil, fmt.Errorf("failed to load translations of %s: %w", a.Type(), err)
		}
	}
	c.widgets[a.Type()] = a
	c.offs = append(c.offs, a.Register())
	c.logger.Info("widget registered", zap.String("type", a.Type()))
	return a, nil
}

// WidgetTypes returns the registered widget types.
func (c *Console) WidgetTypes() []string {
	out := make([]string, 0, len(c.widgets))
	for t := range c.widgets {
		out = append(out, t)
	}
	return out
}

// AddPageProvider registers a provider of page resources.
func (c *Console) AddPageProvider(p *resource.PageProvider) {
	c.offs = append(c.offs, p.Register(c.Bus))
}

// Connect returns the Connection for token, creating one when token is
// unknown or stale. created reports whether a new Connection was made.
func (c *Console) Connect(token string, user *session.UserSession) (conn *session.Connection, created bool) {
	conn, created = c.Registry.LookupOrCreate(token, c.cfg.Name, user, c.cfg.Session.Timeout)
	if created {
		c.logger.Debug("connection created", zap.String("connection", conn.Token()))
	}
	return conn, created
}

// Resume returns the Connection a transport asks for with token. A
// Connection that had a link before is moved to a fresh token, and the
// page is sent the new one first. An unknown token yields a new
// Connection under a generated token; created reports that case.
func (c *Console) Resume(token string, user *session.UserSession) (conn *session.Connection, created bool) {
	if token != "" {
		if conn, err := c.Registry.Lookup(token); err == nil {
			if conn.WasLinked() {
				c.rotate(conn)
			}
			return conn, false
		}
	}
	return c.Connect("", user)
}

func (c *Console) rotate(conn *session.Connection) {
	old := conn.Token()
	if err := c.Registry.ReplaceToken(conn, uuid.NewString()); err != nil {
		c.logger.Warn("failed to rotate connection token", zap.String("connection", old), zap.Error(err))
		return
	}
	c.logger.Debug("connection resumed", zap.String("old", old), zap.String("connection", conn.Token()))
	_ = conn.Respond(events.UpdateToken{Token: conn.Token()})
}

// closed fires the terminal event of a discarded Connection.
func (c *Console) closed(conn *session.Connection) *event.Completion {
	return c.Bus.Fire(context.Background(), conn, events.Closed{})
}

func (c *Console) onSetLocale(_ context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil || conn.User() == nil {
		return
	}
	ev := call.Event().(*events.SetLocale)
	tag := c.I18n.Match(ev.Tag)
	conn.User().SetLocale(tag)
	c.logger.Debug("locale changed", zap.Stringer("locale", tag))
	if ev.Reload {
		_ = conn.Respond(events.Reload{})
	}
}

func (c *Console) onSetTheme(_ context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil || conn.User() == nil {
		return
	}
	ev := call.Event().(*events.SetTheme)
	conn.User().SetTheme(ev.ID)
	_ = conn.Respond(events.Reload{})
}

// Start begins the background sweep of stale connections.
func (c *Console) Start(ctx context.Context) {
	c.sweeper.Start(ctx)
}

// Shutdown discards every connection and removes all handlers. It waits
// for the terminal events until ctx is done.
func (c *Console) Shutdown(ctx context.Context) error {
	c.sweeper.Stop()
	conns := c.Registry.AllForOwner(c.cfg.Name)
	n := c.Registry.DiscardAll(c.cfg.Name)
	c.logger.Info("connections discarded", zap.Int("count", n))

	var err error
	for _, conn := range conns {
		select {
		case <-conn.Pipeline().Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}
	for i := len(c.offs) - 1; i >= 0; i-- {
		c.offs[i]()
	}
	c.offs = nil
	return err
}
