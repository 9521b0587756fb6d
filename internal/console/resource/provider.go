package resource

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/session"
)

//go:embed assets
var assets embed.FS

// FSProvider serves the files of a file system for one category.
type FSProvider struct {
	id       string
	category Category
	scope    string
	fsys     fs.FS
	maxAge   time.Duration
}

// NewFSProvider serves fsys as resources of category. Widget resources are
// scoped to the widget type given as id.
func NewFSProvider(id string, category Category, fsys fs.FS, maxAge time.Duration) *FSProvider {
	p := &FSProvider{id: id, category: category, fsys: fsys, maxAge: maxAge}
	switch category {
	case ThemeResource:
		p.scope = ThemeScope(id)
	case WidgetResource:
		p.scope = WidgetScope(id)
	}
	return p
}

// NewTheme creates the provider of a theme.
func NewTheme(id string, fsys fs.FS, maxAge time.Duration) *FSProvider {
	return NewFSProvider(id, ThemeResource, fsys, maxAge)
}

// BaseTheme is the built-in theme.
func BaseTheme(maxAge time.Duration) *FSProvider {
	sub, _ := fs.Sub(assets, "assets/themes/base")
	return NewTheme(DefaultBaseTheme, sub, maxAge)
}

// Portal serves the console's own scripts.
func Portal(maxAge time.Duration) *FSProvider {
	sub, _ := fs.Sub(assets, "assets/portal")
	return NewFSProvider("portal", PortalResource, sub, maxAge)
}

// WidgetControls adds close and expand buttons to every widget on the page.
func WidgetControls(prefix string, maxAge time.Duration) *PageProvider {
	sub, _ := fs.Sub(assets, "assets/page")
	return NewPageProvider("widget-controls", prefix, sub, maxAge,
		[]string{"widget-controls.css"}, "",
		events.ScriptResource{URI: "widget-controls.js", Provides: []string{"widget-controls"}})
}

// LoadThemes creates a theme for every sub directory of dir.
func LoadThemes(dir string, maxAge time.Duration) ([]*FSProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme directory %s: %w", dir, err)
	}
	var themes []*FSProvider
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		themes = append(themes, NewTheme(e.Name(), os.DirFS(filepath.Join(dir, e.Name())), maxAge))
	}
	return themes, nil
}

// ID returns the theme id, widget type or provider name.
func (p *FSProvider) ID() string {
	return p.id
}

// Register installs the provider on bus and returns a function removing it.
func (p *FSProvider) Register(bus *event.Bus) func() {
	return bus.On(KindRequest, p.serve,
		event.Scope(p.scope), event.Named("resource."+p.id))
}

func (p *FSProvider) serve(_ context.Context, call *event.Call) {
	req := call.Event().(*Request)
	if req.Category != p.category {
		return
	}
	info, err := fs.Stat(p.fsys, req.Path)
	if err != nil || info.IsDir() {
		return
	}
	req.SetResult(FromFS{FS: p.fsys, File: req.Path, MaxAge: p.maxAge})
	call.Stop()
}

// PageProvider contributes stylesheets and scripts to the console page.
// It announces them when a Connection becomes ready and serves them as
// page resources.
type PageProvider struct {
	*FSProvider
	prefix    string
	css       []string
	cssSource string
	scripts   []events.ScriptResource
}

// NewPageProvider serves fsys as page resources. css and the scripts' URIs
// are paths within fsys.
func NewPageProvider(id, prefix string, fsys fs.FS, maxAge time.Duration, css []string, cssSource string, scripts ...events.ScriptResource) *PageProvider {
	return &PageProvider{
		FSProvider: NewFSProvider(id, PageResource, fsys, maxAge),
		prefix:     prefix,
		css:        css,
		cssSource:  cssSource,
		scripts:    scripts,
	}
}

func (p *PageProvider) Register(bus *event.Bus) func() {
	offServe := p.FSProvider.Register(bus)
	offReady := bus.On(events.KindConsoleReady, p.announce, event.Named("resource."+p.id+".ready"))
	return func() {
		offServe()
		offReady()
	}
}

func (p *PageProvider) announce(_ context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	css := make([]string, len(p.css))
	for i, c := range p.css {
		css[i] = URI(p.prefix, PageResource, c)
	}
	scripts := make([]events.ScriptResource, len(p.scripts))
	for i, s := range p.scripts {
		s.URI = URI(p.prefix, PageResource, s.URI)
		scripts[i] = s
	}
	_ = conn.Respond(events.AddPageResources{
		CSSURIs:   css,
		CSSSource: p.cssSource,
		Scripts:   scripts,
	})
}
