package hello

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/widget"
)

// Type is the widget type of the hello world widget.
const Type = "HelloWorld"

const (
	stateWorldVisible = "world_visible"
	stateGreeting     = "greeting"

	MethodToggleWorld = "toggleWorld"
)

//go:embed templates locales resources
var assets embed.FS

// HelloWorld greets the world and lets the user hide it.
type HelloWorld struct {
	renderer *widget.Renderer
}

var (
	_ widget.Widget              = (*HelloWorld)(nil)
	_ widget.ResourceProvider    = (*HelloWorld)(nil)
	_ widget.TranslationProvider = (*HelloWorld)(nil)
)

func New() (*HelloWorld, error) {
	r, err := widget.NewRenderer(assets, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &HelloWorld{renderer: r}, nil
}

func (*HelloWorld) Descriptor() widget.Descriptor {
	return widget.Descriptor{
		Type:         Type,
		DisplayName:  "helloworld.name",
		Modes:        events.RenderModes{events.Preview, events.View},
		Instantiable: true,
		CSS:          []string{"hello.css"},
		Scripts: []events.ScriptResource{{
			URI:      "hello.js",
			Provides: []string{"helloworld"},
		}},
	}
}

func (*HelloWorld) Resources() fs.FS {
	sub, _ := fs.Sub(assets, "resources")
	return sub
}

func (*HelloWorld) Translations() fs.FS {
	sub, _ := fs.Sub(assets, "locales")
	return sub
}

func (*HelloWorld) Create(_ context.Context, _ *widget.Context, model *widget.Model, properties map[string]any) error {
	model.Set(stateWorldVisible, true)
	if g, ok := properties[stateGreeting].(string); ok && g != "" {
		model.Set(stateGreeting, g)
	}
	return nil
}

type view struct {
	ID       string
	Greeting string
	Visible  bool
}

func (h *HelloWorld) Render(_ context.Context, rc *widget.Context, model *widget.Model, mode events.RenderMode) (string, error) {
	name := "preview.html"
	if mode == events.View {
		name = "view.html"
	}
	return h.renderer.Render(rc, name, view{
		ID:       model.ID,
		Greeting: model.String(stateGreeting),
		Visible:  model.Bool(stateWorldVisible),
	})
}

func (*HelloWorld) Notify(_ context.Context, _ *widget.Context, model *widget.Model, method string, _ []json.RawMessage) (widget.Result, error) {
	switch method {
	case MethodToggleWorld:
		visible := !model.Bool(stateWorldVisible)
		model.Set(stateWorldVisible, visible)
		return widget.Result{
			Changed: true,
			Views:   []widget.ViewCall{{Method: "setWorldVisible", Params: []any{visible}}},
		}, nil
	default:
		return widget.Result{}, fmt.Errorf("%w: %s", widget.ErrUnknownMethod, method)
	}
}
