package widget

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"

	"github.com/Masterminds/sprig/v3"
)

// Renderer executes the HTML templates of a widget type. Templates see
// the sprig functions plus "t" for translations in the render locale.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the templates of fsys matching patterns.
func NewRenderer(fsys fs.FS, patterns ...string) (*Renderer, error) {
	tmpl, err := template.New("").
		Funcs(sprig.HtmlFuncMap()).
		Funcs(template.FuncMap{"t": func(id string, _ ...map[string]any) string { return id }}).
		ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse widget templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named template with data.
func (r *Renderer) Render(rc *Context, name string, data any) (string, error) {
	tmpl, err := r.tmpl.Clone()
	if err != nil {
		return "", err
	}
	tmpl.Funcs(template.FuncMap{"t": rc.T})

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
