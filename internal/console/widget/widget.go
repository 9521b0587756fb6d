package widget

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"strings"

	"github.com/google/uuid"

	"github.com/amoylab/webconsole/internal/console/events"
)

// IDSeparator separates the widget type from the unique part of an
// instance id.
const IDSeparator = "~"

var (
	ErrUnknownMethod = errors.New("unknown widget method")
	ErrNoModel       = errors.New("widget instance not found")
	ErrBadModel      = errors.New("unreadable widget state")
)

// Descriptor describes a widget type.
type Descriptor struct {
	Type string
	// DisplayName is the message id of the type's name. The type is used
	// when it has no translation.
	DisplayName string
	// Modes lists the render modes the widget supports.
	Modes events.RenderModes
	// Instantiable types can be added by the user.
	Instantiable bool
	// CSS and Scripts reference files of the widget's resources.
	CSS     []string
	Scripts []events.ScriptResource
}

// Model is the persisted state of one widget instance.
type Model struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	State map[string]any `json:"state"`
}

// Bool returns the boolean state value of key.
func (m *Model) Bool(key string) bool {
	v, _ := m.State[key].(bool)
	return v
}

// String returns the string state value of key.
func (m *Model) String(key string) string {
	v, _ := m.State[key].(string)
	return v
}

// Set stores a state value.
func (m *Model) Set(key string, v any) {
	if m.State == nil {
		m.State = make(map[string]any)
	}
	m.State[key] = v
}

// ViewCall invokes a method of the widget's browser side view.
type ViewCall struct {
	Method string
	Params []any
}

// Result is the outcome of a model notification.
type Result struct {
	// Changed models are persisted.
	Changed bool
	// Rerender sends the instance's new HTML.
	Rerender bool
	// Views are forwarded to the browser in order.
	Views []ViewCall
}

// Widget is the capability set every widget type implements.
type Widget interface {
	Descriptor() Descriptor
	// Create initializes the model of a new instance.
	Create(ctx context.Context, rc *Context, model *Model, properties map[string]any) error
	// Render returns the HTML of model in mode.
	Render(ctx context.Context, rc *Context, model *Model, mode events.RenderMode) (string, error)
	// Notify applies a method invoked by the widget's view to model.
	Notify(ctx context.Context, rc *Context, model *Model, method string, params []json.RawMessage) (Result, error)
}

// ResourceProvider is implemented by widgets that ship stylesheets,
// scripts or images. The files are served as widget resources.
type ResourceProvider interface {
	Resources() fs.FS
}

// TranslationProvider is implemented by widgets that ship TOML message
// files, named after their language, at the root of the returned FS.
type TranslationProvider interface {
	Translations() fs.FS
}

// ReadyHook is implemented by widgets that need to act once a Connection
// is ready, after their type was announced.
type ReadyHook interface {
	OnReady(ctx context.Context, rc *Context) error
}

// DeleteHook is implemented by widgets that release external state when
// an instance is deleted.
type DeleteHook interface {
	OnDelete(ctx context.Context, rc *Context, model *Model)
}

// NewID creates a new instance id for widgetType.
func NewID(widgetType string) string {
	return widgetType + IDSeparator + uuid.NewString()
}

// TypeOf returns the widget type encoded in id.
func TypeOf(id string) string {
	typ, _, ok := strings.Cut(id, IDSeparator)
	if !ok {
		return ""
	}
	return typ
}
