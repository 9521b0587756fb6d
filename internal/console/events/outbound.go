package events

import (
	"encoding/json"
)

// Response is an event sent to the browser. Each type knows its own method
// name and positional parameters.
type Response interface {
	Method() string
	Params() []any
}

type (
	// ScriptResource describes a script and its place in the browser side
	// loading order.
	ScriptResource struct {
		URI      string   `json:"uri"`
		Provides []string `json:"provides,omitempty"`
		Requires []string `json:"requires,omitempty"`
	}

	AddPageResources struct {
		CSSURIs   []string
		CSSSource string
		Scripts   []ScriptResource
	}

	AddWidgetType struct {
		Type         string
		DisplayNames map[string]string
		CSSURIs      []string
		Scripts      []ScriptResource
		Instantiable bool
	}

	RenderWidget struct {
		ID             string
		Mode           RenderMode
		SupportedModes RenderModes
		HTML           string
		Foreground     bool
	}

	UpdateWidget struct {
		ID   string
		Mode RenderMode
		HTML string
	}

	NotifyWidgetView struct {
		Type       string
		ID         string
		ViewMethod string
		ViewParams []any
	}

	DeleteWidget struct {
		ID string
	}

	LastLayout struct {
		PreviewIDs []string
		TabIDs     []string
		ExtraInfo  json.RawMessage
	}

	Reload struct{}

	// UpdateToken gives the page the token to use for its next reconnect.
	UpdateToken struct {
		Token string
	}

	Configured struct{}

	DisplayNotification struct {
		HTML    string
		Options map[string]any
	}
)

func (AddPageResources) Method() string { return "addPageResources" }
func (r AddPageResources) Params() []any {
	return []any{nonNil(r.CSSURIs), r.CSSSource, nonNilScripts(r.Scripts)}
}

func (AddWidgetType) Method() string { return "addWidgetType" }
func (r AddWidgetType) Params() []any {
	names := r.DisplayNames
	if names == nil {
		names = map[string]string{}
	}
	return []any{r.Type, names, nonNil(r.CSSURIs), nonNilScripts(r.Scripts), r.Instantiable}
}

func (RenderWidget) Method() string { return "renderWidget" }
func (r RenderWidget) Params() []any {
	return []any{r.ID, r.Mode, nonNil(r.SupportedModes.Strings()), r.HTML, r.Foreground}
}

func (UpdateWidget) Method() string { return "updateWidget" }
func (r UpdateWidget) Params() []any {
	return []any{r.ID, r.Mode, r.HTML}
}

func (NotifyWidgetView) Method() string { return "notifyWidgetView" }
func (r NotifyWidgetView) Params() []any {
	return append([]any{r.Type, r.ID, r.ViewMethod}, r.ViewParams...)
}

func (DeleteWidget) Method() string { return "deleteWidget" }
func (r DeleteWidget) Params() []any {
	return []any{r.ID}
}

func (LastLayout) Method() string { return "lastLayout" }
func (r LastLayout) Params() []any {
	extra := r.ExtraInfo
	if len(extra) == 0 {
		extra = json.RawMessage("{}")
	}
	return []any{nonNil(r.PreviewIDs), nonNil(r.TabIDs), extra}
}

func (Reload) Method() string { return "reload" }
func (Reload) Params() []any  { return nil }

func (UpdateToken) Method() string { return "updateToken" }
func (r UpdateToken) Params() []any {
	return []any{r.Token}
}

func (Configured) Method() string { return "configured" }
func (Configured) Params() []any  { return nil }

func (DisplayNotification) Method() string { return "displayNotification" }
func (r DisplayNotification) Params() []any {
	opts := r.Options
	if opts == nil {
		opts = map[string]any{}
	}
	return []any{r.HTML, opts}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilScripts(s []ScriptResource) []ScriptResource {
	if s == nil {
		return []ScriptResource{}
	}
	return s
}
