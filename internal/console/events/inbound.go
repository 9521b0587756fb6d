package events

import (
	"encoding/json"

	"github.com/amoylab/webconsole/internal/console/event"
)

const (
	KindConsoleReady      event.Kind = "consoleReady"
	KindAddWidget         event.Kind = "addWidget"
	KindDeleteWidget      event.Kind = "deleteWidget"
	KindRenderWidget      event.Kind = "renderWidget"
	KindLayoutChanged     event.Kind = "layoutChanged"
	KindSetLocale         event.Kind = "setLocale"
	KindSetTheme          event.Kind = "setTheme"
	KindNotifyWidgetModel event.Kind = "notifyWidgetModel"

	KindConsolePrepared   event.Kind = "consolePrepared"
	KindConsoleConfigured event.Kind = "consoleConfigured"
	KindClosed            event.Kind = "closed"
)

type (
	// ConsoleReady is sent by the browser once the page has loaded.
	ConsoleReady struct{}

	// AddWidgetRequest asks for a new widget instance of Type.
	AddWidgetRequest struct {
		Type       string
		Modes      RenderModes
		Properties map[string]any
	}

	// DeleteWidgetRequest asks to remove an instance and its persisted state.
	DeleteWidgetRequest struct {
		ID string
	}

	// RenderWidgetRequest asks the owner of ID to render it. It is fired by
	// the browser as well as by the layout replay at startup. A handler
	// that renders the instance must call MarkHandled.
	RenderWidgetRequest struct {
		ID      string
		Modes   RenderModes
		handled bool
	}

	// LayoutChanged carries the complete new arrangement.
	LayoutChanged struct {
		PreviewIDs []string
		TabIDs     []string
		ExtraInfo  json.RawMessage
	}

	// SetLocale changes the locale of the user session.
	SetLocale struct {
		Tag    string
		Reload bool
	}

	// SetTheme changes the theme of the user session.
	SetTheme struct {
		ID string
	}

	// NotifyWidgetModel invokes Method on the model of instance ID.
	NotifyWidgetModel struct {
		ID     string
		Method string
		Params []json.RawMessage
	}

	// ConsolePrepared is fired once all ready handlers have completed.
	// Generation counts the ready events seen by the Connection.
	ConsolePrepared struct {
		Generation uint64
	}

	// ConsoleConfigured is fired once all prepared handlers have completed.
	ConsoleConfigured struct {
		Generation uint64
	}

	// Closed is the terminal event of a discarded Connection.
	Closed struct{}
)

func (ConsoleReady) Kind() event.Kind         { return KindConsoleReady }
func (*AddWidgetRequest) Kind() event.Kind    { return KindAddWidget }
func (*DeleteWidgetRequest) Kind() event.Kind { return KindDeleteWidget }
func (*RenderWidgetRequest) Kind() event.Kind { return KindRenderWidget }
func (*LayoutChanged) Kind() event.Kind       { return KindLayoutChanged }
func (*SetLocale) Kind() event.Kind           { return KindSetLocale }
func (*SetTheme) Kind() event.Kind            { return KindSetTheme }
func (*NotifyWidgetModel) Kind() event.Kind   { return KindNotifyWidgetModel }
func (ConsolePrepared) Kind() event.Kind      { return KindConsolePrepared }
func (ConsoleConfigured) Kind() event.Kind    { return KindConsoleConfigured }
func (Closed) Kind() event.Kind               { return KindClosed }

// MarkHandled records that an owner rendered the instance.
func (r *RenderWidgetRequest) MarkHandled() {
	r.handled = true
}

// Handled reports whether any owner claimed the request.
func (r *RenderWidgetRequest) Handled() bool {
	return r.handled
}
