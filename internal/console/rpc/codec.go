package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
)

var (
	// ErrMalformed is returned for frames that are not a notification or
	// whose parameters do not fit the method.
	ErrMalformed = errors.New("malformed notification")
	// ErrUnknownMethod is returned for methods without decoder. Callers
	// ignore it.
	ErrUnknownMethod = errors.New("unknown method")
)

// MethodKeepAlive refreshes the Connection and fires no event.
const MethodKeepAlive = "keepAlive"

type decoder func(params []json.RawMessage) (event.Event, error)

var decoders = map[string]decoder{
	string(events.KindConsoleReady): func([]json.RawMessage) (event.Event, error) {
		return events.ConsoleReady{}, nil
	},
	string(events.KindAddWidget): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.AddWidgetRequest{}
		var modes []string
		if err := decodeParams(p, 2, &ev.Type, &modes, &ev.Properties); err != nil {
			return nil, err
		}
		ev.Modes = events.Modes(modes...)
		return ev, nil
	},
	string(events.KindDeleteWidget): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.DeleteWidgetRequest{}
		return ev, decodeParams(p, 1, &ev.ID)
	},
	string(events.KindRenderWidget): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.RenderWidgetRequest{}
		var modes []string
		if err := decodeParams(p, 2, &ev.ID, &modes); err != nil {
			return nil, err
		}
		ev.Modes = events.Modes(modes...)
		return ev, nil
	},
	string(events.KindLayoutChanged): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.LayoutChanged{}
		if err := decodeParams(p, 2, &ev.PreviewIDs, &ev.TabIDs); err != nil {
			return nil, err
		}
		if len(p) > 2 {
			ev.ExtraInfo = append(json.RawMessage(nil), p[2]...)
		}
		return ev, nil
	},
	string(events.KindSetLocale): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.SetLocale{}
		return ev, decodeParams(p, 1, &ev.Tag, &ev.Reload)
	},
	string(events.KindSetTheme): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.SetTheme{}
		return ev, decodeParams(p, 1, &ev.ID)
	},
	string(events.KindNotifyWidgetModel): func(p []json.RawMessage) (event.Event, error) {
		ev := &events.NotifyWidgetModel{}
		if err := decodeParams(p, 2, &ev.ID, &ev.Method); err != nil {
			return nil, err
		}
		ev.Params = p[2:]
		return ev, nil
	},
}

// decodeParams unmarshals positional params into targets. The first
// required params must be present, later ones are optional.
func decodeParams(params []json.RawMessage, required int, targets ...any) error {
	if len(params) < required {
		return fmt.Errorf("%w: expected at least %d params, got %d", ErrMalformed, required, len(params))
	}
	for i, target := range targets {
		if i >= len(params) {
			break
		}
		if err := json.Unmarshal(params[i], target); err != nil {
			return fmt.Errorf("%w: param %d: %v", ErrMalformed, i, err)
		}
	}
	return nil
}

// Method returns the method name of a frame without decoding it.
func Method(frame []byte) string {
	return gjson.GetBytes(frame, "method").String()
}

// Decode maps a notification frame to its typed event. A keepAlive frame
// decodes to a nil event.
func Decode(frame []byte) (event.Event, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	method := root.Get("method")
	if method.Type != gjson.String || method.Str == "" {
		return nil, fmt.Errorf("%w: missing method", ErrMalformed)
	}
	if method.Str == MethodKeepAlive {
		return nil, nil
	}

	dec, ok := decoders[method.Str]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Str)
	}

	var params []json.RawMessage
	switch p := root.Get("params"); {
	case !p.Exists() || p.Type == gjson.Null:
	case p.IsArray():
		for _, item := range p.Array() {
			params = append(params, json.RawMessage(item.Raw))
		}
	default:
		return nil, fmt.Errorf("%w: params must be an array", ErrMalformed)
	}
	return dec(params)
}
