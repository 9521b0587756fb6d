package events

import (
	"github.com/ifuryst/lol"
)

// RenderMode is a display variant of a widget. The set is open, widgets may
// declare their own modes.
type RenderMode string

const (
	Preview    RenderMode = "Preview"
	View       RenderMode = "View"
	Edit       RenderMode = "Edit"
	Help       RenderMode = "Help"
	Foreground RenderMode = "Foreground"
)

// RenderModes is an ordered set of render modes.
type RenderModes []RenderMode

// Modes builds a deduplicated RenderModes from names.
func Modes(names ...string) RenderModes {
	out := make(RenderModes, 0, len(names))
	for _, n := range lol.UniqSlice(names) {
		if n == "" {
			continue
		}
		out = append(out, RenderMode(n))
	}
	return out
}

// Has reports whether m is part of the set.
func (rm RenderModes) Has(m RenderMode) bool {
	for _, x := range rm {
		if x == m {
			return true
		}
	}
	return false
}

// Display returns the modes that produce a visible representation, which
// excludes modifiers such as Foreground.
func (rm RenderModes) Display() RenderModes {
	out := make(RenderModes, 0, len(rm))
	for _, m := range rm {
		if m != Foreground {
			out = append(out, m)
		}
	}
	return out
}

// Strings returns the modes as plain strings.
func (rm RenderModes) Strings() []string {
	out := make([]string, len(rm))
	for i, m := range rm {
		out[i] = string(m)
	}
	return out
}
