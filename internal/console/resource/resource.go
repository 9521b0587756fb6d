package resource

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/session"
)

// Category is the first path segment of a resource URI.
type Category string

const (
	PortalResource Category = "portal-resource"
	PageResource   Category = "page-resource"
	ThemeResource  Category = "theme-resource"
	WidgetResource Category = "widget-resource"
)

// Categories lists the known categories.
var Categories = []Category{PortalResource, PageResource, ThemeResource, WidgetResource}

// KindRequest is the kind of the resource request event.
const KindRequest event.Kind = "resourceRequest"

var ErrInvalidPath = errors.New("invalid resource path")

// WidgetScope is the event scope of the widget type's resources.
func WidgetScope(widgetType string) string {
	return "widget:" + widgetType
}

// ThemeScope is the event scope of a theme's resources.
func ThemeScope(themeID string) string {
	return "theme:" + themeID
}

// URI builds the public URI of a resource below prefix.
func URI(prefix string, category Category, parts ...string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(prefix, "/"))
	sb.WriteString("/")
	sb.WriteString(string(category))
	for _, p := range parts {
		sb.WriteString("/")
		sb.WriteString(strings.Trim(p, "/"))
	}
	return sb.String()
}

// Request is fired to find the provider of a resource. The first handler
// that can serve it calls SetResult and stops propagation.
type Request struct {
	Category Category
	// WidgetType is set for widget resources.
	WidgetType string
	// Path is the remainder of the URI after the category, or after the
	// widget type for widget resources. It never starts with a slash.
	Path string
	// Theme is the theme being searched for theme resources.
	Theme string
	// IfModifiedSince is the browser's conditional GET timestamp.
	IfModifiedSince time.Time
	// User is the browser's user session, nil if unknown.
	User *session.UserSession

	// HTTPRequest and Writer are available to providers answering with
	// Handled. Both are nil when resolving outside an HTTP request.
	HTTPRequest *http.Request
	Writer      http.ResponseWriter

	result Result
}

func (*Request) Kind() event.Kind { return KindRequest }

// SetResult claims the request.
func (r *Request) SetResult(res Result) {
	r.result = res
}

// Result returns the claimed result, nil if nobody claimed the request.
func (r *Request) Result() Result {
	return r.result
}

// parse splits a path of the form <category>/<remainder>.
func parse(path string) (*Request, error) {
	path = strings.TrimPrefix(path, "/")
	category, rest, ok := strings.Cut(path, "/")
	if !ok || rest == "" {
		return nil, ErrInvalidPath
	}
	req := &Request{Category: Category(category), Path: rest}
	switch req.Category {
	case PortalResource, PageResource, ThemeResource:
	case WidgetResource:
		typ, sub, ok := strings.Cut(rest, "/")
		if !ok || typ == "" || sub == "" {
			return nil, ErrInvalidPath
		}
		req.WidgetType, req.Path = typ, sub
	default:
		return nil, ErrInvalidPath
	}
	if !fs.ValidPath(req.Path) {
		return nil, ErrInvalidPath
	}
	return req, nil
}

// Result is the outcome of resolving a resource.
type Result interface {
	// Name is the label used in metrics and traces.
	Name() string
}

type (
	// FromFS serves a named file of a file system. Its modification time
	// allows the resolver to answer conditional requests itself.
	FromFS struct {
		FS     fs.FS
		File   string
		MaxAge time.Duration
	}

	// FromStream serves the content of a reader.
	FromStream struct {
		Open        func() (io.ReadCloser, error)
		ContentType string
		ModTime     time.Time
		MaxAge      time.Duration
	}

	// FromGenerator writes generated content.
	FromGenerator struct {
		Generate    func(w io.Writer) error
		ContentType string
		MaxAge      time.Duration
	}

	// NotModified tells the browser to use its cached copy.
	NotModified struct{}

	// Handled means the provider has written the response itself.
	Handled struct{}

	// NotFound means nobody could provide the resource.
	NotFound struct{}
)

func (FromFS) Name() string        { return "fs" }
func (FromStream) Name() string    { return "stream" }
func (FromGenerator) Name() string { return "generator" }
func (NotModified) Name() string   { return "not-modified" }
func (Handled) Name() string       { return "handled" }
func (NotFound) Name() string      { return "not-found" }
