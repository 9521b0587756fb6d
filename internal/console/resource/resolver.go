package resource

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/ifuryst/lol"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/session"
	"github.com/amoylab/webconsole/pkg/metrics"
	"github.com/amoylab/webconsole/pkg/trace"
)

// DefaultBaseTheme is the theme every other theme falls back to.
const DefaultBaseTheme = "base"

// FallbackSupplier is consulted for theme resources that neither the
// requested nor the base theme provide. It returns nil if it has nothing.
type FallbackSupplier func(req *Request) Result

// Query carries the request specific inputs of a resolution.
type Query struct {
	IfModifiedSince time.Time
	User            *session.UserSession
	// Theme overrides the theme of the user session.
	Theme       string
	HTTPRequest *http.Request
	Writer      http.ResponseWriter
}

type Option func(*Resolver)

func WithBaseTheme(id string) Option {
	return func(r *Resolver) { r.baseTheme = id }
}

func WithFallback(f FallbackSupplier) Option {
	return func(r *Resolver) { r.fallback = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver maps resource URIs to the providers registered on the bus.
type Resolver struct {
	logger    *zap.Logger
	bus       *event.Bus
	metrics   *metrics.Metrics
	baseTheme string
	fallback  FallbackSupplier
}

// NewResolver creates a resolver dispatching on bus.
func NewResolver(logger *zap.Logger, bus *event.Bus, opts ...Option) *Resolver {
	r := &Resolver{
		logger:    logger.Named("resource"),
		bus:       bus,
		baseTheme: DefaultBaseTheme,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds the resource at path, which has the form
// <category>/<remainder>. It never returns nil.
func (r *Resolver) Resolve(ctx context.Context, path string, q Query) Result {
	span := trace.Tracer(cnst.TraceResource).Start(ctx, cnst.SpanResourceResolve).
		WithAttrs(attribute.String(cnst.AttrResourcePath, path))
	defer span.End()

	req, err := parse(path)
	if err != nil {
		r.logger.Debug("rejecting resource path", zap.String("path", path))
		r.metrics.ResourceServed("invalid", NotFound{}.Name())
		return NotFound{}
	}
	req.IfModifiedSince = q.IfModifiedSince
	req.User = q.User
	req.HTTPRequest = q.HTTPRequest
	req.Writer = q.Writer

	var res Result
	switch req.Category {
	case ThemeResource:
		res = r.resolveTheme(span.Ctx, req, q.Theme)
	case WidgetResource:
		res = r.dispatch(span.Ctx, req, WidgetScope(req.WidgetType))
	default:
		res = r.dispatch(span.Ctx, req, "")
	}
	res = r.conditional(res, req.IfModifiedSince)

	span.WithAttrs(
		attribute.String(cnst.AttrResourceCategory, string(req.Category)),
		attribute.String(cnst.AttrResourceResult, res.Name()),
	)
	r.metrics.ResourceServed(string(req.Category), res.Name())
	return res
}

// dispatch fires req on a pipeline of its own and waits for the claim.
func (r *Resolver) dispatch(ctx context.Context, req *Request, scope string) Result {
	p := event.NewPipeline(r.logger)
	defer p.Close()

	req.result = nil
	completion := r.bus.Fire(ctx, p, req, event.InScope(scope))
	if err := completion.Wait(ctx); err != nil {
		r.logger.Debug("resource resolution abandoned",
			zap.String("path", req.Path), zap.Error(err))
		return NotFound{}
	}
	if req.result == nil {
		return NotFound{}
	}
	return req.result
}

func (r *Resolver) resolveTheme(ctx context.Context, req *Request, theme string) Result {
	if theme == "" && req.User != nil {
		theme = req.User.Theme()
	}
	chain := lol.UniqSlice([]string{theme, r.baseTheme})
	for _, id := range chain {
		if id == "" {
			continue
		}
		req.Theme = id
		if res := r.dispatch(ctx, req, ThemeScope(id)); !isNotFound(res) {
			return res
		}
	}
	if r.fallback != nil {
		req.Theme = ""
		if res := r.fallback(req); res != nil && !isNotFound(res) {
			return res
		}
	}
	return NotFound{}
}

// conditional answers NotModified for results whose modification time is
// known and not newer than ims.
func (r *Resolver) conditional(res Result, ims time.Time) Result {
	var modTime time.Time
	switch v := res.(type) {
	case FromFS:
		info, err := fs.Stat(v.FS, v.File)
		if err != nil {
			r.logger.Debug("claimed resource vanished", zap.String("file", v.File), zap.Error(err))
			return NotFound{}
		}
		modTime = info.ModTime()
	case FromStream:
		modTime = v.ModTime
	default:
		return res
	}
	if ims.IsZero() || modTime.IsZero() {
		return res
	}
	if !modTime.Truncate(time.Second).After(ims) {
		return NotModified{}
	}
	return res
}

func isNotFound(res Result) bool {
	_, ok := res.(NotFound)
	return ok
}
