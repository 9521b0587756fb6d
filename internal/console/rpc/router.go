package rpc

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/session"
	"github.com/amoylab/webconsole/pkg/metrics"
	"github.com/amoylab/webconsole/pkg/trace"
)

// Router turns inbound frames into events fired on the Connection they
// arrived on.
type Router struct {
	logger  *zap.Logger
	bus     *event.Bus
	metrics *metrics.Metrics
}

// NewRouter creates a router firing on bus; m may be nil.
func NewRouter(logger *zap.Logger, bus *event.Bus, m *metrics.Metrics) *Router {
	return &Router{
		logger:  logger.Named("rpc.router"),
		bus:     bus,
		metrics: m,
	}
}

// Receive handles one inbound frame. Malformed frames are dropped and
// reported, unknown methods are ignored; neither affects the Connection.
// The returned completion is nil when no event was fired.
func (r *Router) Receive(ctx context.Context, conn *session.Connection, frame []byte) (*event.Completion, error) {
	conn.Refresh()

	ev, err := Decode(frame)
	switch {
	case errors.Is(err, ErrUnknownMethod):
		r.logger.Debug("ignoring unknown method", zap.String("method", Method(frame)))
		return nil, nil
	case err != nil:
		r.logger.Warn("dropping malformed notification",
			zap.String("connection", conn.Token()),
			zap.Error(err))
		return nil, err
	case ev == nil:
		return nil, nil
	}

	method := string(ev.Kind())
	r.metrics.Received(method)
	span := trace.Tracer(cnst.TraceRPC).Start(ctx, cnst.SpanNotificationPrefix+method).
		WithAttrs(
			attribute.String(cnst.AttrConnection, conn.Token()),
			attribute.String(cnst.AttrMethod, method),
		)

	completion := r.bus.Fire(span.Ctx, conn, ev)
	completion.OnComplete(span.End)
	return completion, nil
}
