package server

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/common/errorx"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/session"
	"github.com/amoylab/webconsole/pkg/trace"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// wsLink is the session.Link of one websocket.
type wsLink struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

var _ session.Link = (*wsLink)(nil)

func (l *wsLink) Send(ctx context.Context, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) ping() error {
	return l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame and tears down the socket.
func (l *wsLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = l.conn.Close()
	})
	return err
}

// handleWebSocket attaches a websocket to the Connection named by the token
// query parameter. A reconnecting page is issued a fresh token. An unknown
// or expired token gets a new Connection whose first notification asks the
// page to reload.
func (s *Server) handleWebSocket(c *gin.Context) {
	select {
	case <-s.shutdownCh:
		s.errs.HandleError(c, errorx.ErrShuttingDown)
		return
	default:
	}

	user := userFrom(c)
	token := c.Query("token")

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	span := trace.Tracer(cnst.TraceRPC).Start(c.Request.Context(), cnst.SpanWebSocketConnect).
		WithAttrs(
			attribute.String(cnst.AttrClientAddr, c.ClientIP()),
			attribute.String(cnst.AttrClientUserAgent, c.Request.UserAgent()),
		)
	conn, created := s.console.Resume(token, user)
	span.WithAttrs(attribute.String(cnst.AttrConnection, conn.Token()))
	if created {
		s.logger.Info("unknown connection token, requesting reload", zap.String("token", token))
		_ = conn.Respond(events.Reload{})
	}

	link := &wsLink{conn: ws}
	if err := conn.SetUpstreamLink(link); err != nil {
		s.logger.Warn("failed to attach websocket", zap.String("connection", conn.Token()), zap.Error(err))
		span.Fail(err).End()
		_ = link.Close()
		return
	}
	span.End()
	s.logger.Debug("websocket attached", zap.String("connection", conn.Token()))

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Disconnected(link)
		_ = link.Close()
		s.logger.Debug("websocket detached", zap.String("connection", conn.Token()))
	}()

	pongWait := 2 * s.cfg.Session.PingInterval
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepAlive(link, done)

	// handlers may outlive the socket, e.g. pending store writes
	ctx := context.WithoutCancel(c.Request.Context())
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket connection error", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if _, err := s.console.Router.Receive(ctx, conn, frame); err != nil {
			s.logger.Debug("notification rejected", zap.String("connection", conn.Token()), zap.Error(err))
		}
	}
}

func (s *Server) keepAlive(link *wsLink, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.Session.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.shutdownCh:
			_ = link.Close()
			return
		case <-ticker.C:
			if err := link.ping(); err != nil {
				return
			}
		}
	}
}
