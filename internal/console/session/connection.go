package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/auth"
	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/pkg/jsonrpc"
)

type outgoing struct {
	method string
	data   []byte
}

// Connection is the server side of one browser tab. It outlives its
// transport link: a tab that reconnects within the timeout resumes the same
// Connection and keeps its widget state.
//
// All outbound notifications pass through a single outbox drained by at
// most one flusher goroutine, so the browser sees them in the order Respond
// was called.
type Connection struct {
	owner    string
	registry *Registry
	user     *UserSession
	pipeline *event.Pipeline
	logger   *zap.Logger
	created  time.Time

	mu         sync.Mutex
	token      string
	timeout    time.Duration
	expiresAt  time.Time
	timer      *time.Timer
	link       Link
	connected  bool
	linked     bool
	stale      bool
	outbox     []*outgoing
	flushing   bool
	maxPending int
	values     map[string]any
	release    sync.Once
}

var _ event.Channel = (*Connection)(nil)

func newConnection(r *Registry, token, owner string, user *UserSession, timeout time.Duration) *Connection {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Connection{
		owner:      owner,
		registry:   r,
		user:       user,
		pipeline:   event.NewPipeline(r.logger.Named("pipeline")),
		logger:     r.logger.With(zap.String("connection", token)),
		created:    time.Now(),
		token:      token,
		timeout:    timeout,
		expiresAt:  time.Now().Add(timeout),
		maxPending: r.maxPending,
		values:     make(map[string]any),
	}
	c.timer = time.AfterFunc(timeout, c.expire)
	return c
}

// Pipeline implements event.Channel.
func (c *Connection) Pipeline() *event.Pipeline {
	return c.pipeline
}

// Token returns the token the Connection is currently registered under.
func (c *Connection) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Owner returns the name of the console that created the Connection.
func (c *Connection) Owner() string {
	return c.owner
}

// User returns the user session the Connection belongs to.
func (c *Connection) User() *UserSession {
	return c.user
}

// Principal returns the user of the Connection, the anonymous principal
// if it has no user session.
func (c *Connection) Principal() auth.Principal {
	if c.user == nil {
		return auth.Principal{}
	}
	return c.user.Principal()
}

// Created returns the creation time.
func (c *Connection) Created() time.Time {
	return c.created
}

// Refresh pushes the expiry out by the timeout.
func (c *Connection) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale {
		return
	}
	c.expiresAt = time.Now().Add(c.timeout)
	c.timer.Reset(c.timeout)
	if c.user != nil {
		c.user.Touch()
	}
}

// SetTimeout changes the timeout and reschedules the pending expiry.
func (c *Connection) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
	if c.stale {
		return
	}
	c.expiresAt = time.Now().Add(timeout)
	c.timer.Reset(timeout)
}

// Timeout returns the current timeout.
func (c *Connection) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// ExpiresAt returns the instant the Connection expires unless refreshed.
func (c *Connection) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// expire runs when the timer fires. A Connection with a live link is kept,
// the transport reports a dead link through Disconnected.
func (c *Connection) expire() {
	c.mu.Lock()
	if c.stale {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Before(c.expiresAt) {
		c.timer.Reset(c.expiresAt.Sub(now))
		c.mu.Unlock()
		return
	}
	if c.connected {
		c.expiresAt = now.Add(c.timeout)
		c.timer.Reset(c.timeout)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Debug("connection expired")
	c.Discard()
}

// expired reports whether the Connection is past its expiry and has no
// live link.
func (c *Connection) expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stale && !c.connected && !now.Before(c.expiresAt)
}

// Discard removes the Connection from the registry and fires the terminal
// event on its channel. Discarding twice has no effect.
func (c *Connection) Discard() {
	c.mu.Lock()
	if c.stale {
		c.mu.Unlock()
		return
	}
	c.stale = true
	c.connected = false
	c.timer.Stop()
	link := c.link
	c.link = nil
	dropped := len(c.outbox)
	c.outbox = nil
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Debug("pending notifications dropped on discard", zap.Int("count", dropped))
	}
	c.registry.discarded(c)
	if link != nil {
		if err := link.Close(); err != nil {
			c.logger.Debug("failed to close link", zap.Error(err))
		}
	}
}

// finish releases per-connection state once the terminal event has been
// handled.
func (c *Connection) finish() {
	c.release.Do(func() {
		c.mu.Lock()
		c.values = make(map[string]any)
		c.mu.Unlock()
		c.pipeline.Close()
	})
}

// IsStale reports whether the Connection has been discarded.
func (c *Connection) IsStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// Connected reports whether a live link is attached.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WasLinked reports whether a link has ever been attached.
func (c *Connection) WasLinked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linked
}

// SetUpstreamLink attaches a live transport, replacing a previous one, and
// flushes notifications queued while there was none.
func (c *Connection) SetUpstreamLink(link Link) error {
	c.mu.Lock()
	if c.stale {
		c.mu.Unlock()
		return ErrDiscarded
	}
	old := c.link
	c.link = link
	c.connected = link != nil
	c.linked = c.linked || link != nil
	c.expiresAt = time.Now().Add(c.timeout)
	c.timer.Reset(c.timeout)
	c.startFlushLocked()
	c.mu.Unlock()

	if old != nil && old != link {
		_ = old.Close()
	}
	return nil
}

// UpstreamLink returns the live transport or nil while disconnected.
func (c *Connection) UpstreamLink() Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Disconnected is called by the transport when link has gone away. The
// Connection stays registered until it expires.
func (c *Connection) Disconnected(link Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	c.link = nil
	c.connected = false
	c.expiresAt = time.Now().Add(c.timeout)
	if !c.stale {
		c.timer.Reset(c.timeout)
	}
}

// Respond queues an outbound notification. It is the only way to send to
// the browser. Notifications are delivered in call order; while no link
// is attached they are kept, up to the pending limit, after which the
// oldest is dropped.
func (c *Connection) Respond(resp events.Response) error {
	data, err := jsonrpc.Encode(resp.Method(), resp.Params()...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stale {
		c.mu.Unlock()
		return ErrDiscarded
	}
	dropped := false
	if c.maxPending > 0 && len(c.outbox) >= c.maxPending {
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		dropped = true
	}
	c.outbox = append(c.outbox, &outgoing{method: resp.Method(), data: data})
	c.startFlushLocked()
	c.mu.Unlock()

	if dropped {
		c.registry.metrics.Dropped()
		c.logger.Warn("pending notification limit reached, dropping oldest", zap.Int("limit", c.maxPending))
	}
	return nil
}

// Pending returns the number of queued notifications.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

func (c *Connection) startFlushLocked() {
	if c.flushing || !c.connected || c.link == nil || len(c.outbox) == 0 {
		return
	}
	c.flushing = true
	go c.flush()
}

func (c *Connection) flush() {
	for {
		c.mu.Lock()
		if c.stale || !c.connected || c.link == nil || len(c.outbox) == 0 {
			c.flushing = false
			c.mu.Unlock()
			return
		}
		msg := c.outbox[0]
		link := c.link
		c.mu.Unlock()

		err := link.Send(context.Background(), msg.data)

		c.mu.Lock()
		if err != nil {
			if c.link == link {
				c.connected = false
				c.flushing = false
				c.mu.Unlock()
				c.logger.Info("failed to send notification, link flagged disconnected", zap.Error(err))
				return
			}
			// the link was replaced meanwhile, retry on the new one
			c.mu.Unlock()
			continue
		}
		if len(c.outbox) > 0 && c.outbox[0] == msg {
			c.outbox[0] = nil
			c.outbox = c.outbox[1:]
		}
		c.mu.Unlock()
		c.registry.metrics.Sent(msg.method)
	}
}

// Value returns per-connection state stored by a component under key.
func (c *Connection) Value(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// SetValue stores per-connection state under key.
func (c *Connection) SetValue(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// DeleteValue removes per-connection state stored under key.
func (c *Connection) DeleteValue(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Info is a snapshot for administrative listings.
type Info struct {
	Token     string    `json:"token"`
	Owner     string    `json:"owner"`
	User      string    `json:"user"`
	Connected bool      `json:"connected"`
	Pending   int       `json:"pending"`
	Created   time.Time `json:"created"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Info returns a snapshot of the Connection.
func (c *Connection) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := Info{
		Token:     c.token,
		Owner:     c.owner,
		Connected: c.connected,
		Pending:   len(c.outbox),
		Created:   c.created,
		ExpiresAt: c.expiresAt,
	}
	if c.user != nil {
		info.User = c.user.Principal().Name
	}
	return info
}
