package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/pkg/metrics"
)

// Registry maps tokens to Connections. It is the only structure shared
// between the pipelines of different Connections.
//
// Lock order is registry before connection.
type Registry struct {
	logger     *zap.Logger
	metrics    *metrics.Metrics
	hook       DiscardHook
	maxPending int
	closeGrace time.Duration

	mu    sync.RWMutex
	conns map[string]*Connection
}

// Option configures a Registry.
type Option func(*Registry)

// WithDiscardHook sets the hook invoked for every discarded Connection.
func WithDiscardHook(h DiscardHook) Option {
	return func(r *Registry) { r.hook = h }
}

// WithMaxPending bounds the outbox of every Connection.
func WithMaxPending(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPending = n
		}
	}
}

// WithMetrics records connection metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithCloseGrace bounds the time the terminal event may take.
func WithCloseGrace(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.closeGrace = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger.Named("session.registry"),
		maxPending: DefaultMaxPending,
		closeGrace: DefaultCloseGrace,
		conns:      make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDiscardHook replaces the discard hook. It must be called before the
// first Connection is created.
func (r *Registry) SetDiscardHook(h DiscardHook) {
	r.hook = h
}

// Lookup returns the live Connection registered under token.
func (r *Registry) Lookup(token string) (*Connection, error) {
	r.Sweep()

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[token]
	if !ok || c.IsStale() {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// LookupOrCreate returns the live Connection registered under token or
// creates one. An empty token is replaced by a generated one. The second
// result reports whether the Connection was created.
func (r *Registry) LookupOrCreate(token, owner string, user *UserSession, timeout time.Duration) (*Connection, bool) {
	r.Sweep()
	if token == "" {
		token = uuid.NewString()
	}

	r.mu.Lock()
	if c, ok := r.conns[token]; ok && !c.IsStale() {
		r.mu.Unlock()
		return c, false
	}
	c := newConnection(r, token, owner, user, timeout)
	r.conns[token] = c
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	r.logger.Debug("connection created",
		zap.String("token", token),
		zap.String("owner", owner),
		zap.Duration("timeout", c.Timeout()))
	return c, true
}

// ReplaceToken moves c to newToken. The old token stops resolving at once.
func (r *Registry) ReplaceToken(c *Connection, newToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.IsStale() {
		return ErrDiscarded
	}
	if other, ok := r.conns[newToken]; ok && other != c && !other.IsStale() {
		return ErrTokenInUse
	}

	c.mu.Lock()
	old := c.token
	c.token = newToken
	c.mu.Unlock()

	if cur, ok := r.conns[old]; ok && cur == c {
		delete(r.conns, old)
	}
	r.conns[newToken] = c
	r.logger.Debug("connection token replaced", zap.String("old", old), zap.String("new", newToken))
	return nil
}

// AllForOwner returns the live Connections created by owner, oldest first.
func (r *Registry) AllForOwner(owner string) []*Connection {
	return r.collect(func(c *Connection) bool { return c.owner == owner })
}

// All returns every live Connection, oldest first.
func (r *Registry) All() []*Connection {
	return r.collect(func(*Connection) bool { return true })
}

func (r *Registry) collect(match func(*Connection) bool) []*Connection {
	r.Sweep()

	r.mu.RLock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		if match(c) && !c.IsStale() {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].created.Before(out[j].created) })
	return out
}

// DiscardAll discards every Connection created by owner.
func (r *Registry) DiscardAll(owner string) int {
	conns := r.AllForOwner(owner)
	for _, c := range conns {
		c.Discard()
	}
	if len(conns) > 0 {
		r.logger.Info("discarded all connections", zap.String("owner", owner), zap.Int("count", len(conns)))
	}
	return len(conns)
}

// Len returns the number of registered Connections, including ones not yet
// swept.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Sweep drops discarded entries and discards Connections that are past
// their expiry without a live link. It returns the number of entries
// removed.
func (r *Registry) Sweep() int {
	now := time.Now()
	var expired []*Connection
	removed := 0

	r.mu.Lock()
	for token, c := range r.conns {
		if c.IsStale() {
			delete(r.conns, token)
			removed++
			continue
		}
		if c.expired(now) {
			expired = append(expired, c)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Discard()
	}
	return removed + len(expired)
}

// discarded is called by Connection.Discard exactly once.
func (r *Registry) discarded(c *Connection) {
	r.mu.Lock()
	token := c.Token()
	if cur, ok := r.conns[token]; ok && cur == c {
		delete(r.conns, token)
	}
	r.mu.Unlock()

	r.metrics.ConnectionDiscarded()
	r.logger.Debug("connection discarded", zap.String("token", token))

	var completion *event.Completion
	if r.hook != nil {
		completion = r.hook(c)
	}
	if completion == nil {
		c.finish()
		return
	}
	timer := time.AfterFunc(r.closeGrace, func() {
		r.logger.Warn("terminal event did not complete in time", zap.String("token", token))
		c.finish()
	})
	completion.OnComplete(func() {
		timer.Stop()
		c.finish()
	})
}
