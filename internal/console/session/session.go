package session

import (
	"context"
	"errors"
	"time"

	"github.com/amoylab/webconsole/internal/console/event"
)

var (
	// ErrSessionNotFound is returned when a token does not name a live
	// Connection.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDiscarded is returned by operations on a discarded Connection.
	ErrDiscarded = errors.New("connection discarded")
	// ErrTokenInUse is returned when a token is already mapped to another
	// Connection.
	ErrTokenInUse = errors.New("token already in use")
)

const (
	DefaultTimeout    = 5 * time.Minute
	DefaultMaxPending = 1024
	// DefaultCloseGrace bounds how long the handlers of the terminal event
	// may take before the Connection's pipeline is closed anyway.
	DefaultCloseGrace = 10 * time.Second
)

// Link is the live transport of a Connection.
type Link interface {
	// Send writes one encoded notification.
	Send(ctx context.Context, data []byte) error
	// Close tears down the transport.
	Close() error
}

// DiscardHook is invoked once when a Connection is discarded. The returned
// completion, if any, delays the release of per-connection state.
type DiscardHook func(c *Connection) *event.Completion

// From returns the Connection an event was fired on, or nil if the channel
// is not a Connection.
func From(ch event.Channel) *Connection {
	c, _ := ch.(*Connection)
	return c
}
