package session

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSweepInterval defines how often the sweep runs
	DefaultSweepInterval = time.Minute
	// DefaultUserIdle defines how long an unused user session is kept
	DefaultUserIdle = 24 * time.Hour
)

// Sweeper periodically purges expired Connections and idle user sessions.
type Sweeper struct {
	registry *Registry
	users    *UserSessions
	logger   *zap.Logger
	interval time.Duration
	userIdle time.Duration
	running  *atomic.Bool
	stopChan chan struct{}
	stopped  *atomic.Bool
}

// NewSweeper creates a sweeper; users may be nil.
func NewSweeper(registry *Registry, users *UserSessions, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		users:    users,
		logger:   logger.Named("session.sweeper"),
		interval: DefaultSweepInterval,
		userIdle: DefaultUserIdle,
		running:  &atomic.Bool{},
		stopChan: make(chan struct{}),
		stopped:  &atomic.Bool{},
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start(ctx context.Context) {
	if s.running.CompareAndSwap(false, true) {
		go s.loop(ctx)
		s.logger.Info("Started session sweeper", zap.Duration("interval", s.interval))
	}
}

// Stop halts the periodic sweep
func (s *Sweeper) Stop() {
	if s.running.CompareAndSwap(true, false) {
		if s.stopped.CompareAndSwap(false, true) {
			close(s.stopChan)
		}
		s.logger.Info("Stopped session sweeper")
	}
}

// SetInterval updates the sweep interval. It takes effect on Start.
func (s *Sweeper) SetInterval(interval time.Duration) {
	if interval > 0 {
		s.interval = interval
	}
}

// SetUserIdle updates the idle time after which user sessions are dropped.
func (s *Sweeper) SetUserIdle(idle time.Duration) {
	if idle > 0 {
		s.userIdle = idle
	}
}

// IsRunning returns whether the sweeper is running
func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session sweeper stopped due to context cancellation")
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow performs one sweep immediately.
func (s *Sweeper) SweepNow() (connections, users int) {
	connections = s.registry.Sweep()
	if s.users != nil {
		inUse := make(map[*UserSession]bool)
		for _, c := range s.registry.All() {
			if u := c.User(); u != nil {
				inUse[u] = true
			}
		}
		users = s.users.Sweep(s.userIdle, inUse)
	}
	if connections > 0 || users > 0 {
		s.logger.Debug("Performed session sweep",
			zap.Int("connections", connections),
			zap.Int("users", users))
	}
	return connections, users
}
