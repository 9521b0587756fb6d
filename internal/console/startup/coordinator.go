package startup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/console/event"
	"github.com/amoylab/webconsole/internal/console/events"
	"github.com/amoylab/webconsole/internal/console/session"
	"github.com/amoylab/webconsole/pkg/metrics"
)

// Phase is the handshake state of a Connection.
type Phase int

const (
	Idle Phase = iota
	FanningOut
	Prepared
	Configured
)

func (p Phase) String() string {
	switch p {
	case FanningOut:
		return "fanning-out"
	case Prepared:
		return "prepared"
	case Configured:
		return "configured"
	default:
		return "idle"
	}
}

const (
	// ReadyPriority runs the coordinator's ready bookkeeping before every
	// other ready handler.
	ReadyPriority = 1 << 20
	// ConfiguredPriority answers the browser after every other handler of
	// the configured event.
	ConfiguredPriority = -(1 << 20)

	stateKey = "startup.coordinator"
)

type state struct {
	mu         sync.Mutex
	phase      Phase
	generation uint64
	started    time.Time
}

// Coordinator drives a Connection from ready through prepared to
// configured. Each phase starts once every handler of the previous one,
// and everything those handlers fired, has completed.
type Coordinator struct {
	logger  *zap.Logger
	bus     *event.Bus
	metrics *metrics.Metrics
}

// New creates a coordinator; m may be nil.
func New(logger *zap.Logger, bus *event.Bus, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		logger:  logger.Named("startup"),
		bus:     bus,
		metrics: m,
	}
}

// Register installs the coordinator's handlers and returns a function
// removing them.
func (c *Coordinator) Register() func() {
	offs := []func(){
		c.bus.On(events.KindConsoleReady, c.onReady,
			event.Priority(ReadyPriority), event.Named("startup.ready")),
		c.bus.On(events.KindConsoleConfigured, c.onConfigured,
			event.Priority(ConfiguredPriority), event.Named("startup.configured")),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Phase returns the handshake state of conn.
func (c *Coordinator) Phase(conn *session.Connection) Phase {
	st := stateOf(conn)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

func stateOf(conn *session.Connection) *state {
	if v, ok := conn.Value(stateKey); ok {
		return v.(*state)
	}
	st := &state{}
	conn.SetValue(stateKey, st)
	return st
}

func (c *Coordinator) onReady(ctx context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	st := stateOf(conn)
	st.mu.Lock()
	if st.phase != Idle {
		c.logger.Debug("ready on started connection, restarting handshake",
			zap.String("connection", conn.Token()),
			zap.Stringer("phase", st.phase))
	}
	st.generation++
	st.phase = FanningOut
	st.started = time.Now()
	gen := st.generation
	st.mu.Unlock()

	call.OnComplete(func() { c.prepare(ctx, conn, st, gen) })
}

func (c *Coordinator) prepare(ctx context.Context, conn *session.Connection, st *state, gen uint64) {
	if !c.advance(st, gen, Prepared) {
		return
	}
	c.bus.Fire(ctx, conn, events.ConsolePrepared{Generation: gen}).
		OnComplete(func() {
			if st.current(gen) {
				c.bus.Fire(ctx, conn, events.ConsoleConfigured{Generation: gen})
			}
		})
}

func (c *Coordinator) onConfigured(_ context.Context, call *event.Call) {
	conn := session.From(call.Channel())
	if conn == nil {
		return
	}
	gen := call.Event().(events.ConsoleConfigured).Generation
	st := stateOf(conn)
	if !c.advance(st, gen, Configured) {
		return
	}
	if err := conn.Respond(events.Configured{}); err != nil {
		c.logger.Debug("failed to send configured", zap.Error(err))
		return
	}
	st.mu.Lock()
	started := st.started
	st.mu.Unlock()
	c.metrics.HandshakeDone(started)
}

// advance moves st to phase if gen is still the current generation.
func (c *Coordinator) advance(st *state, gen uint64, phase Phase) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.generation != gen {
		c.logger.Debug("ignoring completion of superseded handshake",
			zap.Uint64("generation", gen),
			zap.Uint64("current", st.generation))
		return false
	}
	st.phase = phase
	return true
}

func (st *state) current(gen uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.generation == gen
}
