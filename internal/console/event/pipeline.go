package event

import (
	"sync"

	"go.uber.org/zap"
)

// Pipeline executes submitted tasks one at a time in submission order.
// Every Connection owns one so all of its events are handled sequentially.
type Pipeline struct {
	logger *zap.Logger
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

var _ Channel = (*Pipeline)(nil)

// NewPipeline creates a pipeline and starts its worker goroutine.
func NewPipeline(logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Pipeline implements Channel so that a bare pipeline can be used as the
// target of events that belong to no Connection.
func (p *Pipeline) Pipeline() *Pipeline {
	return p
}

// Submit appends a task. It reports false once the pipeline is closed.
func (p *Pipeline) Submit(task func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.tasks = append(p.tasks, task)
	p.mu.Unlock()
	p.signal()
	return true
}

// Close stops accepting tasks. Tasks already queued still run.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.signal()
}

// Done is closed after Close once the queue has drained.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if len(p.tasks) == 0 {
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			<-p.wake
			continue
		}
		task := p.tasks[0]
		p.tasks[0] = nil
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		p.exec(task)
	}
}

func (p *Pipeline) exec(task func()) {
	defer func() {
		if err := recover(); err != nil {
			p.logger.Error("panic recovered in pipeline task", zap.Any("error", err))
		}
	}()
	task()
}
