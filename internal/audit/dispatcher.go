package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sizes the queue between the session manager and the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands events to a single background worker so that session
// operations never wait on a slow sink. A nil *Dispatcher is valid and
// discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	mu      sync.RWMutex // guards queue against send-after-close
	queue   chan Event
	stopped bool

	drained chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts the delivery worker. It returns nil when auditing is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := max(cfg.BufferSize, 1)

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, size),
		drained:    make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.drained)
	for ev := range d.queue {
		d.forward(ev)
	}
}

// forward shields the worker from a sink that panics.
func (d *Dispatcher) forward(ev Event) {
	defer func() { _ = recover() }()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full queue bumps the drop counter;
// otherwise Emit waits for room until ctx is done. Events emitted after
// Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-cancelled:
		d.dropped.Add(1)
	}
}

// Close stops intake and blocks until every queued event reached the sink.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.drained
}

// Dropped reports how many events never reached the queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
