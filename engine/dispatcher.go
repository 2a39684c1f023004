package engine

import (
	"sync"

	"go.eventcore.tech/internal/common/metrics"
)

// DefaultDispatcherName is the name of the default dispatcher.
const DefaultDispatcherName = ""

// lockedDispatcher is a named FIFO of runnable processors protected by a
// non-fair mutex. Queue operations require the mutex to be held. The work
// channel carries a wake-up signal whenever a processor is returned to the
// queue; the graceful-stop protocol waits on it to observe in-flight
// processing finishing.
type lockedDispatcher struct {
	name  string
	mu    sync.Mutex
	queue []*Processor
	work  chan struct{}
}

func newLockedDispatcher(name string) *lockedDispatcher {
	return &lockedDispatcher{
		name: name,
		work: make(chan struct{}, 1),
	}
}

// pushTail appends p and signals one stop-protocol waiter. Caller holds mu.
func (d *lockedDispatcher) pushTail(p *Processor) {
	d.queue = append(d.queue, p)
	metrics.DispatcherQueueDepth.WithLabelValues(dispatcherLabel(d.name)).Set(float64(len(d.queue)))

	select {
	case d.work <- struct{}{}:
	default:
	}
}

// popHead removes and returns the head processor, or nil when the queue is
// empty. Caller holds mu.
func (d *lockedDispatcher) popHead() *Processor {
	if len(d.queue) == 0 {
		return nil
	}
	p := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	metrics.DispatcherQueueDepth.WithLabelValues(dispatcherLabel(d.name)).Set(float64(len(d.queue)))
	return p
}

// removeIf removes the processor with the given id, reporting whether it was
// present. Caller holds mu.
func (d *lockedDispatcher) removeIf(id string) bool {
	for i, p := range d.queue {
		if p.id == id {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			metrics.DispatcherQueueDepth.WithLabelValues(dispatcherLabel(d.name)).Set(float64(len(d.queue)))
			return true
		}
	}
	return false
}

// contains reports whether the processor with the given id is queued.
// Caller holds mu.
func (d *lockedDispatcher) contains(id string) bool {
	for _, p := range d.queue {
		if p.id == id {
			return true
		}
	}
	return false
}

// size returns the queue length. Caller holds mu.
func (d *lockedDispatcher) size() int {
	return len(d.queue)
}
