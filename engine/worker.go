package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"go.eventcore.tech/internal/common/metrics"
)

const (
	// maxPollMS caps the mailbox poll wait computed by computeWait.
	maxPollMS = 40

	// emptyQueuePark is the brief pause taken when a locked dispatcher's
	// queue turns out to be empty, before giving the slot up.
	emptyQueuePark = 100 * time.Microsecond
)

// worker is an OS-thread-style goroutine pinned to a fixed, ordered list of
// dispatchers. It visits them round-robin, takes one processor at a time,
// processes at most one message, and returns the processor to the tail of
// its dispatcher queue.
type worker struct {
	engine      *Engine
	index       int
	dispatchers []*lockedDispatcher
}

// run is the worker loop. A full round-robin cycle in which every TryLock
// failed triggers an exponential backoff sleep; any processed message
// resets the backoff state.
func (w *worker) run() {
	defer w.engine.workersWG.Done()

	metrics.WorkersRunning.Inc()
	defer metrics.WorkersRunning.Dec()

	backoff := w.engine.cfg.backoff()
	ri := 0
	failures := 0
	noTaskCount := 0
	delay := backoff.Initial()

	log.Debug().
		Int("worker", w.index).
		Int("dispatchers", len(w.dispatchers)).
		Msg("Worker started")

	for w.engine.keepGoing.Load() {
		d := w.dispatchers[ri]
		if d.mu.TryLock() {
			wait := computeWait(noTaskCount, d.size())
			if w.processOne(d, wait) {
				noTaskCount = 0
				failures = 0
				delay = backoff.Initial()
			} else {
				noTaskCount++
			}
			ri = (ri + 1) % len(w.dispatchers)
			continue
		}

		ri = (ri + 1) % len(w.dispatchers)
		failures++
		if failures >= len(w.dispatchers) {
			metrics.WorkerBackoffSleeps.Inc()
			backoff.sleep(delay, w.engine.ctx.Done())
			delay = backoff.Next(delay)
			failures = 0
		}
	}

	log.Debug().Int("worker", w.index).Msg("Worker stopped")
}

// processOne takes the head processor, polls one message from its mailbox
// with the dispatcher unlocked, runs the handler, and returns the processor
// to the queue tail unless it is stopping or no longer registered. The
// dispatcher mutex is held on entry and released before returning.
func (w *worker) processOne(d *lockedDispatcher, wait time.Duration) bool {
	p := d.popHead()
	if p == nil {
		// Brief park holding the lock; adequate at engine scales.
		time.Sleep(emptyQueuePark)
		p = d.popHead()
		if p == nil {
			d.mu.Unlock()
			return false
		}
	}
	d.mu.Unlock()

	msg, ok := p.mailbox.poll(wait)
	if ok {
		p.invoke(msg)
	}

	d.mu.Lock()
	if !p.stopping.Load() && w.engine.registrar.get(p.id) != nil {
		d.pushTail(p)
	}
	d.mu.Unlock()

	return ok
}

// computeWait derives the mailbox poll wait from the consecutive no-task
// count and the dispatcher queue length: zero on fresh work, then a
// saturating wait clamped to [0, maxPollMS] that shrinks as more processors
// sit in the queue so a busy dispatcher is not held up.
func computeWait(noTaskCount, queueLen int) time.Duration {
	if noTaskCount == 0 {
		return 0
	}

	ms := noTaskCount
	if ms > maxPollMS {
		ms = maxPollMS
	}
	if queueLen > 1 {
		ms /= queueLen
	}
	return time.Duration(ms) * time.Millisecond
}
