package engine

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"go.eventcore.tech/internal/common/metrics"
)

// ScheduledResult is the outcome of a one-shot schedule. Each schedule
// completes with exactly one of the four values.
type ScheduledResult int

const (
	// Posted means the delayed message was accepted by the target's mailbox.
	Posted ScheduledResult = iota
	// Cancelled means the schedule was cancelled before firing.
	Cancelled
	// FailedUnregistered means the target id was not registered at fire time.
	FailedUnregistered
	// FailedQueueFull means the target's mailbox rejected the message.
	FailedQueueFull
)

// String returns the snake_case name used in logs and metrics.
func (r ScheduledResult) String() string {
	switch r {
	case Posted:
		return "posted"
	case Cancelled:
		return "cancelled"
	case FailedUnregistered:
		return "failed_unregistered"
	case FailedQueueFull:
		return "failed_queue_full"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Schedule is a cancellable one-shot delayed delivery. Its outcome completes
// exactly once.
type Schedule struct {
	id       string
	targetID string
	msg      Message
	due      time.Time

	completed atomic.Bool
	result    ScheduledResult
	done      chan struct{}
}

// ID returns the schedule's unique id.
func (s *Schedule) ID() string {
	return s.id
}

// Cancel completes the outcome with Cancelled if it has not completed yet,
// reporting whether the cancellation took effect. It is idempotent: a second
// call returns false.
func (s *Schedule) Cancel() bool {
	return s.complete(Cancelled)
}

// Done returns a channel closed when the outcome completes.
func (s *Schedule) Done() <-chan struct{} {
	return s.done
}

// Result blocks until the outcome completes and returns it.
func (s *Schedule) Result() ScheduledResult {
	<-s.done
	return s.result
}

// complete resolves the outcome exactly once, reporting whether this call
// won the resolution.
func (s *Schedule) complete(r ScheduledResult) bool {
	if !s.completed.CompareAndSwap(false, true) {
		return false
	}
	s.result = r
	close(s.done)
	metrics.SchedulerOutcomes.WithLabelValues(r.String()).Inc()
	return true
}

// scheduleHeap orders pending schedules by due time.
type scheduleHeap []*Schedule

func (h scheduleHeap) Len() int           { return len(h) }
func (h scheduleHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h scheduleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scheduleHeap) Push(x any)        { *h = append(*h, x.(*Schedule)) }
func (h *scheduleHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return s
}

// Scheduler posts a message to a registered processor after a delay. A pool
// of timer workers serves a shared due-time heap; cancelled schedules are
// skipped lazily at fire time.
type Scheduler struct {
	registrar *registrar

	mu      sync.Mutex
	pending scheduleHeap
	stopped bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newScheduler(reg *registrar) *Scheduler {
	return &Scheduler{
		registrar: reg,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// start launches the timer worker pool.
func (sch *Scheduler) start(poolSize int) {
	for i := 0; i < poolSize; i++ {
		sch.wg.Add(1)
		go sch.runWorker()
	}
	log.Debug().Int("poolSize", poolSize).Msg("Scheduler started")
}

// stop shuts the pool down and completes every still-pending schedule with
// Cancelled so no outcome is left dangling.
func (sch *Scheduler) stop() {
	sch.mu.Lock()
	if sch.stopped {
		sch.mu.Unlock()
		return
	}
	sch.stopped = true
	remaining := sch.pending
	sch.pending = nil
	sch.mu.Unlock()

	close(sch.stopCh)
	sch.wg.Wait()

	for _, s := range remaining {
		s.complete(Cancelled)
	}
	metrics.SchedulerPending.Set(0)
	log.Debug().Int("cancelled", len(remaining)).Msg("Scheduler stopped")
}

// Schedule arms a one-shot delivery of msg to the processor registered under
// id after delay elapses.
func (sch *Scheduler) Schedule(id string, msg Message, delay time.Duration) *Schedule {
	s := &Schedule{
		id:       uuid.New().String(),
		targetID: id,
		msg:      msg,
		due:      time.Now().Add(delay),
		done:     make(chan struct{}),
	}

	sch.mu.Lock()
	if sch.stopped {
		sch.mu.Unlock()
		s.complete(Cancelled)
		return s
	}
	heap.Push(&sch.pending, s)
	metrics.SchedulerPending.Set(float64(len(sch.pending)))
	sch.mu.Unlock()

	select {
	case sch.wake <- struct{}{}:
	default:
	}
	return s
}

// runWorker pops due schedules off the shared heap and fires them.
func (sch *Scheduler) runWorker() {
	defer sch.wg.Done()

	const idlePark = time.Minute

	for {
		sch.mu.Lock()
		if sch.stopped {
			sch.mu.Unlock()
			return
		}

		wait := idlePark
		var due *Schedule
		if len(sch.pending) > 0 {
			head := sch.pending[0]
			if until := time.Until(head.due); until <= 0 {
				due = heap.Pop(&sch.pending).(*Schedule)
				metrics.SchedulerPending.Set(float64(len(sch.pending)))
			} else {
				wait = until
			}
		}
		sch.mu.Unlock()

		if due != nil {
			sch.fire(due)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-sch.wake:
		case <-sch.stopCh:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// fire resolves a due schedule: cancelled schedules are skipped, otherwise
// the target is looked up and the message posted.
func (sch *Scheduler) fire(s *Schedule) {
	if s.completed.Load() {
		return
	}

	target := sch.registrar.get(s.targetID)
	switch {
	case target == nil:
		s.complete(FailedUnregistered)
	case target.Post(s.msg):
		s.complete(Posted)
	default:
		s.complete(FailedQueueFull)
	}
}

// CronSchedule is a recurring schedule driven by a cron expression. Each
// fire posts the message to the target; delivery failures are counted and
// logged, never fatal.
type CronSchedule struct {
	targetID string
	msg      Message
	spec     cron.Schedule

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Stop halts the recurring schedule. It is safe to call more than once.
func (c *CronSchedule) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// ScheduleCron arms a recurring delivery of msg to id on a standard 5-field
// cron expression (descriptors such as "@every 10s" are accepted). The
// schedule runs until Stop or engine shutdown.
func (sch *Scheduler) ScheduleCron(id string, msg Message, expr string) (*CronSchedule, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCronExpr, expr, err)
	}

	c := &CronSchedule{
		targetID: id,
		msg:      msg,
		spec:     spec,
		stopCh:   make(chan struct{}),
	}

	sch.mu.Lock()
	if sch.stopped {
		sch.mu.Unlock()
		c.Stop()
		return c, nil
	}
	sch.mu.Unlock()

	sch.wg.Add(1)
	go sch.runCron(c)
	return c, nil
}

// runCron sleeps until each successive fire time and posts the message.
func (sch *Scheduler) runCron(c *CronSchedule) {
	defer sch.wg.Done()

	for {
		next := c.spec.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
		case <-c.stopCh:
			timer.Stop()
			return
		case <-sch.stopCh:
			timer.Stop()
			return
		}

		target := sch.registrar.get(c.targetID)
		switch {
		case target == nil:
			metrics.CronFirings.WithLabelValues(FailedUnregistered.String()).Inc()
			log.Warn().Str("target", c.targetID).Msg("Cron firing target not registered")
		case target.Post(c.msg):
			metrics.CronFirings.WithLabelValues(Posted.String()).Inc()
		default:
			metrics.CronFirings.WithLabelValues(FailedQueueFull.String()).Inc()
			log.Warn().Str("target", c.targetID).Msg("Cron firing dropped, mailbox full")
		}
	}
}
