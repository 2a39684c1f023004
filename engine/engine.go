package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"go.eventcore.tech/internal/common/metrics"
)

const (
	// drainPollInterval is how often the stop protocol re-checks the mailbox
	// while draining.
	drainPollInterval = 10 * time.Millisecond

	// inFlightWait bounds the stop protocol's wait for a worker to return
	// the processor to its dispatcher queue.
	inFlightWait = 100 * time.Millisecond

	// DefaultStopTimeout is the drain deadline used by StopDefault.
	DefaultStopTimeout = 30 * time.Second
)

// WarningSink receives reported conditions such as stop-deadline message
// loss. It matches the warning service interface so any implementation can
// be plugged in.
type WarningSink interface {
	AddWarning(category, severity, message, source string)
}

// Engine owns the dispatchers, the registrar, the scheduler, and the worker
// pool. Construct it with New, add processors with Register, then Start.
type Engine struct {
	cfg *Config

	dispatchers map[string]*lockedDispatcher
	registrar   *registrar
	scheduler   *Scheduler

	// subscriptions is the well-known processor mediating pub/sub.
	subscriptions *Processor

	keepGoing atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	workersWG sync.WaitGroup

	started      bool
	workerCount  int
	startedMu    sync.Mutex
	shutdownOnce sync.Once

	warningSink WarningSink
}

// New builds an engine from cfg: one dispatcher per unique assigned name
// plus the dedicated subscriptions dispatcher, the registrar, the scheduler,
// and the subscriptions processor (registered and enqueued). Workers are not
// started until Start.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:         cfg,
		dispatchers: make(map[string]*lockedDispatcher),
		registrar:   &registrar{},
		ctx:         ctx,
		cancel:      cancel,
	}

	for name := range cfg.validDispatcherNames() {
		e.dispatchers[name] = newLockedDispatcher(name)
	}

	e.scheduler = newScheduler(e.registrar)

	e.subscriptions = newSubscriptionsProcessor(e, cfg.DefaultQueueSize, cfg.BroadcastRatePerSec)
	e.registrar.register(e.subscriptions)
	metrics.ProcessorsRegistered.Set(float64(e.registrar.count()))

	subsDispatcher := e.dispatchers[SubscriptionsDispatcherName]
	subsDispatcher.mu.Lock()
	subsDispatcher.pushTail(e.subscriptions)
	subsDispatcher.mu.Unlock()

	log.Info().
		Int("dispatchers", len(e.dispatchers)).
		Int("workers", len(cfg.ThreadDispatcherAssignment)).
		Msg("Engine created")

	return e, nil
}

// WithWarningSink sets the sink that receives reported conditions.
func (e *Engine) WithWarningSink(ws WarningSink) *Engine {
	e.warningSink = ws
	return e
}

// Register adds p to the registrar and enqueues it on its dispatcher. The
// dispatcher name must be declared in the thread assignment or be the
// subscriptions dispatcher, and the id must not already be registered.
func (e *Engine) Register(p *Processor) error {
	d, ok := e.dispatchers[p.dispatcherName]
	if !ok {
		return fmt.Errorf("%w: %q (processor %q); valid names: %v",
			ErrUnknownDispatcher, p.dispatcherName, p.id, e.dispatcherNames())
	}

	if !e.registrar.register(p) {
		return fmt.Errorf("%w: %q", ErrDuplicateProcessor, p.id)
	}
	metrics.ProcessorsRegistered.Set(float64(e.registrar.count()))

	d.mu.Lock()
	d.pushTail(p)
	d.mu.Unlock()

	log.Debug().
		Str("processor", p.id).
		Str("dispatcher", dispatcherLabel(p.dispatcherName)).
		Int("queueSize", p.queueSize).
		Msg("Processor registered")

	return nil
}

// Start launches one worker per thread assignment entry. If no entry names
// the subscriptions dispatcher, a dedicated worker is added for it so
// fan-out can never starve. Start is idempotent.
func (e *Engine) Start() {
	e.startedMu.Lock()
	defer e.startedMu.Unlock()

	if e.started {
		return
	}
	e.started = true
	e.keepGoing.Store(true)

	assignments := e.cfg.ThreadDispatcherAssignment
	if !e.assignmentCovers(SubscriptionsDispatcherName) {
		assignments = append(assignments[:len(assignments):len(assignments)], []string{SubscriptionsDispatcherName})
	}

	for i, names := range assignments {
		w := &worker{engine: e, index: i}
		for _, name := range names {
			w.dispatchers = append(w.dispatchers, e.dispatchers[name])
		}
		e.workersWG.Add(1)
		go w.run()
	}

	e.workerCount = len(assignments)
	e.scheduler.start(e.cfg.SchedulerPoolSize)

	log.Info().Int("workers", len(assignments)).Msg("Engine started")
}

// Stop gracefully removes the processor registered under id: drain the
// mailbox until empty or the deadline, mark it stopping, wait briefly for
// any in-flight processing to finish, remove it from its dispatcher queue,
// and unregister. Messages remaining at the deadline are abandoned and
// reported. Stopping does not remove the processor from subscription
// channels; unsubscribe first when it is a subscriber.
func (e *Engine) Stop(id string, timeout time.Duration) error {
	p := e.registrar.get(id)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownProcessor, id)
	}

	deadline := time.Now().Add(timeout)

	// Phase 1: drain. The stopping flag is not set yet so workers keep
	// consuming the mailbox.
	for p.mailbox.size() > 0 && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
	}
	if remaining := p.mailbox.size(); remaining > 0 {
		metrics.StopMessageLoss.Add(float64(remaining))
		msg := fmt.Sprintf("processor %q stopped with %d undelivered messages", id, remaining)
		log.Warn().
			Str("processor", id).
			Int("remaining", remaining).
			Msg("Stop deadline reached, abandoning messages")
		if e.warningSink != nil {
			e.warningSink.AddWarning("STOP_MESSAGE_LOSS", "WARN", msg, "engine")
		}
	}

	// Phase 2: mark. From here no worker re-enqueues p.
	p.stopping.Store(true)

	// Phase 3: wait for in-flight processing. A worker mid-cycle either
	// returns p to the queue (signalled on the dispatcher's work channel) or
	// observes the stopping flag and drops it; the timeout covers both.
	d := e.dispatchers[p.dispatcherName]
	waitDeadline := time.Now().Add(inFlightWait)
	for {
		d.mu.Lock()
		queued := d.contains(id)
		d.mu.Unlock()
		if queued || !time.Now().Before(waitDeadline) {
			break
		}

		timer := time.NewTimer(drainPollInterval)
		select {
		case <-d.work:
		case <-timer.C:
		}
		timer.Stop()
	}

	// Phase 4: remove from the dispatcher queue.
	d.mu.Lock()
	d.removeIf(id)
	d.mu.Unlock()

	// Phase 5: unregister. Schedule firings can no longer find the id.
	e.registrar.unregister(id)
	metrics.ProcessorsRegistered.Set(float64(e.registrar.count()))

	log.Info().Str("processor", id).Msg("Processor stopped")
	return nil
}

// StopDefault is Stop with the default 30 second drain deadline.
func (e *Engine) StopDefault(id string) error {
	return e.Stop(id, DefaultStopTimeout)
}

// Shutdown signals every worker to exit, joins them, and stops the
// scheduler. In-flight message processing is not awaited; stop processors
// individually first for a clean shutdown.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.keepGoing.Store(false)
		e.cancel()
		e.workersWG.Wait()
		e.scheduler.stop()

		e.startedMu.Lock()
		e.started = false
		e.startedMu.Unlock()

		log.Info().Msg("Engine shut down")
	})
}

// Scheduler returns the delayed-delivery scheduler.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// Subscriptions returns the well-known subscriptions processor.
func (e *Engine) Subscriptions() *Processor {
	return e.subscriptions
}

// Registered reports whether a processor is registered under id.
func (e *Engine) Registered(id string) bool {
	return e.registrar.get(id) != nil
}

// DispatcherStatus is a point-in-time view of one dispatcher.
type DispatcherStatus struct {
	Name       string `json:"name"`
	QueueDepth int    `json:"queueDepth"`
}

// Status is a point-in-time view of the engine, served by the ops surface.
type Status struct {
	Started     bool               `json:"started"`
	Workers     int                `json:"workers"`
	Processors  int                `json:"processors"`
	Dispatchers []DispatcherStatus `json:"dispatchers"`
}

// Status snapshots the engine state.
func (e *Engine) Status() Status {
	e.startedMu.Lock()
	started := e.started
	workers := e.workerCount
	e.startedMu.Unlock()

	st := Status{
		Started:    started,
		Workers:    workers,
		Processors: e.registrar.count(),
	}
	for _, name := range e.dispatcherNames() {
		d := e.dispatchers[name]
		d.mu.Lock()
		depth := d.size()
		d.mu.Unlock()
		st.Dispatchers = append(st.Dispatchers, DispatcherStatus{
			Name:       dispatcherLabel(name),
			QueueDepth: depth,
		})
	}
	return st
}

// assignmentCovers reports whether any worker assignment entry names the
// given dispatcher.
func (e *Engine) assignmentCovers(name string) bool {
	for _, entry := range e.cfg.ThreadDispatcherAssignment {
		for _, n := range entry {
			if n == name {
				return true
			}
		}
	}
	return false
}

// dispatcherNames returns the sorted dispatcher names.
func (e *Engine) dispatcherNames() []string {
	names := make([]string, 0, len(e.dispatchers))
	for name := range e.dispatchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
