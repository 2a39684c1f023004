package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"go.eventcore.tech/internal/common/metrics"
)

// Processor is a single-threaded logical actor: it owns a bounded mailbox
// and a handler stack, lives in exactly one dispatcher, and has at most one
// worker executing its handler at any instant.
type Processor struct {
	id             string
	dispatcherName string
	queueSize      int
	mailbox        *mailbox
	engine         *Engine

	// handlers is the handler stack; the last element is the active handler.
	// Mutated only by the owning worker while the processor is being
	// processed, so no lock guards it beyond taskLock exclusion.
	handlers []Handler

	// stopping, once set, forbids workers from re-enqueueing the processor
	// after its current message.
	stopping atomic.Bool

	// taskLock enforces the at-most-one-worker-in-processEvent invariant.
	taskLock sync.Mutex
}

func newProcessor(e *Engine, id, dispatcherName string, queueSize int, onEvent Handler) *Processor {
	return &Processor{
		id:             id,
		dispatcherName: dispatcherName,
		queueSize:      queueSize,
		mailbox:        newMailbox(queueSize),
		engine:         e,
		handlers:       []Handler{onEvent},
	}
}

// ID returns the processor's stable identifier.
func (p *Processor) ID() string {
	return p.id
}

// DispatcherName returns the dispatcher this processor lives in.
func (p *Processor) DispatcherName() string {
	return p.dispatcherName
}

// QueueSize returns the mailbox capacity fixed at creation.
func (p *Processor) QueueSize() int {
	return p.queueSize
}

// Post enqueues msg without blocking. It returns false when the mailbox is
// full; callers decide the back-pressure policy.
func (p *Processor) Post(msg Message) bool {
	if p.mailbox.offer(msg) {
		return true
	}
	metrics.MailboxRejections.WithLabelValues(dispatcherLabel(p.dispatcherName)).Inc()
	return false
}

// CurrentQueueSize returns the number of messages waiting in the mailbox.
func (p *Processor) CurrentQueueSize() int {
	return p.mailbox.size()
}

// Become changes the active handler. With stackPrevious the current handler
// is kept underneath and restored by Unbecome; without it the top of the
// stack is replaced. Safe only from within the active handler on the
// processing worker; foreign goroutines must request the change by message.
func (p *Processor) Become(h Handler, stackPrevious bool) {
	if stackPrevious {
		p.handlers = append(p.handlers, h)
		return
	}
	p.handlers[len(p.handlers)-1] = h
}

// Unbecome pops the active handler. On a single-element stack it is a no-op:
// the stack is never empty.
func (p *Processor) Unbecome() {
	if len(p.handlers) > 1 {
		p.handlers[len(p.handlers)-1] = nil
		p.handlers = p.handlers[:len(p.handlers)-1]
	}
}

// Subscribe asks the subscriptions processor to add this processor to the
// named channels. The result arrives as a Subscribed message.
func (p *Processor) Subscribe(channels ...string) bool {
	return p.engine.subscriptions.Post(Subscribe{EP: p, Channels: channels})
}

// Unsubscribe asks the subscriptions processor to remove this processor
// from the named channels.
func (p *Processor) Unsubscribe(channels ...string) bool {
	return p.engine.subscriptions.Post(Unsubscribe{EP: p, Channels: channels})
}

// UnsubscribeAll removes this processor from every channel.
func (p *Processor) UnsubscribeAll() bool {
	return p.engine.subscriptions.Post(UnsubscribeAll{EP: p})
}

// SetSubscription makes this processor's subscription set exactly channels.
func (p *Processor) SetSubscription(channels ...string) bool {
	return p.engine.subscriptions.Post(SetSubscription{EP: p, Channels: channels})
}

// BroadcastMessage fans payload out to every subscriber of any of the named
// channels via the subscriptions processor.
func (p *Processor) BroadcastMessage(channels []string, payload Message) bool {
	return p.engine.subscriptions.Post(Broadcast{Sender: p, Channels: channels, Payload: payload})
}

// invoke runs the active handler for one message under the task lock. A
// panic escaping the handler is caught and re-posted to the same mailbox as
// a HandlerFailure, best-effort.
func (p *Processor) invoke(msg Message) {
	p.taskLock.Lock()
	defer p.taskLock.Unlock()

	label := dispatcherLabel(p.dispatcherName)

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("handler panic: %v", r)
			}
			metrics.MessagesProcessed.WithLabelValues(label, "panic").Inc()
			log.Error().Err(err).
				Str("processor", p.id).
				Msg("Handler panicked, re-posting failure")
			p.warn("HANDLER_PANIC", fmt.Sprintf("processor %q handler panicked: %v", p.id, err))

			if !p.mailbox.offer(HandlerFailure{Msg: msg, Err: err}) {
				log.Warn().
					Str("processor", p.id).
					Msg("Mailbox full, handler failure dropped")
				p.warn("MAILBOX_OVERFLOW", fmt.Sprintf("processor %q dropped a handler failure, mailbox full", p.id))
			}
		}
	}()

	if p.handlers[len(p.handlers)-1](msg) {
		metrics.MessagesProcessed.WithLabelValues(label, "handled").Inc()
		return
	}

	metrics.MessagesProcessed.WithLabelValues(label, "unhandled").Inc()
	log.Debug().
		Str("processor", p.id).
		Str("messageType", fmt.Sprintf("%T", msg)).
		Msg("Message not handled by active handler")
}

// warn reports a condition to the engine's warning sink when one is set.
func (p *Processor) warn(category, message string) {
	if p.engine != nil && p.engine.warningSink != nil {
		p.engine.warningSink.AddWarning(category, "WARN", message, "processor")
	}
}

// dispatcherLabel returns a non-empty metrics/log label for a dispatcher name.
func dispatcherLabel(name string) string {
	if name == DefaultDispatcherName {
		return "default"
	}
	return name
}
