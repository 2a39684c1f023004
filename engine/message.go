// Package engine implements an in-process, actor-style event-processing
// engine. User code registers event processors, each owning a bounded
// mailbox; the engine dispatches queued messages onto a pool of worker
// goroutines pinned to named dispatchers.
package engine

// Message is any value delivered through a processor's mailbox. Built-in
// protocol messages are the tagged structs below; everything else is an
// opaque user payload.
type Message = any

// Handler processes a single message. It returns false when it is not
// defined for the message, in which case the engine records it as unhandled.
type Handler func(msg Message) bool

// Subscribe adds EP to each of the named channels. The subscriptions
// processor replies to EP with Subscribed listing its current channels.
type Subscribe struct {
	EP       *Processor
	Channels []string
}

// SetSubscription makes EP's subscription set exactly Channels.
type SetSubscription struct {
	EP       *Processor
	Channels []string
}

// Unsubscribe removes EP from the named channels.
type Unsubscribe struct {
	EP       *Processor
	Channels []string
}

// UnsubscribeAll removes EP from every channel it belongs to.
type UnsubscribeAll struct {
	EP *Processor
}

// Broadcast fans Payload out to every subscriber of any of Channels. A
// subscriber whose mailbox is full is reported back to Sender with a
// NotDelivered message.
type Broadcast struct {
	Sender   *Processor
	Channels []string
	Payload  Message
}

// Subscribed is the reply the subscriptions processor sends after any
// subscription change, listing the processor's channels after the change.
type Subscribed struct {
	Channels []string
}

// NotDelivered reports a broadcast that could not be posted to Target
// because its mailbox was full.
type NotDelivered struct {
	Target    *Processor
	Broadcast Broadcast
}

// HandlerFailure wraps a message whose handler panicked. It is re-posted to
// the same mailbox (best-effort) so handler errors surface as in-band events.
type HandlerFailure struct {
	Msg Message
	Err error
}
