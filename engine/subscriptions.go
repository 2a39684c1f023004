package engine

import (
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"go.eventcore.tech/internal/common/metrics"
)

const (
	// SubscriptionsProcessorID is the well-known id of the subscriptions
	// processor.
	SubscriptionsProcessorID = "subscriptions"

	// SubscriptionsDispatcherName is the dedicated dispatcher the
	// subscriptions processor lives in.
	SubscriptionsDispatcherName = "subscriptions"
)

// subscriptionState holds the channel membership managed by the
// subscriptions processor. Because the state is only touched by that
// processor's handler, mutation is single-threaded and needs no lock.
type subscriptionState struct {
	engine *Engine

	// channels maps a channel name to its subscribers in subscription order.
	// A processor appears at most once per channel.
	channels map[string][]*Processor

	// limiter optionally throttles broadcast fan-out. Waiting blocks only
	// the subscriptions processor's own handler.
	limiter *rate.Limiter
}

// newSubscriptionsProcessor builds the well-known processor that mediates
// pub/sub state changes and broadcasts.
func newSubscriptionsProcessor(e *Engine, queueSize int, ratePerSec float64) *Processor {
	state := &subscriptionState{
		engine:   e,
		channels: make(map[string][]*Processor),
	}
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		state.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}

	return newProcessor(e, SubscriptionsProcessorID, SubscriptionsDispatcherName, queueSize, state.handle)
}

// handle is the subscriptions processor's handler.
func (s *subscriptionState) handle(msg Message) bool {
	switch m := msg.(type) {
	case Subscribe:
		for _, ch := range m.Channels {
			s.add(ch, m.EP)
		}
		s.reply(m.EP)

	case SetSubscription:
		s.removeAll(m.EP)
		for _, ch := range m.Channels {
			s.add(ch, m.EP)
		}
		s.reply(m.EP)

	case Unsubscribe:
		for _, ch := range m.Channels {
			s.remove(ch, m.EP)
		}
		s.reply(m.EP)

	case UnsubscribeAll:
		s.removeAll(m.EP)
		s.reply(m.EP)

	case Broadcast:
		s.broadcast(m)

	default:
		return false
	}
	return true
}

// add appends ep to channel ch unless already present.
func (s *subscriptionState) add(ch string, ep *Processor) {
	for _, sub := range s.channels[ch] {
		if sub.id == ep.id {
			return
		}
	}
	s.channels[ch] = append(s.channels[ch], ep)
}

// remove deletes ep from channel ch, dropping the channel when it empties.
func (s *subscriptionState) remove(ch string, ep *Processor) {
	subs := s.channels[ch]
	for i, sub := range subs {
		if sub.id == ep.id {
			s.channels[ch] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(s.channels[ch]) == 0 {
		delete(s.channels, ch)
	}
}

// removeAll deletes ep from every channel.
func (s *subscriptionState) removeAll(ep *Processor) {
	for ch := range s.channels {
		s.remove(ch, ep)
	}
}

// channelsOf returns the sorted channel names ep belongs to.
func (s *subscriptionState) channelsOf(ep *Processor) []string {
	var result []string
	for ch, subs := range s.channels {
		for _, sub := range subs {
			if sub.id == ep.id {
				result = append(result, ch)
				break
			}
		}
	}
	sort.Strings(result)
	return result
}

// reply sends ep its current subscription set, best-effort.
func (s *subscriptionState) reply(ep *Processor) {
	if !ep.Post(Subscribed{Channels: s.channelsOf(ep)}) {
		log.Debug().
			Str("processor", ep.id).
			Msg("Subscribed reply dropped, mailbox full")
	}
}

// broadcast posts the payload to every subscriber of any of the named
// channels exactly once. Subscribers whose mailbox is full are reported to
// the sender with NotDelivered.
func (s *subscriptionState) broadcast(b Broadcast) {
	seen := make(map[string]struct{})

	for _, ch := range b.Channels {
		for _, sub := range s.channels[ch] {
			if _, dup := seen[sub.id]; dup {
				continue
			}
			seen[sub.id] = struct{}{}

			if s.limiter != nil {
				if err := s.limiter.Wait(s.engine.ctx); err != nil {
					// Engine shutting down; abandon the fan-out.
					return
				}
			}

			if sub.Post(b.Payload) {
				metrics.BroadcastDeliveries.Inc()
				continue
			}

			metrics.BroadcastNotDelivered.Inc()
			log.Warn().
				Str("subscriber", sub.id).
				Str("channel", ch).
				Msg("Broadcast not delivered, subscriber mailbox full")

			if b.Sender != nil && !b.Sender.Post(NotDelivered{Target: sub, Broadcast: b}) {
				log.Debug().
					Str("sender", b.Sender.id).
					Msg("NotDelivered report dropped, sender mailbox full")
			}
		}
	}
}
