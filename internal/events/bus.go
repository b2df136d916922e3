package events

import (
	"github.com/kelindar/event"
)

// Bus fans pool events out to in-process subscribers on top of a
// kelindar/event dispatcher. Delivery is asynchronous and per-subscriber
// ordered.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type. Unknown
// event types are dropped.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case UnitCreatedEvent:
		event.Publish(b.dispatcher, e)
	case UnitDestroyedEvent:
		event.Publish(b.dispatcher, e)
	case AlertEvent:
		event.Publish(b.dispatcher, e)
	case PoolStateChangedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter,
// e.g. bus.Subscribe(func(e AlertEvent) {...}), and returns the unsubscribe
// func. Unsupported handler signatures get a no-op unsubscribe.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(UnitCreatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UnitDestroyedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AlertEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PoolStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T into ch, so several types
// can be multiplexed into one select loop. Events are dropped while ch is
// full; a slow SSE client never blocks the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
